/*
 * Copyright 2025 eshm authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package eshm provides a two-party, mmap-backed shared-memory IPC
// channel between a master and a slave process on the same host.
//
// Each side publishes its latest value to the other over a lock-free
// seqlock block and tracks the remote side's liveness through a 1ms
// heartbeat counter. A background monitor watches that heartbeat, and,
// when the side configured as the slave notices its master has stopped
// advancing, tries to reattach to a region a restarted master has since
// recreated or taken over — without either side ever blocking on a mutex
// or semaphore.
//
//	h, err := eshm.Init(eshm.DefaultConfig("my-channel"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer h.Close()
//
//	if err := h.Write([]byte("hello")); err != nil {
//		log.Fatal(err)
//	}
//
//	buf := make([]byte, 4096)
//	n, err := h.ReadSimple(buf)
package eshm

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

package eshm

// Stats is a point-in-time snapshot of a region's liveness and traffic
// counters.
type Stats struct {
	MasterHeartbeat uint64
	SlaveHeartbeat  uint64
	MasterPID       uint32
	SlavePID        uint32
	MasterAlive     bool
	SlaveAlive      bool
	StaleThreshold  uint32

	// MasterHeartbeatDelta and SlaveHeartbeatDelta are the change in
	// each heartbeat counter since this Handle's previous call to
	// Stats, not since some fixed epoch — calling Stats resets the
	// baseline each time.
	MasterHeartbeatDelta uint64
	SlaveHeartbeatDelta  uint64

	M2SWriteCount uint64
	M2SReadCount  uint64
	S2MWriteCount uint64
	S2MReadCount  uint64
}

//go:build !(linux && (amd64 || arm64))

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

package region

import "errors"

// ErrUnsupportedPlatform is returned by Create/Open on platforms this
// package does not support mmap-based regions on.
var ErrUnsupportedPlatform = errors.New("region: unsupported platform")

func pathFor(name string) string { return "" }

func Create(name string, staleThresholdMs uint32) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}

func Open(name string) (*Region, error) {
	return nil, ErrUnsupportedPlatform
}

func munmapFile(mem []byte) error {
	return nil
}

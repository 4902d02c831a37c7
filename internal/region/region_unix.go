//go:build linux && (amd64 || arm64)

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

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// pathFor resolves a region name to a filesystem path, preferring
// /dev/shm (tmpfs, never hits a disk) and falling back to the OS temp
// directory when /dev/shm is unavailable. Slashes in name are replaced
// so it can never escape the chosen directory.
func pathFor(name string) string {
	safe := strings.ReplaceAll(name, "/", "_")
	filename := "eshm_" + safe
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", filename)
	}
	return filepath.Join(os.TempDir(), filename)
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	return err == nil && info.IsDir()
}

// Create creates a brand new region file, sized, mapped, and
// zero-initialized, but does not mark either side attached — callers do
// that via AttachAsMaster/AttachAsSlave once role resolution has decided
// who this process is.
func Create(name string, staleThresholdMs uint32) (*Region, error) {
	path := pathFor(name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("region: create %s: %w", path, err)
	}
	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(Size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("region: truncate %s: %w", path, err)
	}

	mem, err := mmapFile(file, Size)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("region: mmap %s: %w", path, err)
	}

	r := newRegion(name, path, file, mem, true)
	r.initFresh()
	r.hdr.setStaleThreshold(staleThresholdMs)
	return r, nil
}

// Open attaches to an existing region file and validates its header
// before returning. A region that fails validation is unmapped and
// closed without being touched further.
func Open(name string) (*Region, error) {
	path := pathFor(name)

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("region: open %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("region: stat %s: %w", path, err)
	}
	if info.Size() < int64(Size) {
		file.Close()
		return nil, fmt.Errorf("region: %s is %d bytes, want %d", path, info.Size(), Size)
	}

	mem, err := mmapFile(file, Size)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("region: mmap %s: %w", path, err)
	}

	r := newRegion(name, path, file, mem, false)
	if err := validate(r.hdr); err != nil {
		munmapFile(mem)
		file.Close()
		return nil, err
	}
	return r, nil
}

func mmapFile(file *os.File, size int) ([]byte, error) {
	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}

func munmapFile(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}

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
	"unsafe"

	"github.com/chongmx/eshm/internal/channel"
)

// Layout offsets. The region is one contiguous mapping: the header, then
// the master-to-slave channel block, then the slave-to-master channel
// block. Both blocks are the same fixed size.
const (
	masterToSlaveOffset = HeaderSize
	slaveToMasterOffset = HeaderSize + channel.BlockSize

	// Size is the total size, in bytes, of a region's mapping.
	Size = HeaderSize + 2*channel.BlockSize
)

// Role identifies which side of a region a Region value was attached as.
type Role int

const (
	RoleMaster Role = iota
	RoleSlave
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

// Region is an attached shared-memory region: the mapped bytes, the
// backing file, and typed views over the header and the two channel
// blocks.
type Region struct {
	file *os.File
	mem  []byte

	hdr          *Header
	masterToSlave *channel.View
	slaveToMaster *channel.View

	name      string
	path      string
	isCreator bool
}

// Name is the region's logical name, as passed to Create/Open.
func (r *Region) Name() string { return r.name }

// Path is the filesystem path backing the region's mapping.
func (r *Region) Path() string { return r.path }

// IsCreator reports whether this attachment created the region (as opposed
// to opening/taking over one that already existed).
func (r *Region) IsCreator() bool { return r.isCreator }

// Header returns the region's fixed-offset header.
func (r *Region) Header() *Header { return r.hdr }

// MasterToSlave returns the channel block carrying master-to-slave
// traffic.
func (r *Region) MasterToSlave() *channel.View { return r.masterToSlave }

// SlaveToMaster returns the channel block carrying slave-to-master
// traffic.
func (r *Region) SlaveToMaster() *channel.View { return r.slaveToMaster }

// OutboundFor returns the channel block a handle attached with the given
// role writes to.
func (r *Region) OutboundFor(role Role) *channel.View {
	if role == RoleMaster {
		return r.masterToSlave
	}
	return r.slaveToMaster
}

// InboundFor returns the channel block a handle attached with the given
// role reads from.
func (r *Region) InboundFor(role Role) *channel.View {
	if role == RoleMaster {
		return r.slaveToMaster
	}
	return r.masterToSlave
}

func newRegion(name, path string, file *os.File, mem []byte, isCreator bool) *Region {
	base := unsafe.Pointer(&mem[0])
	return &Region{
		file:          file,
		mem:           mem,
		hdr:           (*Header)(base),
		masterToSlave: channel.NewView(mem, masterToSlaveOffset),
		slaveToMaster: channel.NewView(mem, slaveToMasterOffset),
		name:          name,
		path:          path,
		isCreator:     isCreator,
	}
}

// validate checks the region's magic and version before anything else
// touches it. A region that fails validation is never mutated.
func validate(hdr *Header) error {
	if hdr.Magic() != Magic {
		return fmt.Errorf("region: bad magic %#x, want %#x", hdr.Magic(), Magic)
	}
	if hdr.Version() != Version {
		return fmt.Errorf("region: unsupported version %d, want %d", hdr.Version(), Version)
	}
	return nil
}

// AttachAsMaster marks the region as owned by a new master: bumps the
// generation, records this process's PID, marks master alive, and resets
// the master heartbeat to 0. This happens identically whether the region
// was just created or taken over from a dead master — the generation
// counter (and the heartbeat-progression check a reattaching slave
// performs) is what makes a takeover distinguishable on the slave side.
func (r *Region) AttachAsMaster(staleThresholdMs uint32) {
	if r.isCreator {
		r.hdr.setStaleThreshold(staleThresholdMs)
	}
	r.hdr.incrementMasterGeneration()
	r.hdr.setMasterPid(uint32(os.Getpid()))
	r.hdr.setMasterAlive(true)
	r.hdr.resetMasterHeartbeat()
}

// AttachAsSlave marks the region as attached by a slave: records this
// process's PID, marks slave alive, and resets the slave heartbeat to 0.
func (r *Region) AttachAsSlave() {
	r.hdr.setSlavePid(uint32(os.Getpid()))
	r.hdr.setSlaveAlive(true)
	r.hdr.resetSlaveHeartbeat()
}

// MarkDetached clears the alive flag this process owns under the given
// role. Called on Close/Destroy so a peer's monitor sees this side go
// away even before its heartbeat actually stops advancing.
func (r *Region) MarkDetached(role Role) {
	if role == RoleMaster {
		r.hdr.setMasterAlive(false)
	} else {
		r.hdr.setSlaveAlive(false)
	}
}

// initFresh zero-initializes a freshly truncated (and therefore
// zero-filled) mapping's header: magic, version. Heartbeats, PIDs, alive
// flags, generation, and the channel control words are left at their
// zero value — AttachAsMaster/AttachAsSlave set the fields that matter
// for the attaching side immediately afterward.
func (r *Region) initFresh() {
	r.hdr.setMagic(Magic)
	r.hdr.setVersion(Version)
	r.masterToSlave.Reset()
	r.slaveToMaster.Reset()
}

// Close unmaps the region and closes its backing file without removing
// it from the filesystem.
func (r *Region) Close() error {
	var firstErr error
	if r.mem != nil {
		if err := munmapFile(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}

// Unlink removes the region's backing file from the filesystem. It does
// not unmap or close an attached Region; call Close first.
func Unlink(name string) error {
	err := os.Remove(pathFor(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether a region with the given name is currently
// present on the filesystem.
func Exists(name string) bool {
	_, err := os.Stat(pathFor(name))
	return err == nil
}

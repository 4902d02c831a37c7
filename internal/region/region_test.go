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
	"testing"
	"time"
)

func testName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
}

func TestCreateAndOpenRoundTrip(t *testing.T) {
	name := testName(t)
	creator, err := Create(name, 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() {
		creator.Close()
		Unlink(name)
	})

	if creator.Header().Magic() != Magic {
		t.Fatalf("creator magic = %#x, want %#x", creator.Header().Magic(), Magic)
	}

	opener, err := Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opener.Close()

	if opener.Header().Magic() != Magic || opener.Header().Version() != Version {
		t.Fatalf("opened region failed validation: magic=%#x version=%d", opener.Header().Magic(), opener.Header().Version())
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	name := testName(t)
	r, err := Create(name, 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { Unlink(name) })

	r.hdr.setMagic(0xdeadbeef)
	r.Close()

	if _, err := Open(name); err == nil {
		t.Fatalf("Open succeeded against a region with corrupted magic")
	}
}

func TestOpenRejectsUnsupportedVersion(t *testing.T) {
	name := testName(t)
	r, err := Create(name, 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { Unlink(name) })

	r.hdr.setVersion(Version + 1)
	r.Close()

	if _, err := Open(name); err == nil {
		t.Fatalf("Open succeeded against a region with an unsupported version")
	}
}

func TestResolveMasterThenSlave(t *testing.T) {
	name := testName(t)

	master, err := Resolve(name, DesiredMaster, 100)
	if err != nil {
		t.Fatalf("Resolve(master): %v", err)
	}
	t.Cleanup(func() {
		master.Region.Close()
		Unlink(name)
	})
	if master.Role != RoleMaster {
		t.Fatalf("role = %v, want master", master.Role)
	}
	if master.Region.Header().MasterGeneration() != 1 {
		t.Fatalf("generation = %d, want 1 on first attach", master.Region.Header().MasterGeneration())
	}
	if !master.Region.Header().MasterAlive() {
		t.Fatalf("master_alive not set after Resolve(master)")
	}

	slave, err := Resolve(name, DesiredSlave, 100)
	if err != nil {
		t.Fatalf("Resolve(slave): %v", err)
	}
	defer slave.Region.Close()
	if slave.Role != RoleSlave {
		t.Fatalf("role = %v, want slave", slave.Role)
	}
	if !slave.Region.Header().SlaveAlive() {
		t.Fatalf("slave_alive not set after Resolve(slave)")
	}
}

func TestResolveSlaveFailsWithoutExistingRegion(t *testing.T) {
	name := testName(t)
	if _, err := Resolve(name, DesiredSlave, 100); err == nil {
		t.Fatalf("Resolve(slave) succeeded against a nonexistent region")
	}
}

func TestResolveAutoBecomesMasterWhenAbsent(t *testing.T) {
	name := testName(t)
	res, err := Resolve(name, DesiredAuto, 100)
	if err != nil {
		t.Fatalf("Resolve(auto): %v", err)
	}
	t.Cleanup(func() {
		res.Region.Close()
		Unlink(name)
	})
	if res.Role != RoleMaster {
		t.Fatalf("role = %v, want master", res.Role)
	}
	if !res.Region.IsCreator() {
		t.Fatalf("auto-created region not marked as creator")
	}
}

func TestResolveAutoBecomesSlaveWhenPresent(t *testing.T) {
	name := testName(t)
	master, err := Resolve(name, DesiredMaster, 100)
	if err != nil {
		t.Fatalf("Resolve(master): %v", err)
	}
	t.Cleanup(func() {
		master.Region.Close()
		Unlink(name)
	})

	res, err := Resolve(name, DesiredAuto, 100)
	if err != nil {
		t.Fatalf("Resolve(auto): %v", err)
	}
	defer res.Region.Close()
	if res.Role != RoleSlave {
		t.Fatalf("role = %v, want slave", res.Role)
	}
}

// TestMasterTakeoverPreservesSlaveState verifies that a second master
// attaching onto a region whose slave is still alive performs a takeover
// (generation bump, no region deletion) rather than recreating the region
// — which would orphan the slave's heartbeat and channel state.
func TestMasterTakeoverPreservesSlaveState(t *testing.T) {
	name := testName(t)

	first, err := Resolve(name, DesiredMaster, 100)
	if err != nil {
		t.Fatalf("Resolve(master) #1: %v", err)
	}
	t.Cleanup(func() { Unlink(name) })

	slave, err := Resolve(name, DesiredSlave, 100)
	if err != nil {
		t.Fatalf("Resolve(slave): %v", err)
	}
	defer slave.Region.Close()

	if err := slave.Region.SlaveToMaster().Write([]byte("still here")); err != nil {
		t.Fatalf("slave write: %v", err)
	}

	// First master "crashes" without cleaning up; close its fd only.
	first.Region.Close()

	second, err := Resolve(name, DesiredMaster, 100)
	if err != nil {
		t.Fatalf("Resolve(master) #2: %v", err)
	}
	defer second.Region.Close()

	if second.Region.Header().MasterGeneration() != 2 {
		t.Fatalf("generation = %d, want 2 after takeover", second.Region.Header().MasterGeneration())
	}
	if !second.Region.Header().SlaveAlive() {
		t.Fatalf("takeover cleared slave_alive, should have preserved it")
	}

	buf := make([]byte, 64)
	n, err := second.Region.SlaveToMaster().Read(buf)
	if err != nil {
		t.Fatalf("read after takeover: %v", err)
	}
	if string(buf[:n]) != "still here" {
		t.Fatalf("takeover lost pending channel data: got %q", buf[:n])
	}
}

func TestUnlinkIsIdempotent(t *testing.T) {
	name := testName(t)
	r, err := Create(name, 100)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.Close()

	if err := Unlink(name); err != nil {
		t.Fatalf("first Unlink: %v", err)
	}
	if err := Unlink(name); err != nil {
		t.Fatalf("second Unlink on an already-removed region: %v", err)
	}
}

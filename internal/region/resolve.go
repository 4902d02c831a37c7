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

import "fmt"

// DesiredRole is the role a caller asks the region layer to attach as.
// DesiredAuto additionally means "decide for me".
type DesiredRole int

const (
	DesiredMaster DesiredRole = iota
	DesiredSlave
	DesiredAuto
)

// Resolved is the outcome of Resolve: the attached region plus the role
// it was actually attached as (which, for DesiredAuto, may not be known
// until the existing region's state has been inspected).
type Resolved struct {
	Region *Region
	Role   Role
}

// Resolve attaches to (or creates) the named region according to desired,
// following the same role-resolution table the original single-writer
// implementation uses:
//
//   - Master: if a region already exists, open it and inspect whether a
//     slave is currently alive. If so, take it over in place (bump the
//     generation, keep the slave's heartbeat/alive state and both channel
//     blocks untouched). If not, delete it and create fresh. If no region
//     exists, create fresh.
//   - Slave: attach to an existing region only; fails if none exists.
//   - Auto: if a region exists, attach as Slave unconditionally — even if
//     the existing region's slave_alive flag is already set (a stale flag
//     from a crashed prior slave does not block a new one from attaching).
//     If none exists, create fresh and become Master.
func Resolve(name string, desired DesiredRole, staleThresholdMs uint32) (*Resolved, error) {
	switch desired {
	case DesiredMaster:
		return resolveMaster(name, staleThresholdMs)
	case DesiredSlave:
		return resolveSlave(name)
	case DesiredAuto:
		return resolveAuto(name, staleThresholdMs)
	default:
		return nil, fmt.Errorf("region: unknown desired role %d", desired)
	}
}

func resolveMaster(name string, staleThresholdMs uint32) (*Resolved, error) {
	if Exists(name) {
		r, err := Open(name)
		if err == nil {
			if r.Header().SlaveAlive() {
				r.AttachAsMaster(staleThresholdMs)
				return &Resolved{Region: r, Role: RoleMaster}, nil
			}
			r.Close()
		}
		// No live slave (or the existing region was unopenable/corrupt):
		// the region is abandoned. Delete and recreate.
		if err := Unlink(name); err != nil {
			return nil, fmt.Errorf("region: unlink stale %s: %w", name, err)
		}
	}
	r, err := Create(name, staleThresholdMs)
	if err != nil {
		return nil, err
	}
	r.AttachAsMaster(staleThresholdMs)
	return &Resolved{Region: r, Role: RoleMaster}, nil
}

func resolveSlave(name string) (*Resolved, error) {
	if !Exists(name) {
		return nil, fmt.Errorf("region: %s does not exist", name)
	}
	r, err := Open(name)
	if err != nil {
		return nil, err
	}
	r.AttachAsSlave()
	return &Resolved{Region: r, Role: RoleSlave}, nil
}

func resolveAuto(name string, staleThresholdMs uint32) (*Resolved, error) {
	if Exists(name) {
		r, err := Open(name)
		if err == nil {
			r.AttachAsSlave()
			return &Resolved{Region: r, Role: RoleSlave}, nil
		}
		// Existing region is unopenable/corrupt: clear it and become Master.
		if unlinkErr := Unlink(name); unlinkErr != nil {
			return nil, fmt.Errorf("region: unlink corrupt %s: %w", name, unlinkErr)
		}
	}
	r, err := Create(name, staleThresholdMs)
	if err != nil {
		return nil, err
	}
	r.AttachAsMaster(staleThresholdMs)
	return &Resolved{Region: r, Role: RoleMaster}, nil
}

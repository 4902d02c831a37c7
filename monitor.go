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

import (
	"time"

	"github.com/chongmx/eshm/internal/region"
)

// monitorInterval is how often the monitor goroutine re-checks the
// remote side's heartbeat.
const monitorInterval = 10 * time.Millisecond

// reattachQuiescence is how long the monitor waits, after nulling the
// Handle's region pointer, before unmapping the old region — long enough
// for any Read/Write/heartbeat call that already loaded the old pointer
// to finish against it (at least two heartbeat ticks and two monitor
// ticks at their respective intervals).
const reattachQuiescence = 20 * time.Millisecond

// monitorLoop watches the remote side's heartbeat counter and drives the
// liveness and, for a slave, reconnection state machine:
//
//   - Normal: the remote heartbeat is advancing within StaleThresholdMs.
//   - Stale-detected: it stopped advancing. DisconnectImmediately stops
//     this goroutine outright. A slave under DisconnectOnTimeout nulls the
//     region pointer and unmaps the region (Read/Write then fail with
//     CodeTimeout); in every other case the region stays attached and
//     only the stale flag is set.
//   - Reattaching (slave only): on each retry interval, tries to open a
//     region a restarted master has recreated or taken over,
//     distinguishing it from the same dead master's still-present region
//     by whether its heartbeat counter has moved from the last value this
//     side observed.
//   - Normal: a reattach succeeds, or, where the region stayed attached,
//     the remote heartbeat resumes advancing.
func (h *Handle) monitorLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	var lastRemoteHeartbeat uint64
	var lastChange = time.Now()
	var stale bool

	// Reconnect-mode state. These survive across ticks independently of
	// h.region: once a tick nulls the pointer (entering Detached), every
	// later tick must still be able to retry and to evaluate the two
	// termination budgets even though h.region.Load() now returns nil.
	var reconnecting bool
	var reconnectWaitStart time.Time
	var reconnectAttempts uint32
	var lastAttemptAt time.Time
	var baselineMasterHeartbeat uint64

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
		}

		if reconnecting {
			if h.cfg.ReconnectWaitMs != 0 &&
				time.Since(reconnectWaitStart) >= time.Duration(h.cfg.ReconnectWaitMs)*time.Millisecond {
				h.log.Info("reconnect wait budget exhausted, giving up")
				h.closed.Store(true)
				return
			}
			if h.cfg.MaxReconnectAttempts != 0 && reconnectAttempts >= h.cfg.MaxReconnectAttempts {
				h.log.Info("reconnect attempt budget exhausted, giving up")
				h.closed.Store(true)
				return
			}
			if time.Since(lastAttemptAt) < time.Duration(h.cfg.ReconnectRetryIntervalMs)*time.Millisecond {
				continue
			}
			lastAttemptAt = time.Now()
			reconnectAttempts++

			newReg, newHeartbeat, ok := h.tryReattach(baselineMasterHeartbeat)
			if !ok {
				continue
			}

			h.region.Store(newReg)
			reconnecting = false
			stale = false
			h.remoteIsStale.Store(false)
			lastRemoteHeartbeat = newHeartbeat
			lastChange = time.Now()
			h.log.Info("reattached", "generation", newReg.Header().MasterGeneration())
			continue
		}

		reg := h.region.Load()
		if reg == nil {
			continue
		}
		hdr := reg.Header()

		var otherHeartbeat uint64
		if h.role == RoleMaster {
			otherHeartbeat = hdr.SlaveHeartbeat()
		} else {
			otherHeartbeat = hdr.MasterHeartbeat()
		}

		if otherHeartbeat != lastRemoteHeartbeat {
			lastRemoteHeartbeat = otherHeartbeat
			lastChange = time.Now()
			if stale {
				stale = false
				h.remoteIsStale.Store(false)
				h.log.Info("remote heartbeat resumed")
			}
			continue
		}

		if time.Since(lastChange) < time.Duration(hdr.StaleThreshold())*time.Millisecond {
			continue
		}

		if !stale {
			stale = true
			h.remoteIsStale.Store(true)
			h.log.Info("remote heartbeat stale", "thresholdMs", hdr.StaleThreshold())
			if h.cfg.DisconnectBehavior == DisconnectImmediately {
				h.log.Info("disconnect behavior is immediate, stopping monitor")
				return
			}
		}

		if h.role != RoleSlave || h.cfg.DisconnectBehavior != DisconnectOnTimeout {
			// Only a slave under OnTimeout reattaches to a region a new
			// master created or took over. A master whose slave goes
			// stale has nothing to reconnect to — it just keeps running
			// and a new slave (or the same one, restarted) attaches to
			// it directly. DisconnectNever keeps reporting staleness via
			// RemoteAlive/Stats but never acts on it.
			continue
		}

		// Enter Detached: null the pointer, wait out the quiescence
		// window, then unmap. This happens exactly once per stale
		// transition; every subsequent tick until a reattach succeeds
		// or a budget is exhausted runs the reconnecting branch above.
		baselineMasterHeartbeat = lastRemoteHeartbeat
		h.region.Store(nil)
		time.Sleep(reattachQuiescence)
		reg.Close()

		reconnecting = true
		reconnectWaitStart = time.Now()
		reconnectAttempts = 0
		lastAttemptAt = time.Time{}
		h.log.Info("entering reconnect mode")
	}
}

// tryReattach makes one attempt to open the named region and accept it as
// the new master's. The region is accepted only if its master heartbeat
// differs from lastKnownMasterHeartbeat: an unchanged value means this is
// still the same dead master's region (no new master has taken it over
// yet), and the caller should retry on its next tick.
func (h *Handle) tryReattach(lastKnownMasterHeartbeat uint64) (newReg *region.Region, newHeartbeat uint64, ok bool) {
	if !region.Exists(h.cfg.Name) {
		return nil, 0, false
	}
	newReg, err := region.Open(h.cfg.Name)
	if err != nil {
		return nil, 0, false
	}
	mh := newReg.Header().MasterHeartbeat()
	if mh == lastKnownMasterHeartbeat {
		newReg.Close()
		return nil, 0, false
	}

	newReg.AttachAsSlave()
	return newReg, mh, true
}

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
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/chongmx/eshm/internal/channel"
	"github.com/chongmx/eshm/internal/diag"
	"github.com/chongmx/eshm/internal/region"
)

// Handle is an attached endpoint of one shared-memory channel. Write,
// Read, Stats, and RemoteAlive may be called concurrently with each other
// and with the background heartbeat and monitor goroutines, but each
// channel has a single producer and a single consumer: at most one
// goroutine at a time may Write, and at most one may Read or ReadContext,
// since the read position is tracked without synchronization.
type Handle struct {
	cfg  Config
	role Role // resolved concrete role: always RoleMaster or RoleSlave

	region atomic.Pointer[region.Region]

	lastSeenInboundWrite uint64

	statsMu             sync.Mutex
	lastMasterHeartbeat uint64
	lastSlaveHeartbeat  uint64

	remoteIsStale atomic.Bool

	log logr.Logger

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    atomic.Bool
}

// Init attaches to (creating or taking it over as needed) the region
// named by cfg.Name and starts its background heartbeat and monitor
// goroutines unless cfg.UseWorkers is false.
func Init(cfg Config) (*Handle, error) {
	if cfg.Name == "" {
		return nil, newError("Init", CodeInvalidParam, nil)
	}

	desired := region.DesiredAuto
	switch cfg.Role {
	case RoleMaster:
		desired = region.DesiredMaster
	case RoleSlave:
		desired = region.DesiredSlave
	case RoleAuto:
		desired = region.DesiredAuto
	default:
		return nil, newError("Init", CodeInvalidParam, nil)
	}

	resolved, err := region.Resolve(cfg.Name, desired, cfg.StaleThresholdMs)
	if err != nil {
		code := CodeShmCreate
		if desired == region.DesiredSlave {
			code = CodeShmAttach
		}
		return nil, newError("Init", code, err)
	}

	log := cfg.Logger
	if log.GetSink() == nil {
		log = diag.NewStderr()
	}

	h := &Handle{
		cfg:    cfg,
		role:   roleFromRegion(resolved.Role),
		log:    log,
		stopCh: make(chan struct{}),
	}
	h.region.Store(resolved.Region)

	h.log.Info("attached", "role", h.role, "creator", resolved.Region.IsCreator(),
		"generation", resolved.Region.Header().MasterGeneration(), "path", resolved.Region.Path())

	if cfg.UseWorkers {
		h.wg.Add(2)
		go h.heartbeatLoop()
		go h.monitorLoop()
	}

	return h, nil
}

func roleFromRegion(r region.Role) Role {
	if r == region.RoleMaster {
		return RoleMaster
	}
	return RoleSlave
}

func (h *Handle) regionRole() region.Role {
	if h.role == RoleMaster {
		return region.RoleMaster
	}
	return region.RoleSlave
}

// Role returns the concrete role this Handle attached as: RoleAuto is
// never returned, even if the Config that built the Handle asked for it.
func (h *Handle) Role() Role { return h.role }

// Write publishes data as this channel's outbound value. The previous
// value, if the remote side never read it, is lost.
func (h *Handle) Write(data []byte) error {
	if h.closed.Load() {
		return newError("Write", CodeNotInitialized, nil)
	}
	if len(data) > channel.MaxDataSize {
		return newError("Write", CodeBufferTooSmall, nil)
	}

	reg := h.region.Load()
	if reg == nil {
		if h.remoteIsStale.Load() {
			return newError("Write", CodeTimeout, nil)
		}
		return newError("Write", CodeNotInitialized, nil)
	}

	out := reg.OutboundFor(h.regionRole())
	if err := out.Write(data); err != nil {
		return newError("Write", CodeBufferTooSmall, err)
	}
	return nil
}

// ReadSimple reads with the original implementation's default 1000ms
// timeout. Like Read, a successful return of 0 bytes is valid and
// commonly used for pure event-triggering writes.
func (h *Handle) ReadSimple(buf []byte) (int, error) {
	return h.Read(buf, 1000)
}

// Read waits up to timeoutMs milliseconds for a new value to appear on
// this channel's inbound side and copies it into buf. timeoutMs == 0
// means non-blocking: return immediately with ErrNoData if nothing new
// is pending. A successful return can be 0 bytes — a zero-length payload
// is a valid value, often used purely to signal that a write happened.
func (h *Handle) Read(buf []byte, timeoutMs uint32) (int, error) {
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		n, err, done := h.tryRead(buf)
		if done {
			return n, err
		}
		if timeoutMs == 0 {
			return 0, newError("Read", CodeNoData, nil)
		}
		if time.Now().After(deadline) {
			return 0, newError("Read", CodeTimeout, nil)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// ReadContext is Read with a context deadline in place of a millisecond
// timeout, for callers already threading a context through their call
// chain.
func (h *Handle) ReadContext(ctx context.Context, buf []byte) (int, error) {
	for {
		n, err, done := h.tryRead(buf)
		if done {
			return n, err
		}
		select {
		case <-ctx.Done():
			return 0, newError("ReadContext", CodeTimeout, ctx.Err())
		case <-time.After(100 * time.Microsecond):
		}
	}
}

// tryRead performs one poll of the inbound channel. done is true when
// the caller should return (n, err) as-is; done is false when the caller
// should apply its own timeout/backoff policy and poll again.
func (h *Handle) tryRead(buf []byte) (n int, err error, done bool) {
	if h.closed.Load() {
		return 0, newError("Read", CodeNotInitialized, nil), true
	}

	reg := h.region.Load()
	if reg == nil {
		if h.remoteIsStale.Load() {
			return 0, newError("Read", CodeTimeout, nil), true
		}
		return 0, newError("Read", CodeNotInitialized, nil), true
	}

	if h.remoteIsStale.Load() && h.cfg.DisconnectBehavior == DisconnectImmediately {
		return 0, newError("Read", CodeMasterStale, nil), true
	}

	in := reg.InboundFor(h.regionRole())
	wc := in.WriteCount()
	if wc == h.lastSeenInboundWrite {
		return 0, nil, false
	}

	got, rerr := in.Read(buf)
	if rerr != nil {
		// Buffer too small: the pending value is preserved, and
		// lastSeenInboundWrite is deliberately not updated so a retry
		// with a bigger buffer still sees it as new.
		return 0, newError("Read", CodeBufferTooSmall, rerr), true
	}
	h.lastSeenInboundWrite = wc
	return got, nil, true
}

// RemoteAlive reports whether the remote side's heartbeat has advanced
// within the configured stale threshold.
func (h *Handle) RemoteAlive() bool {
	if h.region.Load() == nil {
		return false
	}
	return !h.remoteIsStale.Load()
}

// Stats returns a snapshot of the region's heartbeat and traffic
// counters. MasterHeartbeatDelta and SlaveHeartbeatDelta are measured
// against this Handle's previous call to Stats, not a fixed epoch.
func (h *Handle) Stats() (Stats, error) {
	reg := h.region.Load()
	if reg == nil {
		return Stats{}, newError("Stats", CodeNotInitialized, nil)
	}
	hdr := reg.Header()

	mh := hdr.MasterHeartbeat()
	sh := hdr.SlaveHeartbeat()

	h.statsMu.Lock()
	deltaM := mh - h.lastMasterHeartbeat
	deltaS := sh - h.lastSlaveHeartbeat
	h.lastMasterHeartbeat = mh
	h.lastSlaveHeartbeat = sh
	h.statsMu.Unlock()

	return Stats{
		MasterHeartbeat:      mh,
		SlaveHeartbeat:       sh,
		MasterPID:            hdr.MasterPid(),
		SlavePID:             hdr.SlavePid(),
		MasterAlive:          hdr.MasterAlive(),
		SlaveAlive:           hdr.SlaveAlive(),
		StaleThreshold:       hdr.StaleThreshold(),
		MasterHeartbeatDelta: deltaM,
		SlaveHeartbeatDelta:  deltaS,
		M2SWriteCount:        reg.MasterToSlave().WriteCount(),
		M2SReadCount:         reg.MasterToSlave().ReadCount(),
		S2MWriteCount:        reg.SlaveToMaster().WriteCount(),
		S2MReadCount:         reg.SlaveToMaster().ReadCount(),
	}, nil
}

// Close stops the background goroutines, clears this side's alive flag,
// unmaps the region, and — if this Handle created the region and
// cfg.AutoCleanup is set — removes its backing file. Close is idempotent:
// calling it more than once is safe and only the first call does work.
func (h *Handle) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()

		reg := h.region.Swap(nil)
		h.closed.Store(true)
		if reg == nil {
			return
		}

		reg.MarkDetached(h.regionRole())
		wasCreator := reg.IsCreator()
		if err := reg.Close(); err != nil {
			closeErr = newError("Close", CodeShmDetach, err)
		}
		if wasCreator && h.cfg.AutoCleanup {
			if err := region.Unlink(h.cfg.Name); err != nil && closeErr == nil {
				closeErr = newError("Close", CodeShmDelete, err)
			}
		}
		h.log.Info("destroyed", "autoCleanup", h.cfg.AutoCleanup, "creator", wasCreator)
	})
	return closeErr
}

// Destroy is an alias for Close, kept for callers translating directly
// from the original eshm_destroy name.
func (h *Handle) Destroy() error { return h.Close() }

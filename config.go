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

import "github.com/go-logr/logr"

// Config configures a Handle. The zero value is not valid — build one
// with DefaultConfig and override the fields that matter to the caller.
type Config struct {
	// Name identifies the region on the filesystem. Two handles with the
	// same Name talk to each other; handles with different Names never
	// see one another.
	Name string

	// Role selects which side of the channel this Handle is, or RoleAuto
	// to let Init decide from whether the region already exists.
	Role Role

	// DisconnectBehavior controls how Read/Write behave once the remote
	// side is judged stale.
	DisconnectBehavior DisconnectBehavior

	// StaleThresholdMs is how long, in milliseconds, the remote side's
	// heartbeat may stop advancing before it is judged stale.
	StaleThresholdMs uint32

	// ReconnectWaitMs bounds how long, in total, a slave spends trying
	// to reattach to a region after detecting its master stale. 0 means
	// wait indefinitely. Races independently against
	// MaxReconnectAttempts — whichever limit is hit first ends the
	// attempt.
	ReconnectWaitMs uint32

	// ReconnectRetryIntervalMs is the pause between reattach attempts.
	ReconnectRetryIntervalMs uint32

	// MaxReconnectAttempts bounds the number of reattach attempts. 0
	// means unlimited. Races independently against ReconnectWaitMs.
	MaxReconnectAttempts uint32

	// AutoCleanup removes the backing region file on Close when this
	// Handle created it.
	AutoCleanup bool

	// UseWorkers starts the background heartbeat and monitor goroutines.
	// Disabling this is only useful for tests that drive heartbeat and
	// liveness transitions by hand.
	UseWorkers bool

	// Logger receives lifecycle events: role resolution, stale
	// detection, reconnection attempts, and shutdown. The zero value
	// falls back to a stderr logger (see internal/diag).
	Logger logr.Logger
}

// DefaultConfig returns the configuration used when a caller wants
// everything else to be a reasonable default: auto role, a 100ms stale
// threshold, a 5 second reconnect budget tried every 100ms for up to 50
// attempts, auto cleanup, and background workers enabled.
func DefaultConfig(name string) Config {
	return Config{
		Name:                     name,
		Role:                     RoleAuto,
		DisconnectBehavior:       DisconnectOnTimeout,
		StaleThresholdMs:         100,
		ReconnectWaitMs:          5000,
		ReconnectRetryIntervalMs: 100,
		MaxReconnectAttempts:     50,
		AutoCleanup:              true,
		UseWorkers:               true,
	}
}

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

// Package diag provides the default logr.LogSink used when a Config does
// not supply its own Logger: a plain stderr writer with the lifecycle
// events this package's handle, heartbeat, and monitor goroutines report
// (attach, role resolution, stale detection, reconnection, shutdown).
package diag

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// NewStderr returns a logr.Logger that writes one line per call to
// stderr, prefixed with a timestamp and the key/value pairs passed to
// Info/Error.
func NewStderr() logr.Logger {
	return logr.New(&stderrSink{})
}

type stderrSink struct {
	mu   sync.Mutex
	name string
}

func (s *stderrSink) Init(info logr.RuntimeInfo) {}

func (s *stderrSink) Enabled(level int) bool { return true }

func (s *stderrSink) Info(level int, msg string, kv ...interface{}) {
	s.write("INFO", msg, kv...)
}

func (s *stderrSink) Error(err error, msg string, kv ...interface{}) {
	kv = append(kv, "error", err)
	s.write("ERROR", msg, kv...)
}

func (s *stderrSink) WithValues(kv ...interface{}) logr.LogSink {
	return s // stateless: values are not retained between calls
}

func (s *stderrSink) WithName(name string) logr.LogSink {
	child := &stderrSink{name: name}
	if s.name != "" {
		child.name = s.name + "." + name
	}
	return child
}

func (s *stderrSink) write(level, msg string, kv ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	if s.name != "" {
		fmt.Fprintf(os.Stderr, "%s %s [%s] %s", ts, level, s.name, msg)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s %s", ts, level, msg)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(os.Stderr, " %v=%v", kv[i], kv[i+1])
	}
	fmt.Fprintln(os.Stderr)
}

var _ logr.LogSink = (*stderrSink)(nil)

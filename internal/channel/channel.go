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

// Package channel implements the seqlock-protected, latest-value data
// blocks that carry payloads between the two sides of a region: one block
// for master-to-slave traffic, one for slave-to-master. A block is not a
// queue — a write overwrites whatever the previous write left, and a reader
// that never polls simply never sees the intermediate values.
package channel

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"
)

// MaxDataSize is the largest payload, in bytes, a single Write accepts.
const MaxDataSize = 4096

const rawBlockSize = 4 + 4 + MaxDataSize + 8 + 8

// padSize rounds rawBlockSize up to the next 64-byte boundary so consecutive
// blocks stay cache-line aligned.
const padSize = (64 - rawBlockSize%64) % 64

// BlockSize is the total size, in bytes, of one channel block as laid out
// in shared memory.
const BlockSize = rawBlockSize + padSize

// ErrTooLarge is returned by Write when the payload exceeds MaxDataSize.
var ErrTooLarge = errors.New("channel: payload exceeds MaxDataSize")

// ErrBufferTooSmall is returned by Read when the caller's buffer is smaller
// than the stored payload. The read counter is not advanced: the caller may
// retry with a larger buffer without losing the pending value.
var ErrBufferTooSmall = errors.New("channel: destination buffer too small")

// block is the fixed-offset layout of one channel, mapped directly onto
// shared memory. sequence is the seqlock word: even means stable, odd means
// a write is in progress. writeCount and readCount are monotonic counters a
// reader uses to detect whether a new value has been published since its
// last poll.
type block struct {
	sequence   uint32
	size       uint32
	data       [MaxDataSize]byte
	writeCount uint64
	readCount  uint64
	_          [padSize]byte
}

func init() {
	if unsafe.Sizeof(block{}) != BlockSize {
		panic(fmt.Sprintf("channel: block is %d bytes, want %d", unsafe.Sizeof(block{}), BlockSize))
	}
}

// View is a handle onto one channel block living inside a larger mapped
// region. It does not own the memory; the region owns the mapping's
// lifetime.
type View struct {
	b *block
}

// NewView constructs a View over the block starting at byte offset off
// within mem. mem must outlive the returned View.
func NewView(mem []byte, off uintptr) *View {
	return &View{b: (*block)(unsafe.Pointer(&mem[off]))}
}

// Reset zeroes the block's control words. Only the region's creator may
// call this, before the region is published to any peer.
func (v *View) Reset() {
	atomic.StoreUint32(&v.b.sequence, 0)
	atomic.StoreUint32(&v.b.size, 0)
	atomic.StoreUint64(&v.b.writeCount, 0)
	atomic.StoreUint64(&v.b.readCount, 0)
}

// Write publishes data as the block's new value using the seqlock write
// protocol: bump the sequence to odd, copy the payload under a store
// barrier on either side, then bump the sequence back to even. A reader
// that observes an odd sequence, or a sequence that changed mid-copy,
// retries rather than returning torn data.
func (v *View) Write(data []byte) error {
	if len(data) > MaxDataSize {
		return ErrTooLarge
	}
	atomic.AddUint32(&v.b.sequence, 1) // now odd: write in progress
	copy(v.b.data[:], data)
	atomic.StoreUint32(&v.b.size, uint32(len(data)))
	atomic.AddUint32(&v.b.sequence, 1) // now even: stable again
	atomic.AddUint64(&v.b.writeCount, 1)
	return nil
}

// Read performs one seqlock read attempt, retrying internally until it
// observes a stable (even) sequence before and after the copy. It returns
// the number of bytes copied into buf. ErrBufferTooSmall is returned
// without retrying and without advancing the read counter: the pending
// value is still there for a subsequent call with more room.
func (v *View) Read(buf []byte) (int, error) {
	for {
		seq1 := atomic.LoadUint32(&v.b.sequence)
		if seq1&1 != 0 {
			continue // write in progress, spin
		}
		size := atomic.LoadUint32(&v.b.size)
		if int(size) > len(buf) {
			return 0, ErrBufferTooSmall
		}
		copy(buf, v.b.data[:size])
		seq2 := atomic.LoadUint32(&v.b.sequence)
		if seq1 != seq2 {
			continue // writer ran concurrently, retry
		}
		atomic.AddUint64(&v.b.readCount, 1)
		return int(size), nil
	}
}

// WriteCount returns the number of Writes the block has ever accepted.
func (v *View) WriteCount() uint64 { return atomic.LoadUint64(&v.b.writeCount) }

// ReadCount returns the number of successful Reads the block has ever
// produced.
func (v *View) ReadCount() uint64 { return atomic.LoadUint64(&v.b.readCount) }

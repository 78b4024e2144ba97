// sdrdaemon - stream I/Q samples from a software defined radio over UDP
//  Copyright (C) 2021, The sdrdaemon project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package sdr

import "sync/atomic"

// FrameQueue is a bounded queue of sample batches between a source's
// delivery goroutine and the packetizer. Push copies the batch, never
// blocks, and drops the batch when the queue is full: a slow network
// path must not stall the hardware callback. Buffers are recycled to
// keep the steady state allocation free.
//
// One pushing and one pulling goroutine are assumed.
type FrameQueue struct {
	frames  chan []byte
	spent   chan []byte
	dropped uint64
}

// NewFrameQueue returns a queue holding at most depth batches.
func NewFrameQueue(depth int) *FrameQueue {
	return &FrameQueue{
		frames: make(chan []byte, depth),
		spent:  make(chan []byte, depth),
	}
}

// Push copies samples into the queue. It reports false, and counts the
// drop, when the queue is full.
func (q *FrameQueue) Push(samples []byte) bool {
	var buf []byte
	select {
	case buf = <-q.spent:
	default:
	}
	if cap(buf) < len(samples) {
		buf = make([]byte, len(samples))
	}
	buf = buf[:len(samples)]
	copy(buf, samples)

	select {
	case q.frames <- buf:
		return true
	default:
		atomic.AddUint64(&q.dropped, 1)
		select {
		case q.spent <- buf:
		default:
		}
		return false
	}
}

// Pull blocks until a batch is available or the queue is closed. The
// returned buffer belongs to the caller until handed back with
// Recycle.
func (q *FrameQueue) Pull() ([]byte, bool) {
	buf, ok := <-q.frames
	return buf, ok
}

// Recycle returns a pulled buffer for reuse by later pushes.
func (q *FrameQueue) Recycle(buf []byte) {
	select {
	case q.spent <- buf:
	default:
	}
}

// Dropped returns how many batches have been discarded because the
// queue was full.
func (q *FrameQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close wakes a blocked Pull. Pushing after Close is not allowed.
func (q *FrameQueue) Close() {
	close(q.frames)
}

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

// Package reassemble rebuilds contiguous sample frames from a stream
// of fixed size datagrams arriving with no ordering or delivery
// guarantees. A datagram whose leading bytes checksum as a header
// record starts a new frame, always, even mid way through collecting
// another; anything else is treated as payload for the frame in
// progress. Lost payload datagrams are therefore self healing: the
// broken frame is dropped at the next header boundary.
package reassemble

import (
	"time"

	"github.com/sdrdaemon/sdrdaemon/codec"
	"github.com/sdrdaemon/sdrdaemon/loglimiter"
	"github.com/sdrdaemon/sdrdaemon/protocol"
)

// Frame is one completed capture frame handed to the consumer.
type Frame struct {
	Header  protocol.Header
	Samples []byte // interleaved I/Q, FrameSamples pairs
}

// Stats counts what happened to the datagrams a Reassembler has seen.
// The counts are advisory; they play no part in protocol correctness.
type Stats struct {
	Headers       uint64 // datagrams accepted as frame headers
	PayloadBlocks uint64 // payload datagrams copied into a frame
	Completed     uint64 // frames fully reassembled
	Abandoned     uint64 // frames dropped because a new header arrived first
	NoHeader      uint64 // payload datagrams discarded while awaiting a header
	WrongSize     uint64 // datagrams dropped for not being the stream size
	CodecErrors   uint64 // payload datagrams whose codec transform failed
}

// Reassembler consumes candidate datagrams one at a time and produces
// completed frames. It is driven by a single goroutine; calls must not
// overlap.
type Reassembler struct {
	datagramSize int
	stats        Stats
	limiter      *loglimiter.LogLimiter

	// Collection state. A nil header means awaiting one.
	header          *protocol.Header
	dec             codec.Codec
	buf             []byte
	blocksRemaining int
	nextOffset      int
}

// New returns a Reassembler for a stream of datagramSize byte
// datagrams. The size is shared configuration with the sending end;
// datagrams of any other size are dropped unread.
func New(datagramSize int) *Reassembler {
	return &Reassembler{
		datagramSize: datagramSize,
		limiter:      loglimiter.New(time.Minute),
	}
}

// Accept processes one arriving datagram. It returns a completed frame
// when the datagram finishes one, otherwise nil. Malformed input never
// returns an error: every datagram either starts a frame, contributes
// to one, or is dropped.
func (r *Reassembler) Accept(datagram []byte) *Frame {
	if len(datagram) != r.datagramSize {
		r.stats.WrongSize++
		r.limiter.Printf("dropping %d byte datagram, expected %d", len(datagram), r.datagramSize)
		return nil
	}

	if h := protocol.ParseHeader(datagram); h != nil {
		r.startFrame(h)
		return nil
	}

	if r.header == nil {
		// Payload with no frame in progress; wait for a header.
		r.stats.NoHeader++
		return nil
	}
	return r.collect(datagram)
}

// startFrame adopts a freshly validated header, abandoning any frame
// in progress.
func (r *Reassembler) startFrame(h *protocol.Header) {
	if r.header != nil && r.blocksRemaining > 0 {
		r.stats.Abandoned++
		r.limiter.Printf("frame abandoned with %d blocks outstanding", r.blocksRemaining)
	}
	r.stats.Headers++

	dec, err := codec.ForIndicator(h.Indicator())
	if err != nil {
		// A header announcing a codec we cannot reverse is
		// useless; its payload gets discarded below as if no
		// header had arrived.
		r.limiter.Printf("header rejected: %v", err)
		r.reset()
		return
	}

	if r.buf == nil || cap(r.buf) < h.FrameBytes() {
		r.buf = make([]byte, h.FrameBytes())
	}
	r.header = h
	r.dec = dec
	r.buf = r.buf[:h.FrameBytes()]
	r.blocksRemaining = int(h.BlockCount)
	r.nextOffset = 0
}

// collect copies one payload datagram's samples into the reassembly
// buffer. Blocks are assumed to arrive in send order; the protocol
// carries no per-block sequence numbers, so reordering or duplication
// within a frame corrupts the result undetected.
func (r *Reassembler) collect(datagram []byte) *Frame {
	h := r.header

	nbSamples := h.SamplesPerBlock()
	if r.blocksRemaining == 1 && h.RemainderSamples > 0 {
		nbSamples = int(h.RemainderSamples)
	}
	span := nbSamples * 2 * h.SampleBytes()

	if err := r.dec.Decode(datagram, r.buf[r.nextOffset:r.nextOffset+span]); err != nil {
		// Corrupt transform payload. Drop this datagram's
		// contribution; the frame will be abandoned at the next
		// header if it never completes.
		r.stats.CodecErrors++
		r.limiter.Printf("payload transform failed: %v", err)
		return nil
	}

	r.stats.PayloadBlocks++
	r.nextOffset += span
	r.blocksRemaining--
	if r.blocksRemaining > 0 {
		return nil
	}

	// Frame complete. Hand the buffer off and require a fresh
	// header before collecting again.
	frame := &Frame{Header: *h, Samples: r.buf}
	r.buf = nil
	r.stats.Completed++
	r.reset()
	return frame
}

func (r *Reassembler) reset() {
	r.header = nil
	r.dec = nil
	r.blocksRemaining = 0
	r.nextOffset = 0
}

// Stats returns a snapshot of the reassembler's counters.
func (r *Reassembler) Stats() Stats {
	return r.stats
}

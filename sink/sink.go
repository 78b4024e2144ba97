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

// Package sink carves frames of I/Q samples into fixed size datagrams:
// one checksummed header datagram describing the frame, followed by
// the frame's sample blocks in order. Everything sent is exactly the
// configured datagram size so that header and payload datagrams look
// alike to the transport.
package sink

import (
	"fmt"
	"log"
	"time"

	"github.com/sdrdaemon/sdrdaemon/codec"
	"github.com/sdrdaemon/sdrdaemon/loglimiter"
	"github.com/sdrdaemon/sdrdaemon/protocol"
)

// DatagramSender sends one datagram towards the receiver. Delivery is
// fire and forget; the destination is bound at construction.
type DatagramSender interface {
	Send(p []byte) error
}

// Config fixes the stream parameters shared out of band with the
// receiving end.
type Config struct {
	CenterFrequency uint64
	SampleRate      uint32
	SampleBytes     int // bytes per I or Q component
	SampleBits      int // effective ADC bits
	DatagramSize    int
}

func (conf Config) validate() error {
	if conf.SampleBytes < 1 || conf.SampleBytes > 15 {
		return fmt.Errorf("sample bytes must be 1 to 15, got %d", conf.SampleBytes)
	}
	if conf.DatagramSize < protocol.HeaderSize {
		return fmt.Errorf("datagram size %d smaller than header record", conf.DatagramSize)
	}
	if conf.DatagramSize/(2*conf.SampleBytes) == 0 {
		return fmt.Errorf("datagram size %d too small for %d byte samples", conf.DatagramSize, conf.SampleBytes)
	}
	return nil
}

// Sink packetizes sample frames. It is driven by a single goroutine;
// calls must not overlap.
type Sink struct {
	sender DatagramSender
	conf   Config
	codec  codec.Codec

	headerBuf []byte // one datagram, header + padding
	padBuf    []byte // one datagram, for partial blocks
	encoded   []byte // codec output, blockCount datagrams worth

	lastSamples int
	lastShape   protocol.Header

	limiter *loglimiter.LogLimiter
	nowFunc func() time.Time
}

// New returns a Sink writing to sender. A nil codec sends samples
// untransformed.
func New(sender DatagramSender, conf Config, c codec.Codec) (*Sink, error) {
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &Sink{
		sender:    sender,
		conf:      conf,
		codec:     c,
		headerBuf: make([]byte, conf.DatagramSize),
		padBuf:    make([]byte, conf.DatagramSize),
		limiter:   loglimiter.New(time.Minute),
		nowFunc:   time.Now,
	}, nil
}

// Write emits one frame: a header datagram, then the frame's complete
// sample blocks, then a zero padded remainder block if the frame does
// not divide evenly. samples is the frame's interleaved I/Q bytes and
// must be a whole number of sample pairs.
func (s *Sink) Write(samples []byte) error {
	pairBytes := 2 * s.conf.SampleBytes
	if len(samples) == 0 || len(samples)%pairBytes != 0 {
		return fmt.Errorf("frame of %d bytes is not a whole number of %d byte sample pairs", len(samples), pairBytes)
	}
	nbSamples := len(samples) / pairBytes

	samplesPerBlock, completeBlocks, remainder := protocol.Geometry(nbSamples, s.conf.DatagramSize, s.conf.SampleBytes)
	blockCount := completeBlocks
	if remainder > 0 {
		blockCount++
	}

	if nbSamples != s.lastSamples {
		s.resize(nbSamples, blockCount)
	}

	indicator := codec.IndicatorNone
	if s.codec != nil {
		if s.encodeBlocks(samples, samplesPerBlock, completeBlocks, remainder) {
			indicator = s.codec.Indicator()
		} else {
			// Emit this frame untransformed; the header's
			// indicator bits tell the receiver so.
			s.limiter.Printf("codec failed, sending frame uncompressed")
		}
	}

	now := s.nowFunc()
	header := protocol.Header{
		CenterFrequency:  s.conf.CenterFrequency,
		SampleRate:       s.conf.SampleRate,
		SampleEncoding:   uint8(s.conf.SampleBytes) | indicator<<4,
		SampleBits:       uint8(s.conf.SampleBits),
		DatagramSize:     uint16(s.conf.DatagramSize),
		FrameSamples:     uint32(nbSamples),
		BlockCount:       uint16(blockCount),
		RemainderSamples: uint16(remainder),
		CompleteBlocks:   uint16(completeBlocks),
		Seconds:          uint32(now.Unix()),
		Micros:           uint32(now.Nanosecond() / 1000),
	}
	s.logShapeChange(header)

	header.Marshal(s.headerBuf)
	if err := s.sender.Send(s.headerBuf); err != nil {
		return err
	}

	if indicator != codec.IndicatorNone {
		for i := 0; i < blockCount; i++ {
			if err := s.sender.Send(s.encoded[i*s.conf.DatagramSize : (i+1)*s.conf.DatagramSize]); err != nil {
				return err
			}
		}
		return nil
	}

	blockBytes := samplesPerBlock * pairBytes
	for i := 0; i < completeBlocks; i++ {
		block := samples[i*blockBytes : (i+1)*blockBytes]
		if blockBytes == s.conf.DatagramSize {
			if err := s.sender.Send(block); err != nil {
				return err
			}
		} else if err := s.sendPadded(block); err != nil {
			return err
		}
	}
	if remainder > 0 {
		if err := s.sendPadded(samples[completeBlocks*blockBytes:]); err != nil {
			return err
		}
	}
	return nil
}

// sendPadded copies block into a datagram sized buffer with a zeroed
// tail. The padding bytes carry no information; the receiver only
// reads the sample span described by the header.
func (s *Sink) sendPadded(block []byte) error {
	n := copy(s.padBuf, block)
	for i := n; i < len(s.padBuf); i++ {
		s.padBuf[i] = 0
	}
	return s.sender.Send(s.padBuf)
}

// encodeBlocks runs the codec over every block of the frame into the
// encoded scratch buffer. It reports false if any block could not be
// transformed, in which case the frame falls back to raw samples:
// the indicator bits must describe all of a frame's payload or none
// of it.
func (s *Sink) encodeBlocks(samples []byte, samplesPerBlock, completeBlocks, remainder int) bool {
	pairBytes := 2 * s.conf.SampleBytes
	blockBytes := samplesPerBlock * pairBytes
	for i := 0; i < completeBlocks; i++ {
		dst := s.encoded[i*s.conf.DatagramSize : (i+1)*s.conf.DatagramSize]
		if err := s.codec.Encode(samples[i*blockBytes:(i+1)*blockBytes], dst); err != nil {
			return false
		}
	}
	if remainder > 0 {
		dst := s.encoded[completeBlocks*s.conf.DatagramSize:]
		if err := s.codec.Encode(samples[completeBlocks*blockBytes:], dst); err != nil {
			return false
		}
	}
	return true
}

// resize adjusts the codec scratch buffer for a new frame shape. This
// happens only when the per-frame sample count changes, not every
// frame.
func (s *Sink) resize(nbSamples, blockCount int) {
	if s.codec != nil {
		s.encoded = make([]byte, blockCount*s.conf.DatagramSize)
	}
	s.lastSamples = nbSamples
	log.Printf("frame shape: %d samples, %d bytes per frame",
		nbSamples, nbSamples*2*s.conf.SampleBytes)
}

// logShapeChange logs the header tuple whenever anything other than
// the timestamp changes between frames.
func (s *Sink) logShapeChange(h protocol.Header) {
	shape := h
	shape.Seconds = 0
	shape.Micros = 0
	if shape == s.lastShape {
		return
	}
	s.lastShape = shape
	log.Printf("meta: %d Hz at %d Hz, %d byte/%d bit samples, %d byte datagrams, %d samples in %d blocks (%d complete, %d remainder)",
		h.CenterFrequency, h.SampleRate, h.SampleBytes(), h.SampleBits,
		h.DatagramSize, h.FrameSamples, h.BlockCount, h.CompleteBlocks, h.RemainderSamples)
}

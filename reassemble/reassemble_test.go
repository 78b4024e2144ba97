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

package reassemble

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrdaemon/sdrdaemon/codec"
	"github.com/sdrdaemon/sdrdaemon/protocol"
	"github.com/sdrdaemon/sdrdaemon/sink"
)

const testDatagramSize = 1024

type collector struct {
	datagrams [][]byte
}

func (c *collector) Send(p []byte) error {
	d := make([]byte, len(p))
	copy(d, p)
	c.datagrams = append(c.datagrams, d)
	return nil
}

// packetize runs a frame of samples through a real Sink and returns
// the emitted datagrams.
func packetize(t *testing.T, samples []byte, payloadCodec codec.Codec) [][]byte {
	c := new(collector)
	s, err := sink.New(c, sink.Config{
		CenterFrequency: 106100000,
		SampleRate:      48000,
		SampleBytes:     2,
		SampleBits:      16,
		DatagramSize:    testDatagramSize,
	}, payloadCodec)
	require.NoError(t, err)
	require.NoError(t, s.Write(samples))
	return c.datagrams
}

func rampFrame(nbSamples int, seed uint16) []byte {
	buf := make([]byte, nbSamples*4)
	for i := 0; i < nbSamples; i++ {
		binary.LittleEndian.PutUint16(buf[i*4:], seed+uint16(i))
		binary.LittleEndian.PutUint16(buf[i*4+2:], seed-uint16(i))
	}
	return buf
}

func feed(r *Reassembler, datagrams [][]byte) []*Frame {
	var frames []*Frame
	for _, d := range datagrams {
		if f := r.Accept(d); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

func TestRoundTrip(t *testing.T) {
	// With no loss, reassembly reproduces the sample stream bit
	// for bit, remainder frame or not.
	for _, nbSamples := range []int{2000, 1024, 256, 100, 1} {
		samples := rampFrame(nbSamples, 7)
		r := New(testDatagramSize)

		frames := feed(r, packetize(t, samples, nil))
		require.Len(t, frames, 1, "%d samples", nbSamples)
		assert.Equal(t, samples, frames[0].Samples, "%d samples", nbSamples)
		assert.Equal(t, uint32(nbSamples), frames[0].Header.FrameSamples)
	}
}

func TestRoundTripCompressed(t *testing.T) {
	samples := make([]byte, 2000*4)
	for i := range samples {
		samples[i] = byte(i / 64)
	}
	r := New(testDatagramSize)

	datagrams := packetize(t, samples, codec.NewLZ4())
	h := protocol.ParseHeader(datagrams[0])
	require.NotNil(t, h)
	require.Equal(t, codec.IndicatorLZ4, h.Indicator())

	frames := feed(r, datagrams)
	require.Len(t, frames, 1)
	assert.Equal(t, samples, frames[0].Samples)
}

func TestResyncAfterLoss(t *testing.T) {
	// Losing payload datagrams from one frame abandons it; the
	// next frame still assembles cleanly from its own header.
	first := packetize(t, rampFrame(2000, 1), nil)
	second := packetize(t, rampFrame(2000, 1000), nil)

	for lost := 1; lost < len(first)-1; lost++ {
		r := New(testDatagramSize)

		// Drop `lost` payload datagrams off the tail.
		var stream [][]byte
		stream = append(stream, first[:len(first)-lost]...)
		stream = append(stream, second...)

		frames := feed(r, stream)
		require.Len(t, frames, 1, "lost=%d", lost)
		assert.Equal(t, rampFrame(2000, 1000), frames[0].Samples, "lost=%d", lost)

		stats := r.Stats()
		assert.Equal(t, uint64(1), stats.Abandoned, "lost=%d", lost)
		assert.Equal(t, uint64(1), stats.Completed, "lost=%d", lost)
		assert.Equal(t, uint64(2), stats.Headers, "lost=%d", lost)
	}
}

func TestHeaderSupersedesMidCollection(t *testing.T) {
	// Header arrives, then 3 of 8 payload datagrams, then the next
	// frame's header: the first frame must never be delivered.
	first := packetize(t, rampFrame(2000, 1), nil)
	second := packetize(t, rampFrame(2000, 2000), nil)

	r := New(testDatagramSize)
	var stream [][]byte
	stream = append(stream, first[:4]...) // header + 3 payload
	stream = append(stream, second...)

	frames := feed(r, stream)
	require.Len(t, frames, 1)
	assert.Equal(t, rampFrame(2000, 2000), frames[0].Samples)
	assert.Equal(t, uint64(1), r.Stats().Abandoned)
}

func TestPayloadBeforeFirstHeaderDiscarded(t *testing.T) {
	datagrams := packetize(t, rampFrame(2000, 3), nil)

	r := New(testDatagramSize)

	// Stray payload before any header: dropped, no state.
	for _, d := range datagrams[1:] {
		assert.Nil(t, r.Accept(d))
	}
	assert.Equal(t, uint64(8), r.Stats().NoHeader)

	// The stream then starts properly and works.
	frames := feed(r, datagrams)
	require.Len(t, frames, 1)
	assert.Equal(t, rampFrame(2000, 3), frames[0].Samples)
}

func TestWrongSizeDropped(t *testing.T) {
	r := New(testDatagramSize)

	assert.Nil(t, r.Accept(make([]byte, testDatagramSize-1)))
	assert.Nil(t, r.Accept(make([]byte, testDatagramSize+1)))
	assert.Nil(t, r.Accept(nil))
	assert.Equal(t, uint64(3), r.Stats().WrongSize)

	// A wrong sized datagram mid frame must not advance
	// collection.
	datagrams := packetize(t, rampFrame(2000, 9), nil)
	var stream [][]byte
	stream = append(stream, datagrams[:3]...)
	stream = append(stream, make([]byte, 17))
	stream = append(stream, datagrams[3:]...)

	frames := feed(r, stream)
	require.Len(t, frames, 1)
	assert.Equal(t, rampFrame(2000, 9), frames[0].Samples)
}

func TestRemainderPaddingIgnored(t *testing.T) {
	samples := rampFrame(2000, 5)
	datagrams := packetize(t, samples, nil)

	// Scribble on the remainder datagram's unused tail; the
	// reconstructed samples must not change.
	last := datagrams[len(datagrams)-1]
	for i := 208 * 4; i < len(last); i++ {
		last[i] = 0x77
	}

	r := New(testDatagramSize)
	frames := feed(r, datagrams)
	require.Len(t, frames, 1)
	assert.Equal(t, samples, frames[0].Samples)
}

func TestDuplicatedPayloadNotDoubleCounted(t *testing.T) {
	// A duplicated payload datagram is copied again at the next
	// offset and counted again; the protocol carries no sequence
	// numbers to detect it. The frame must still complete exactly
	// once and at the right length (the content is corrupt; that
	// is the documented limitation).
	datagrams := packetize(t, rampFrame(2000, 11), nil)

	var stream [][]byte
	stream = append(stream, datagrams[:2]...)  // header + block 0
	stream = append(stream, datagrams[1])      // block 0 again
	stream = append(stream, datagrams[2:]...)  // rest of the frame

	r := New(testDatagramSize)
	var frames []*Frame
	for i, d := range stream {
		if len(stream)-1 == i {
			// The duplicate consumed a block slot, so the
			// true last datagram arrives after completion
			// and is discarded as pre-sync payload.
			break
		}
		if f := r.Accept(d); f != nil {
			frames = append(frames, f)
		}
	}

	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Samples, 2000*4)
	assert.Equal(t, uint64(1), r.Stats().Completed)
}

func TestCodecFailureRecoversLocally(t *testing.T) {
	samples := make([]byte, 2000*4)
	for i := range samples {
		samples[i] = byte(i / 64)
	}
	datagrams := packetize(t, samples, codec.NewLZ4())

	// Corrupt one compressed payload datagram without making it a
	// header.
	bad := datagrams[3]
	for i := 4; i < 60; i++ {
		bad[i] ^= 0xff
	}
	require.Nil(t, protocol.ParseHeader(bad))

	r := New(testDatagramSize)
	frames := feed(r, datagrams)

	// The frame either fails its transform (contribution dropped,
	// frame incomplete) or decodes to garbage of the right length.
	// Either way the reassembler keeps running and the next frame
	// is unaffected.
	next := packetize(t, samples, codec.NewLZ4())
	frames = append(frames, feed(r, next)...)
	require.NotEmpty(t, frames)
	assert.Equal(t, samples, frames[len(frames)-1].Samples)
}

func TestUnknownIndicatorRejectsFrame(t *testing.T) {
	datagrams := packetize(t, rampFrame(2000, 13), nil)

	// Forge a header announcing an unassigned codec.
	h := protocol.ParseHeader(datagrams[0])
	require.NotNil(t, h)
	h.SampleEncoding = h.SampleEncoding&0x0f | 0xe0
	forged := make([]byte, testDatagramSize)
	h.Marshal(forged)

	r := New(testDatagramSize)
	assert.Nil(t, r.Accept(forged))
	for _, d := range datagrams[1:] {
		assert.Nil(t, r.Accept(d))
	}
	assert.Zero(t, r.Stats().Completed)

	// A later, honest frame still works.
	frames := feed(r, datagrams)
	require.Len(t, frames, 1)
}

func TestStatsCounts(t *testing.T) {
	datagrams := packetize(t, rampFrame(2000, 17), nil)

	r := New(testDatagramSize)
	feed(r, datagrams)
	feed(r, datagrams)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Headers)
	assert.Equal(t, uint64(16), stats.PayloadBlocks)
	assert.Equal(t, uint64(2), stats.Completed)
	assert.Equal(t, uint64(0), stats.Abandoned)
}

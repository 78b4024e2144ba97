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

package sink

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdrdaemon/sdrdaemon/codec"
	"github.com/sdrdaemon/sdrdaemon/protocol"
)

type recordingSender struct {
	datagrams [][]byte
	failAfter int // fail at this send count; 0 means never
}

func (r *recordingSender) Send(p []byte) error {
	if r.failAfter > 0 && len(r.datagrams)+1 >= r.failAfter {
		return errors.New("network unhappy")
	}
	c := make([]byte, len(p))
	copy(c, p)
	r.datagrams = append(r.datagrams, c)
	return nil
}

func testConfig() Config {
	return Config{
		CenterFrequency: 106100000,
		SampleRate:      48000,
		SampleBytes:     2,
		SampleBits:      16,
		DatagramSize:    1024,
	}
}

// rampFrame returns nbSamples I/Q pairs with a recognisable pattern.
func rampFrame(nbSamples int) []byte {
	buf := make([]byte, nbSamples*4)
	for i := 0; i < nbSamples; i++ {
		binary.LittleEndian.PutUint16(buf[i*4:], uint16(i))
		binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(^i))
	}
	return buf
}

func TestFrameShape(t *testing.T) {
	// 1024 byte datagrams, 2 byte components, 2000 samples:
	// 7 complete blocks of 256 samples plus 208 remainder samples,
	// so 1 header + 8 payload datagrams.
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(rampFrame(2000)))
	require.Len(t, sender.datagrams, 9)

	for i, d := range sender.datagrams {
		assert.Len(t, d, 1024, "datagram %d", i)
	}

	h := protocol.ParseHeader(sender.datagrams[0])
	require.NotNil(t, h, "first datagram must be the header")
	assert.Equal(t, uint64(106100000), h.CenterFrequency)
	assert.Equal(t, uint32(48000), h.SampleRate)
	assert.Equal(t, 2, h.SampleBytes())
	assert.Equal(t, uint8(0), h.Indicator())
	assert.Equal(t, uint16(1024), h.DatagramSize)
	assert.Equal(t, uint32(2000), h.FrameSamples)
	assert.Equal(t, uint16(8), h.BlockCount)
	assert.Equal(t, uint16(7), h.CompleteBlocks)
	assert.Equal(t, uint16(208), h.RemainderSamples)

	for i, d := range sender.datagrams[1:] {
		assert.Nil(t, protocol.ParseHeader(d), "payload datagram %d parsed as header", i)
	}
}

func TestPayloadContent(t *testing.T) {
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), nil)
	require.NoError(t, err)

	samples := rampFrame(2000)
	require.NoError(t, s.Write(samples))

	// Complete blocks carry consecutive sample runs.
	for i := 0; i < 7; i++ {
		assert.Equal(t, samples[i*1024:(i+1)*1024], sender.datagrams[1+i])
	}

	// The remainder datagram carries the tail samples then zero
	// padding.
	last := sender.datagrams[8]
	assert.Equal(t, samples[7*1024:], last[:208*4])
	for i := 208 * 4; i < len(last); i++ {
		require.Zero(t, last[i], "padding byte %d", i)
	}
}

func TestEvenFrame(t *testing.T) {
	// 1024 samples divide exactly into 4 blocks; no remainder
	// datagram is sent.
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, s.Write(rampFrame(1024)))
	require.Len(t, sender.datagrams, 5)

	h := protocol.ParseHeader(sender.datagrams[0])
	require.NotNil(t, h)
	assert.Equal(t, uint16(4), h.BlockCount)
	assert.Equal(t, uint16(4), h.CompleteBlocks)
	assert.Equal(t, uint16(0), h.RemainderSamples)
}

// toneFrame returns a highly repetitive frame, guaranteed to compress.
func toneFrame(nbSamples int) []byte {
	buf := make([]byte, nbSamples*4)
	for i := 0; i < nbSamples; i++ {
		binary.LittleEndian.PutUint16(buf[i*4:], 0x1234)
		binary.LittleEndian.PutUint16(buf[i*4+2:], 0xabcd)
	}
	return buf
}

func TestCompressedFrame(t *testing.T) {
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), codec.NewLZ4())
	require.NoError(t, err)

	require.NoError(t, s.Write(toneFrame(2000)))
	require.Len(t, sender.datagrams, 9)

	h := protocol.ParseHeader(sender.datagrams[0])
	require.NotNil(t, h)
	assert.Equal(t, codec.IndicatorLZ4, h.Indicator())

	// Each payload datagram decodes back to its sample block.
	samples := toneFrame(2000)
	c := codec.NewLZ4()
	for i := 0; i < 7; i++ {
		block := make([]byte, 1024)
		require.NoError(t, c.Decode(sender.datagrams[1+i], block))
		assert.Equal(t, samples[i*1024:(i+1)*1024], block)
	}
	tail := make([]byte, 208*4)
	require.NoError(t, c.Decode(sender.datagrams[8], tail))
	assert.Equal(t, samples[7*1024:], tail)
}

func TestIncompressibleFallsBackRaw(t *testing.T) {
	// Full blocks leave no room for the length prefix, so a frame
	// whose blocks will not shrink is sent untransformed, with the
	// indicator bits saying so.
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), codec.NewLZ4())
	require.NoError(t, err)

	samples := make([]byte, 2000*4)
	rand.New(rand.NewSource(99)).Read(samples)
	require.NoError(t, s.Write(samples))
	require.Len(t, sender.datagrams, 9)

	h := protocol.ParseHeader(sender.datagrams[0])
	require.NotNil(t, h)
	assert.Equal(t, codec.IndicatorNone, h.Indicator())
	for i := 0; i < 7; i++ {
		assert.Equal(t, samples[i*1024:(i+1)*1024], sender.datagrams[1+i])
	}
}

func TestRaggedFrame(t *testing.T) {
	sender := new(recordingSender)
	s, err := New(sender, testConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, s.Write(rampFrame(11)[:41])) // not a whole pair
	assert.Error(t, s.Write(nil))
	assert.Empty(t, sender.datagrams)
}

func TestSendFailure(t *testing.T) {
	sender := &recordingSender{failAfter: 3}
	s, err := New(sender, testConfig(), nil)
	require.NoError(t, err)

	assert.Error(t, s.Write(rampFrame(2000)))
}

func TestBadConfig(t *testing.T) {
	_, err := New(new(recordingSender), Config{SampleBytes: 0, DatagramSize: 1024}, nil)
	assert.Error(t, err)

	_, err = New(new(recordingSender), Config{SampleBytes: 2, DatagramSize: 16}, nil)
	assert.Error(t, err)
}

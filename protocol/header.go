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

package protocol

import (
	"encoding/binary"
	"hash/crc64"
)

// HeaderSize is the number of bytes a marshalled Header occupies at the
// start of a header datagram. The remaining bytes of the datagram are
// unused padding so that header and payload datagrams are the same size
// on the wire.
const HeaderSize = 42

// checksumSpan is the byte range of a marshalled Header covered by the
// trailing checksum field (everything before the checksum itself).
const checksumSpan = HeaderSize - 8

// Header describes the shape of one frame of I/Q samples. It is sent
// once per frame, ahead of the frame's payload datagrams. A datagram is
// recognised as a header purely by its checksum agreeing; there is no
// other type marker on the wire.
type Header struct {
	CenterFrequency  uint64 // tuned frequency (Hz)
	SampleRate       uint32 // effective sample rate (Hz)
	SampleEncoding   uint8  // low nibble: bytes per I or Q component; high nibble: codec indicator
	SampleBits       uint8  // effective ADC bits (informational)
	DatagramSize     uint16 // size of every datagram in this stream
	FrameSamples     uint32 // I/Q sample pairs in the frame
	BlockCount       uint16 // payload datagrams making up the frame
	RemainderSamples uint16 // samples in the final, partly filled datagram
	CompleteBlocks   uint16 // payload datagrams full of samples
	Seconds          uint32 // capture timestamp
	Micros           uint32
}

var crcTable = crc64.MakeTable(crc64.ECMA)

// Checksum computes the 64 bit checksum used both for header integrity
// and for telling header datagrams apart from payload.
func Checksum(b []byte) uint64 {
	return crc64.Checksum(b, crcTable)
}

// SampleBytes returns the number of bytes used for each I or Q
// component.
func (h *Header) SampleBytes() int {
	return int(h.SampleEncoding & 0x0f)
}

// Indicator returns the codec indicator bits from the high nibble of
// the sample encoding field.
func (h *Header) Indicator() uint8 {
	return h.SampleEncoding >> 4
}

// SamplesPerBlock returns how many I/Q sample pairs fit in one payload
// datagram.
func (h *Header) SamplesPerBlock() int {
	return int(h.DatagramSize) / (2 * h.SampleBytes())
}

// FrameBytes returns the size of the frame's reconstructed sample
// buffer.
func (h *Header) FrameBytes() int {
	return int(h.FrameSamples) * 2 * h.SampleBytes()
}

// Marshal writes the packed header, including its checksum, into the
// first HeaderSize bytes of buf.
func (h *Header) Marshal(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:], h.CenterFrequency)
	binary.LittleEndian.PutUint32(buf[8:], h.SampleRate)
	buf[12] = h.SampleEncoding
	buf[13] = h.SampleBits
	binary.LittleEndian.PutUint16(buf[14:], h.DatagramSize)
	binary.LittleEndian.PutUint32(buf[16:], h.FrameSamples)
	binary.LittleEndian.PutUint16(buf[20:], h.BlockCount)
	binary.LittleEndian.PutUint16(buf[22:], h.RemainderSamples)
	binary.LittleEndian.PutUint16(buf[24:], h.CompleteBlocks)
	binary.LittleEndian.PutUint32(buf[26:], h.Seconds)
	binary.LittleEndian.PutUint32(buf[30:], h.Micros)
	binary.LittleEndian.PutUint64(buf[34:], Checksum(buf[:checksumSpan]))
}

// ParseHeader attempts to interpret the leading bytes of a datagram as
// a header record. It returns nil unless the record's checksum agrees;
// a nil result means the datagram is payload (or noise), never an
// error. This is the protocol's only framing mechanism.
func ParseHeader(datagram []byte) *Header {
	if len(datagram) < HeaderSize {
		return nil
	}
	stored := binary.LittleEndian.Uint64(datagram[34:])
	if stored != Checksum(datagram[:checksumSpan]) {
		return nil
	}
	h := &Header{
		CenterFrequency:  binary.LittleEndian.Uint64(datagram[0:]),
		SampleRate:       binary.LittleEndian.Uint32(datagram[8:]),
		SampleEncoding:   datagram[12],
		SampleBits:       datagram[13],
		DatagramSize:     binary.LittleEndian.Uint16(datagram[14:]),
		FrameSamples:     binary.LittleEndian.Uint32(datagram[16:]),
		BlockCount:       binary.LittleEndian.Uint16(datagram[20:]),
		RemainderSamples: binary.LittleEndian.Uint16(datagram[22:]),
		CompleteBlocks:   binary.LittleEndian.Uint16(datagram[24:]),
		Seconds:          binary.LittleEndian.Uint32(datagram[26:]),
		Micros:           binary.LittleEndian.Uint32(datagram[30:]),
	}
	if !h.valid() {
		return nil
	}
	return h
}

// valid rejects header records whose geometry would break the
// reassembler's offset arithmetic. A crafted or corrupted record that
// happens to carry a matching checksum must still not cause a crash.
func (h *Header) valid() bool {
	sampleBytes := h.SampleBytes()
	if sampleBytes == 0 || h.DatagramSize == 0 {
		return false
	}
	samplesPerBlock := h.SamplesPerBlock()
	if samplesPerBlock == 0 {
		return false
	}
	extra := uint16(0)
	if h.RemainderSamples > 0 {
		extra = 1
	}
	if h.BlockCount != h.CompleteBlocks+extra {
		return false
	}
	if int(h.RemainderSamples) >= samplesPerBlock {
		return false
	}
	expected := uint32(int(h.CompleteBlocks)*samplesPerBlock) + uint32(h.RemainderSamples)
	return h.FrameSamples == expected
}

// Geometry splits a frame of nbSamples I/Q pairs into payload
// datagrams of datagramSize bytes with sampleBytes bytes per
// component.
func Geometry(nbSamples, datagramSize, sampleBytes int) (samplesPerBlock, completeBlocks, remainder int) {
	samplesPerBlock = datagramSize / (2 * sampleBytes)
	completeBlocks = nbSamples / samplesPerBlock
	remainder = nbSamples % samplesPerBlock
	return
}

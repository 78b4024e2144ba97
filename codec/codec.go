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

// Package codec provides the optional payload transforms signalled by
// the indicator nibble of the header's sample encoding field. A
// transform is applied uniformly to every payload datagram of a frame
// by the sender, and reversed per datagram by the receiver before the
// samples are copied into the reassembly buffer.
package codec

import "fmt"

// Indicator values carried in the high nibble of the sample encoding
// field.
const (
	IndicatorNone uint8 = 0x0
	IndicatorLZ4  uint8 = 0x1
)

// Codec transforms the sample bytes of a single payload datagram.
type Codec interface {
	// Indicator returns the nibble value announcing this codec in
	// the frame header.
	Indicator() uint8

	// Encode writes the transformed form of block into dst, which
	// is a whole datagram's worth of bytes. The unused tail of dst
	// is zeroed.
	Encode(block, dst []byte) error

	// Decode reverses Encode, writing exactly len(block) sample
	// bytes into block from the datagram's bytes. Errors indicate a
	// corrupt datagram; the caller discards its contribution and
	// carries on.
	Decode(datagram, block []byte) error
}

// ForIndicator returns the codec announced by the given indicator
// nibble.
func ForIndicator(bits uint8) (Codec, error) {
	switch bits {
	case IndicatorNone:
		return None{}, nil
	case IndicatorLZ4:
		return NewLZ4(), nil
	}
	return nil, fmt.Errorf("unknown codec indicator 0x%x", bits)
}

// None is the identity codec: sample bytes travel as-is.
type None struct{}

func (None) Indicator() uint8 {
	return IndicatorNone
}

func (None) Encode(block, dst []byte) error {
	n := copy(dst, block)
	zero(dst[n:])
	return nil
}

func (None) Decode(datagram, block []byte) error {
	if len(datagram) < len(block) {
		return fmt.Errorf("datagram too short: %d < %d", len(datagram), len(block))
	}
	copy(block, datagram)
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

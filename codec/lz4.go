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

package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4 compresses each payload datagram's sample block as an LZ4 block.
// Since every datagram must keep the stream's fixed size, the
// compressed bytes are carried behind a little-endian uint16 length
// prefix with the tail zero padded. A length of zero marks a stored
// block: the samples follow raw, used when a block does not compress
// small enough to fit.
type LZ4 struct {
	scratch []byte
}

// NewLZ4 returns a new LZ4 payload codec.
func NewLZ4() *LZ4 {
	return &LZ4{}
}

const lz4LenPrefix = 2

func (c *LZ4) Indicator() uint8 {
	return IndicatorLZ4
}

func (c *LZ4) Encode(block, dst []byte) error {
	if need := lz4.CompressBlockBound(len(block)); cap(c.scratch) < need {
		c.scratch = make([]byte, need)
	}
	n, err := lz4.CompressBlock(block, c.scratch[:cap(c.scratch)], nil)
	if err != nil {
		return err
	}

	if n > 0 && n <= len(dst)-lz4LenPrefix {
		binary.LittleEndian.PutUint16(dst, uint16(n))
		copy(dst[lz4LenPrefix:], c.scratch[:n])
		zero(dst[lz4LenPrefix+n:])
		return nil
	}

	// Incompressible, or the compressed form does not fit. Store the
	// block raw if the prefix leaves room for it.
	if len(dst) < lz4LenPrefix+len(block) {
		return fmt.Errorf("datagram size %d cannot carry %d sample bytes", len(dst), len(block))
	}
	binary.LittleEndian.PutUint16(dst, 0)
	copied := copy(dst[lz4LenPrefix:], block)
	zero(dst[lz4LenPrefix+copied:])
	return nil
}

func (c *LZ4) Decode(datagram, block []byte) error {
	if len(datagram) < lz4LenPrefix {
		return fmt.Errorf("datagram too short for length prefix")
	}
	n := int(binary.LittleEndian.Uint16(datagram))
	body := datagram[lz4LenPrefix:]

	if n == 0 {
		// Stored block.
		if len(body) < len(block) {
			return fmt.Errorf("stored block truncated: %d < %d", len(body), len(block))
		}
		copy(block, body)
		return nil
	}

	if n > len(body) {
		return fmt.Errorf("compressed length %d exceeds datagram", n)
	}
	written, err := lz4.UncompressBlock(body[:n], block)
	if err != nil {
		return err
	}
	if written != len(block) {
		return fmt.Errorf("decompressed %d bytes, expected %d", written, len(block))
	}
	return nil
}

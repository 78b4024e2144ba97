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

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SimSource produces a complex tone as 16 bit interleaved I/Q samples
// at its configured sample rate, in batches of a fixed sample count.
// It stands in for radio hardware during development and tests.
type SimSource struct {
	frequency    uint64
	sampleRate   uint32
	frameSamples int
	toneHz       float64

	stop chan struct{}
	done sync.WaitGroup
}

// NewSimSource returns a simulated source delivering batches of
// frameSamples sample pairs.
func NewSimSource(frameSamples int) *SimSource {
	return &SimSource{
		frequency:    100000000,
		sampleRate:   48000,
		frameSamples: frameSamples,
		toneHz:       1000,
	}
}

// Configure understands freq (Hz), srate (Hz) and tone (Hz).
func (s *SimSource) Configure(settings string) error {
	if settings == "" {
		return nil
	}
	for _, kv := range strings.Split(settings, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("malformed setting %q", kv)
		}
		key, value := parts[0], parts[1]
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("setting %s: %v", key, err)
		}
		switch key {
		case "freq":
			s.frequency = n
		case "srate":
			s.sampleRate = uint32(n)
		case "tone":
			s.toneHz = float64(n)
		default:
			return fmt.Errorf("unknown setting %q", key)
		}
	}
	return nil
}

func (s *SimSource) SampleRate() uint32 {
	return s.sampleRate
}

func (s *SimSource) Frequency() uint64 {
	return s.frequency
}

// Start launches the generator goroutine. Batches are delivered at the
// pace the configured sample rate implies.
func (s *SimSource) Start(deliver SampleFunc) error {
	if s.stop != nil {
		return fmt.Errorf("already started")
	}
	s.stop = make(chan struct{})
	s.done.Add(1)

	interval := time.Duration(float64(s.frameSamples) / float64(s.sampleRate) * float64(time.Second))
	go func() {
		defer s.done.Done()
		buf := make([]byte, s.frameSamples*4)
		var phase float64
		step := 2 * math.Pi * s.toneHz / float64(s.sampleRate)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
			}
			for i := 0; i < s.frameSamples; i++ {
				re := int16(math.Cos(phase) * 16384)
				im := int16(math.Sin(phase) * 16384)
				binary.LittleEndian.PutUint16(buf[i*4:], uint16(re))
				binary.LittleEndian.PutUint16(buf[i*4+2:], uint16(im))
				phase += step
				if phase > 2*math.Pi {
					phase -= 2 * math.Pi
				}
			}
			deliver(buf)
		}
	}()
	return nil
}

// Stop halts the generator and waits for its goroutine to finish.
func (s *SimSource) Stop() error {
	if s.stop == nil {
		return nil
	}
	close(s.stop)
	s.done.Wait()
	s.stop = nil
	return nil
}

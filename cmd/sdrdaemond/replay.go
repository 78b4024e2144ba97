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

package main

import (
	"io"
	"log"
	"os"

	"github.com/sdrdaemon/sdrdaemon/sink"
)

// replayFile streams a raw I/Q capture as frames, paced to the rate a
// live device would produce them. The trailing partial frame, if any,
// is sent short rather than padded.
func replayFile(filename string, conf *Config, sampleRate uint32, s *sink.Sink) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	pairBytes := 2 * conf.SampleBytes
	frameBytes := conf.FrameSamples * pairBytes
	pacer := sink.NewPacer(int(sampleRate)*pairBytes, frameBytes)

	log.Printf("replaying %s", filename)

	buf := make([]byte, frameBytes)
	frames := 0
	for {
		n, err := io.ReadFull(f, buf)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			n -= n % pairBytes
			if n == 0 {
				break
			}
		} else if err != nil {
			return err
		}

		pacer.Wait(n)
		if err := s.Write(buf[:n]); err != nil {
			return err
		}
		frames++
	}

	log.Printf("replay finished: %d frames", frames)
	return nil
}

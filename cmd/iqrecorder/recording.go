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
	"bufio"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/sdrdaemon/sdrdaemon/reassemble"
)

// recordingMeta is written as a yaml sidecar next to each raw capture
// so the file can be interpreted later without the stream.
type recordingMeta struct {
	CenterFrequency uint64 `yaml:"center-frequency"`
	SampleRate      uint32 `yaml:"sample-rate"`
	SampleBytes     int    `yaml:"sample-bytes"`
	SampleBits      int    `yaml:"sample-bits"`
	StartedAt       string `yaml:"started-at"`
}

// recorder appends completed frames to a raw I/Q file in the output
// directory. A new file is started on demand (Rotate) or whenever the
// stream's tuning changes, since a raw file only makes sense at one
// frequency and rate.
type recorder struct {
	outDir string
	f      *os.File
	w      *bufio.Writer
	meta   recordingMeta
}

func newRecorder(outDir string) *recorder {
	return &recorder{outDir: outDir}
}

func (r *recorder) WriteFrame(frame *reassemble.Frame) error {
	meta := recordingMeta{
		CenterFrequency: frame.Header.CenterFrequency,
		SampleRate:      frame.Header.SampleRate,
		SampleBytes:     frame.Header.SampleBytes(),
		SampleBits:      int(frame.Header.SampleBits),
	}
	if r.f != nil && !sameTuning(r.meta, meta) {
		log.Print("stream tuning changed, starting new recording")
		if err := r.Rotate(); err != nil {
			return err
		}
	}
	if r.f == nil {
		if err := r.open(meta); err != nil {
			return err
		}
	}
	_, err := r.w.Write(frame.Samples)
	return err
}

func sameTuning(a, b recordingMeta) bool {
	a.StartedAt = ""
	b.StartedAt = ""
	return a == b
}

func (r *recorder) open(meta recordingMeta) error {
	now := time.Now()
	base := filepath.Join(r.outDir, now.Format("2006-01-02T15-04-05"))

	f, err := os.Create(base + ".iqraw")
	if err != nil {
		return err
	}
	r.f = f
	r.w = bufio.NewWriterSize(f, 4*1024*1024)

	meta.StartedAt = now.Format(time.RFC3339)
	r.meta = meta
	sidecar, err := yaml.Marshal(&meta)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(base+".yaml", sidecar, 0644); err != nil {
		return err
	}

	log.Printf("recording to %s.iqraw (%d Hz at %d Hz)", base, meta.CenterFrequency, meta.SampleRate)
	return nil
}

// Rotate closes the current recording; the next frame starts a fresh
// one.
func (r *recorder) Rotate() error {
	if r.f == nil {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		return err
	}
	if err := r.f.Close(); err != nil {
		return err
	}
	r.f = nil
	r.w = nil
	return nil
}

func (r *recorder) Close() error {
	return r.Rotate()
}

// CurrentFile reports the recording in progress, if any.
func (r *recorder) CurrentFile() string {
	if r.f == nil {
		return ""
	}
	return r.f.Name()
}

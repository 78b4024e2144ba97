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
	"errors"
	"io/ioutil"

	yaml "gopkg.in/yaml.v2"

	"github.com/sdrdaemon/sdrdaemon/protocol"
)

type Config struct {
	Destination    string `yaml:"destination"`
	DatagramSize   int    `yaml:"datagram-size"`
	SampleBytes    int    `yaml:"sample-bytes"`
	SampleBits     int    `yaml:"sample-bits"`
	FrameSamples   int    `yaml:"frame-samples"`
	QueueDepth     int    `yaml:"queue-depth"`
	Compression    bool   `yaml:"compression"`
	SourceSettings string `yaml:"source-settings"`
}

var defaultConfig = Config{
	Destination:    "127.0.0.1:9090",
	DatagramSize:   512,
	SampleBytes:    2,
	SampleBits:     16,
	FrameSamples:   8192,
	QueueDepth:     16,
	Compression:    false,
	SourceSettings: "freq=100000000,srate=48000",
}

func ParseConfigFile(filename string) (*Config, error) {
	buf, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfig(buf)
}

func ParseConfig(buf []byte) (*Config, error) {
	conf := defaultConfig
	if err := yaml.Unmarshal(buf, &conf); err != nil {
		return nil, err
	}
	if conf.DatagramSize < protocol.HeaderSize {
		return nil, errors.New("datagram-size must be at least the header record size")
	}
	if conf.SampleBytes < 1 {
		return nil, errors.New("sample-bytes must be at least 1")
	}
	if conf.FrameSamples < 1 {
		return nil, errors.New("frame-samples must be at least 1")
	}
	return &conf, nil
}

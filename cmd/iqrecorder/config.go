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
	Listen       string `yaml:"listen"`
	DatagramSize int    `yaml:"datagram-size"`
	RcvBuf       int    `yaml:"rcv-buf"`
	OutputDir    string `yaml:"output-dir"`
}

var defaultConfig = Config{
	Listen:       "0.0.0.0:9090",
	DatagramSize: 512,
	RcvBuf:       2 * 1024 * 1024,
	OutputDir:    "/var/spool/iqrecorder",
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
	if conf.OutputDir == "" {
		return nil, errors.New("output-dir must be set")
	}
	return &conf, nil
}

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
	"log"
	"net"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/sdrdaemon/sdrdaemon/codec"
	"github.com/sdrdaemon/sdrdaemon/sdr"
	"github.com/sdrdaemon/sdrdaemon/sink"
)

const (
	framesPerSdNotify = 50
	dropLogInterval   = 500
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	ReplayFile string `arg:"-r,--replay" help:"replay a raw I/Q capture instead of reading the device"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/sdrdaemond.yaml"
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()
	if !args.Timestamps {
		log.SetFlags(0) // Removes default timestamp flag
	}

	log.Printf("running version: %s", version)
	conf, err := ParseConfigFile(args.ConfigFile)
	if err != nil {
		return err
	}
	logConfig(conf)

	sender, err := dialDestination(conf.Destination)
	if err != nil {
		return err
	}
	defer sender.Close()

	var payloadCodec codec.Codec
	if conf.Compression {
		payloadCodec = codec.NewLZ4()
	}

	source := sdr.NewSimSource(conf.FrameSamples)
	if err := source.Configure(conf.SourceSettings); err != nil {
		return err
	}

	s, err := sink.New(sender, sink.Config{
		CenterFrequency: source.Frequency(),
		SampleRate:      source.SampleRate(),
		SampleBytes:     conf.SampleBytes,
		SampleBits:      conf.SampleBits,
		DatagramSize:    conf.DatagramSize,
	}, payloadCodec)
	if err != nil {
		return err
	}

	if args.ReplayFile != "" {
		return replayFile(args.ReplayFile, conf, source.SampleRate(), s)
	}
	return runSource(conf, source, s)
}

func runSource(conf *Config, source sdr.Source, s *sink.Sink) error {
	queue := sdr.NewFrameQueue(conf.QueueDepth)

	log.Print("starting sample source")
	if err := source.Start(func(samples []byte) {
		queue.Push(samples)
	}); err != nil {
		return err
	}
	defer source.Stop()

	daemon.SdNotify(false, "READY=1")
	log.Print("sending frames")

	notifyCount := 0
	frames := 0
	lastDropped := uint64(0)
	for {
		samples, ok := queue.Pull()
		if !ok {
			return nil
		}
		err := s.Write(samples)
		queue.Recycle(samples)
		if err != nil {
			return err
		}

		if notifyCount++; notifyCount >= framesPerSdNotify {
			daemon.SdNotify(false, "WATCHDOG=1")
			notifyCount = 0
		}

		if frames++; frames%dropLogInterval == 0 {
			if d := queue.Dropped(); d != lastDropped {
				log.Printf("%d frames dropped at source queue", d-lastDropped)
				lastDropped = d
			}
		}
	}
}

func logConfig(conf *Config) {
	log.Printf("destination: %s", conf.Destination)
	log.Printf("datagram size: %d", conf.DatagramSize)
	log.Printf("sample encoding: %d byte / %d bit", conf.SampleBytes, conf.SampleBits)
	log.Printf("frame samples: %d", conf.FrameSamples)
	log.Printf("compression: %v", conf.Compression)
	log.Printf("source settings: %s", conf.SourceSettings)
}

type udpSender struct {
	conn *net.UDPConn
}

func dialDestination(address string) (*udpSender, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, err
	}
	return &udpSender{conn: conn}, nil
}

func (s *udpSender) Send(p []byte) error {
	_, err := s.conn.Write(p)
	return err
}

func (s *udpSender) Close() error {
	return s.conn.Close()
}

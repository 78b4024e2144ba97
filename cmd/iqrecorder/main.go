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
	"sync"
	"time"

	arg "github.com/alexflint/go-arg"
	"github.com/coreos/go-systemd/daemon"

	"github.com/sdrdaemon/sdrdaemon/reassemble"
)

const (
	readTimeout   = 100 * time.Millisecond
	statsInterval = time.Minute
)

var version = "<not set>"

type Args struct {
	ConfigFile string `arg:"-c,--config" help:"path to configuration file"`
	Timestamps bool   `arg:"-t,--timestamps" help:"include timestamps in log output"`
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	var args Args
	args.ConfigFile = "/etc/iqrecorder.yaml"
	arg.MustParse(&args)
	return args
}

// daemonState is what the D-Bus service can reach. The mutex covers
// the reassembler and recorder, which are otherwise owned by the
// receive loop.
type daemonState struct {
	mu    sync.Mutex
	reasm *reassemble.Reassembler
	rec   *recorder
}

func (d *daemonState) statsSnapshot() reassemble.Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reasm.Stats()
}

func (d *daemonState) rotate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.Rotate()
}

func (d *daemonState) currentFile() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec.CurrentFile()
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

	d := &daemonState{
		reasm: reassemble.New(conf.DatagramSize),
		rec:   newRecorder(conf.OutputDir),
	}
	defer d.rec.Close()

	log.Print("starting d-bus service")
	if err := startService(d); err != nil {
		return err
	}

	addr, err := net.ResolveUDPAddr("udp", conf.Listen)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetReadBuffer(conf.RcvBuf); err != nil {
		log.Printf("failed to set receive buffer to %d: %v", conf.RcvBuf, err)
	}

	daemon.SdNotify(false, "READY=1")
	log.Printf("listening on %s", conf.Listen)

	return receive(conn, conf, d)
}

func receive(conn *net.UDPConn, conf *Config, d *daemonState) error {
	// Room for one oversized datagram so wrong sized ones are seen
	// (and counted) rather than truncated to the stream size.
	buf := make([]byte, conf.DatagramSize+1)

	lastStats := time.Now()
	var prev reassemble.Stats
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				daemon.SdNotify(false, "WATCHDOG=1")
				if time.Since(lastStats) >= statsInterval {
					prev = logStats(d, prev)
					lastStats = time.Now()
				}
				continue
			}
			return err
		}

		d.mu.Lock()
		frame := d.reasm.Accept(buf[:n])
		if frame != nil {
			if werr := d.rec.WriteFrame(frame); werr != nil {
				d.mu.Unlock()
				return werr
			}
		}
		d.mu.Unlock()

		if time.Since(lastStats) >= statsInterval {
			daemon.SdNotify(false, "WATCHDOG=1")
			prev = logStats(d, prev)
			lastStats = time.Now()
		}
	}
}

func logStats(d *daemonState, prev reassemble.Stats) reassemble.Stats {
	stats := d.statsSnapshot()
	log.Printf("frames: %d completed, %d abandoned; blocks: %d payload, %d headers; dropped: %d wrong size, %d pre-sync, %d codec errors",
		stats.Completed-prev.Completed,
		stats.Abandoned-prev.Abandoned,
		stats.PayloadBlocks-prev.PayloadBlocks,
		stats.Headers-prev.Headers,
		stats.WrongSize-prev.WrongSize,
		stats.NoHeader-prev.NoHeader,
		stats.CodecErrors-prev.CodecErrors)
	return stats
}

func logConfig(conf *Config) {
	log.Printf("listen: %s", conf.Listen)
	log.Printf("datagram size: %d", conf.DatagramSize)
	log.Printf("receive buffer: %d", conf.RcvBuf)
	log.Printf("output dir: %s", conf.OutputDir)
}

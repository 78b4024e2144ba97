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

// Package sdr defines the capability interface a sample source must
// provide, and a simulated source for running and testing the daemon
// without radio hardware. Real device drivers live outside this
// repository and are injected at startup.
package sdr

// SampleFunc receives one batch of interleaved I/Q sample bytes from a
// source. The slice is only valid for the duration of the call; the
// source may reuse it.
type SampleFunc func(samples []byte)

// Source is a radio sample source. Start runs the source's own
// delivery goroutine (or hardware callback); batches arrive on the
// given SampleFunc until Stop.
type Source interface {
	// Configure applies driver settings given as comma separated
	// key=value pairs. The syntax of the values is driver
	// specific.
	Configure(settings string) error

	Start(deliver SampleFunc) error
	Stop() error

	SampleRate() uint32
	Frequency() uint64
}

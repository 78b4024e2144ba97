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

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"
)

const (
	dbusName = "org.sdrdaemon.iqrecorder"
	dbusPath = "/org/sdrdaemon/iqrecorder"
)

type service struct {
	daemon *daemonState
}

func startService(d *daemonState) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		daemon: d,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")

	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Stats returns the reassembly counters since startup.
func (s *service) Stats() (map[string]uint64, *dbus.Error) {
	stats := s.daemon.statsSnapshot()
	return map[string]uint64{
		"headers":        stats.Headers,
		"payload-blocks": stats.PayloadBlocks,
		"completed":      stats.Completed,
		"abandoned":      stats.Abandoned,
		"no-header":      stats.NoHeader,
		"wrong-size":     stats.WrongSize,
		"codec-errors":   stats.CodecErrors,
	}, nil
}

// Rotate ends the recording in progress; the next completed frame
// starts a new file.
func (s *service) Rotate() *dbus.Error {
	if err := s.daemon.rotate(); err != nil {
		return &dbus.Error{
			Name: dbusName + ".Rotate",
			Body: []interface{}{err.Error()},
		}
	}
	return nil
}

// CurrentFile reports the path of the recording in progress, or an
// empty string.
func (s *service) CurrentFile() (string, *dbus.Error) {
	return s.daemon.currentFile(), nil
}

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

// Package loglimiter rate limits noisy log messages. A datagram stream
// with a confused peer can produce a bad-datagram diagnostic thousands
// of times a second; the limiter lets one through per interval and
// reports how many repeats were dropped.
package loglimiter

import (
	"fmt"
	"log"
	"time"
)

// New returns a LogLimiter which logs at most one message per format
// string per interval.
func New(interval time.Duration) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		nowFunc:  time.Now,
		entries:  make(map[string]*entry),
	}
}

// LogLimiter suppresses repeated log messages. Messages are grouped by
// their format string, so varying arguments (offsets, counts) do not
// defeat the limiting.
type LogLimiter struct {
	interval time.Duration
	nowFunc  func() time.Time
	entries  map[string]*entry
}

type entry struct {
	last       time.Time
	suppressed int
}

// Printf logs the formatted message unless one with the same format
// string was logged within the limiter's interval. When a message gets
// through after earlier repeats were dropped, the count of dropped
// repeats is appended.
func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	now := limiter.nowFunc()

	e := limiter.entries[format]
	if e == nil {
		e = new(entry)
		limiter.entries[format] = e
	} else if now.Sub(e.last) < limiter.interval {
		e.suppressed++
		return
	}

	msg := fmt.Sprintf(format, v...)
	if e.suppressed > 0 {
		log.Printf("%s (%d similar suppressed)", msg, e.suppressed)
	} else {
		log.Print(msg)
	}
	e.last = now
	e.suppressed = 0
}

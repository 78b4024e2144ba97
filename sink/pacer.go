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

package sink

import "time"

// Pacer meters frame emission to a target byte rate. It is used when
// replaying a raw capture file, where the samples are available all at
// once but must go out at the rate a live device would produce them.
// A burst allowance smooths over scheduler jitter.
type Pacer struct {
	bucket    tokenBucket
	rate      float64 // tokens (bytes) per second
	last      time.Time
	nowFunc   func() time.Time
	sleepFunc func(time.Duration)
}

// NewPacer returns a Pacer releasing bytesPerSec bytes per second with
// a burst allowance of burst bytes.
func NewPacer(bytesPerSec, burst int) *Pacer {
	return &Pacer{
		bucket:    tokenBucket{tokens: float64(burst), size: float64(burst)},
		rate:      float64(bytesPerSec),
		nowFunc:   time.Now,
		sleepFunc: time.Sleep,
	}
}

// Wait blocks until n more bytes may be emitted.
func (p *Pacer) Wait(n int) {
	now := p.nowFunc()
	if !p.last.IsZero() {
		p.bucket.add(now.Sub(p.last).Seconds() * p.rate)
	}
	p.last = now

	need := float64(n)
	if !p.bucket.has(need) {
		deficit := need - p.bucket.tokens
		delay := time.Duration(deficit / p.rate * float64(time.Second))
		p.sleepFunc(delay)
		p.bucket.add(delay.Seconds() * p.rate)
		p.last = p.last.Add(delay)
	}
	p.bucket.remove(need)
}

// tokenBucket always holds between 0 and size tokens inclusive.
type tokenBucket struct {
	tokens float64
	size   float64
}

func (bucket *tokenBucket) add(newTokens float64) {
	bucket.tokens += newTokens
	if bucket.tokens > bucket.size {
		bucket.tokens = bucket.size
	}
}

func (bucket *tokenBucket) remove(oldTokens float64) {
	if bucket.tokens >= oldTokens {
		bucket.tokens -= oldTokens
	} else {
		bucket.tokens = 0
	}
}

func (bucket *tokenBucket) has(tokens float64) bool {
	return bucket.tokens >= tokens
}

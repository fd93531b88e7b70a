// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"time"
)

// backoff computes exponential retry delays with jitter
type backoff struct {
	minDelay time.Duration
	maxDelay time.Duration
	factor   float64
}

// defaultBackoff matches a miner that needs a few seconds to free its
// single-threaded command port
var defaultBackoff = backoff{
	minDelay: 500 * time.Millisecond,
	maxDelay: 10 * time.Second,
	factor:   2.0,
}

// delay returns the wait before retry number attempt (starting at 0)
//
// The base delay is minDelay * factor^attempt, capped at maxDelay, plus up
// to 10% jitter so a scan of many miners does not retry in lockstep.
func (b backoff) delay(attempt int) time.Duration {
	d := float64(b.minDelay) * math.Pow(b.factor, float64(attempt))
	if math.IsInf(d, 1) || d > float64(b.maxDelay) {
		d = float64(b.maxDelay)
	}

	jitterMax := int64(d * 0.1)
	if jitterMax > 0 {
		var buf [8]byte
		if _, err := rand.Read(buf[:]); err == nil {
			//nolint:gosec // G115: masked to a non-negative int64
			d += float64(int64(binary.BigEndian.Uint64(buf[:])&0x7FFFFFFFFFFFFFFF) % jitterMax)
		} else {
			d += float64(time.Now().UnixNano() % jitterMax)
		}
	}

	return time.Duration(d)
}

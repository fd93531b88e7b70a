// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Command outcomes recorded by metrics and spans
const (
	OutcomeSuccess = "success"
	OutcomeIgnored = "ignored"
	OutcomeRemote  = "remote_error"
	OutcomeDecode  = "decode_error"
	OutcomeEmpty   = "empty"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// metrics holds the collectors shared by every client registered against
// the same prometheus.Registerer
type metrics struct {
	commands  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
}

// newMetrics creates and registers the command collectors. Collectors that
// are already registered (by another client on the same registry) are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	commands := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "minerrpc",
			Name:      "commands_total",
			Help:      "Miner RPC commands dispatched, by dialect, command and outcome.",
		},
		[]string{"dialect", "command", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minerrpc",
			Name:      "command_duration_seconds",
			Help:      "Round trip time of miner RPC commands.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"dialect", "command"},
	)
	respBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "minerrpc",
			Name:      "response_bytes",
			Help:      "Size of raw miner RPC replies.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"dialect"},
	)

	var err error
	if commands, err = registerOrReuse(reg, commands); err != nil {
		return nil, err
	}
	if duration, err = registerOrReuse(reg, duration); err != nil {
		return nil, err
	}
	if respBytes, err = registerOrReuse(reg, respBytes); err != nil {
		return nil, err
	}

	return &metrics{commands: commands, duration: duration, respBytes: respBytes}, nil
}

// registerOrReuse registers c, returning the existing collector when an
// identical one is already registered
func registerOrReuse[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// observe records one dispatched command. Safe on a nil receiver.
func (m *metrics) observe(dialect, command, outcome string, elapsed time.Duration, size int) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(dialect, command, outcome).Inc()
	m.duration.WithLabelValues(dialect, command).Observe(elapsed.Seconds())
	if size >= 0 {
		m.respBytes.WithLabelValues(dialect).Observe(float64(size))
	}
}

// outcomeOf maps a dispatch error to its metric outcome label
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrEmptyResponse):
		return OutcomeEmpty
	case IsRemote(err):
		return OutcomeRemote
	case IsDecode(err):
		return OutcomeDecode
	case IsTimeout(err):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Client configuration options using the functional options pattern

// Port sets the RPC port (default: 4028)
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// WithDialect sets the firmware dialect (default: CGMiner)
//
// The dialect decides which commands Multicommand is willing to batch,
// which commands must be sent on their own, and whether the transport
// performs the trailing fragment read.
//
// Example:
//
//	client, _ := minerrpc.NewClient("10.0.0.50",
//	    minerrpc.WithDialect(minerrpc.Avalon))
func WithDialect(dialect Dialect) func(*Client) {
	return func(c *Client) {
		c.dialect = dialect
	}
}

// ConnectTimeout sets the TCP connect timeout (default: 10s)
func ConnectTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ConnectTimeout = duration
	}
}

// WriteTimeout sets the request write timeout (default: 10s)
func WriteTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.WriteTimeout = duration
	}
}

// ReadTimeout sets the per-read timeout of the reply loop (default: 100s)
//
// A read that exceeds it fails the command with a *TimeoutError.
func ReadTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ReadTimeout = duration
	}
}

// TrailingReadTimeout sets the timeout of the extra fragment read performed
// for dialects with TrailingRead set (default: 500ms)
func TrailingReadTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.TrailingReadTimeout = duration
	}
}

// ChunkSize sets the size of each socket read (default: 4096)
func ChunkSize(size int) func(*Client) {
	return func(c *Client) {
		c.ChunkSize = size
	}
}

// MaxResponseSize caps the accumulated reply in bytes (default: 8MiB).
// Zero disables the cap. A truncated reply is repaired by the sanitizer.
func MaxResponseSize(size int) func(*Client) {
	return func(c *Client) {
		c.MaxResponseSize = size
	}
}

// WithTransport replaces the TCP transport, mainly for tests
func WithTransport(transport Transport) func(*Client) {
	return func(c *Client) {
		if transport != nil {
			c.transport = transport
		}
	}
}

// WithLogger configures a custom logger for the client
//
// By default, the client uses NoOpLogger which discards all log messages.
// Use this option to enable logging with DefaultLogger or a custom logger.
//
// All JSON content logged at Debug level is automatically redacted to remove
// credentials (passwords, tokens, signatures, salts).
//
// Example (DefaultLogger):
//
//	logger := minerrpc.NewDefaultLogger(minerrpc.LogLevelInfo)
//	client, _ := minerrpc.NewClient("10.0.0.50",
//	    minerrpc.WithLogger(logger))
//
// Example (Custom Logger):
//
//	type SlogAdapter struct {
//	    logger *slog.Logger
//	}
//
//	func (s *SlogAdapter) Debug(ctx context.Context, msg string, keysAndValues ...any) {
//	    s.logger.DebugContext(ctx, msg, keysAndValues...)
//	}
//	// ... implement Info, Warn, Error (all with ctx context.Context as first parameter)
//
//	client, _ := minerrpc.NewClient("10.0.0.50",
//	    minerrpc.WithLogger(&SlogAdapter{logger: slog.Default()}))
func WithLogger(logger Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrettyPrintLogs enables/disables JSON pretty printing in logs
//
// When enabled, JSON content in debug logs is formatted for better
// readability. When disabled (default), raw JSON is logged without formatting.
//
// Default: disabled (false)
func WithPrettyPrintLogs(enabled bool) func(*Client) {
	return func(c *Client) {
		c.prettyPrintLogs = enabled
	}
}

// WithMetrics registers command counters and latency histograms on reg
//
// Clients sharing a registry share the collectors. Registration errors are
// returned by NewClient.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	client, _ := minerrpc.NewClient("10.0.0.50", minerrpc.WithMetrics(reg))
func WithMetrics(reg prometheus.Registerer) func(*Client) {
	return func(c *Client) {
		c.registerer = reg
	}
}

// WithTracerProvider enables one span per dispatched command
// (default: no-op tracer)
func WithTracerProvider(tp trace.TracerProvider) func(*Client) {
	return func(c *Client) {
		if tp != nil {
			c.tracerProvider = tp
		}
	}
}

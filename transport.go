// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
	"unicode/utf8"
)

// Exchange describes one request/response round trip
type Exchange struct {
	// Addr is the "host:port" target
	Addr string

	// Request is written to the connection as-is
	Request []byte

	// ConnectTimeout bounds the TCP dial
	ConnectTimeout time.Duration

	// WriteTimeout bounds writing the request
	WriteTimeout time.Duration

	// ReadTimeout is the deadline applied to each read in the main loop
	ReadTimeout time.Duration

	// TrailingRead enables one extra read when the main loop times out
	// after part of the reply arrived
	TrailingRead bool

	// TrailingReadTimeout bounds the extra read
	TrailingReadTimeout time.Duration

	// ChunkSize is the size of each read
	ChunkSize int

	// MaxResponseSize caps the accumulated reply; zero means unlimited
	MaxResponseSize int
}

// Transport performs one request/response exchange with a miner
//
// Implementations return the raw reply bytes. A connection that cannot be
// opened or is aborted by the peer yields an empty reply and a nil error.
// Timeouts and context cancellation are returned as errors.
type Transport interface {
	RoundTrip(ctx context.Context, ex Exchange) ([]byte, error)
}

// TCPTransport opens one TCP connection per exchange and closes it on return
//
// There is no pooling: firmware command ports answer one request per
// connection and signal the end of the reply by closing it.
type TCPTransport struct {
	logger Logger
}

// NewTCPTransport creates a TCPTransport. A nil logger discards log output.
func NewTCPTransport(logger Logger) *TCPTransport {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &TCPTransport{logger: logger}
}

// RoundTrip dials ex.Addr, writes the request and reads until the peer closes
// the connection.
func (t *TCPTransport) RoundTrip(ctx context.Context, ex Exchange) ([]byte, error) {
	if err := checkContextCancellation(ctx); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: ex.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", ex.Addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isNetTimeout(err) {
			return nil, &TimeoutError{Op: "dial", Addr: ex.Addr, Err: err}
		}
		// refused, unreachable, out of file descriptors: no data
		t.logger.Warn(ctx, "connection failed, treating as empty reply",
			"addr", ex.Addr,
			"error", err.Error())
		return nil, nil
	}
	defer conn.Close() //nolint:errcheck // nothing to do with a close error

	// unblock pending reads and writes when the context ends
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now()) //nolint:errcheck // best effort
	})
	defer stop()

	if ex.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(ex.WriteTimeout)) //nolint:errcheck // checked on Write
	}
	t.logger.Debug(ctx, "writing request",
		"addr", ex.Addr,
		"bytes", len(ex.Request))
	if _, err := conn.Write(ex.Request); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if isNetTimeout(err) {
			return nil, &TimeoutError{Op: "write", Addr: ex.Addr, Err: err}
		}
		t.logger.Warn(ctx, "write failed, treating as empty reply",
			"addr", ex.Addr,
			"error", err.Error())
		return nil, nil
	}

	data, more, err := t.readAll(ctx, conn, ex)
	if err != nil {
		return nil, err
	}

	if more {
		data, err = t.readTrailing(ctx, conn, ex, data)
		if err != nil {
			return nil, err
		}
	}

	t.logger.Debug(ctx, "reply received",
		"addr", ex.Addr,
		"bytes", len(data))
	return data, nil
}

// readAll is the main read loop. It stops when the peer closes the
// connection or the size cap is reached. more reports that the loop ended
// on a timeout and the extra read should follow.
//
// With ex.TrailingRead set, a read timeout after part of the reply arrived
// ends the loop instead of failing it, so the extra read can pick up a
// fragment sent in a later segment.
func (t *TCPTransport) readAll(ctx context.Context, conn net.Conn, ex Exchange) (data []byte, more bool, err error) {
	chunk := make([]byte, ex.ChunkSize)

	for {
		if ex.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ex.ReadTimeout)) //nolint:errcheck // checked on Read
		}
		n, err := conn.Read(chunk)
		data = append(data, chunk[:n]...)

		if ex.MaxResponseSize > 0 && len(data) >= ex.MaxResponseSize {
			t.logger.Warn(ctx, "reply reached size limit, truncating",
				"addr", ex.Addr,
				"limit", ex.MaxResponseSize)
			return trimPartialRune(data[:ex.MaxResponseSize]), false, nil
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			return data, false, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		if isNetTimeout(err) {
			if ex.TrailingRead && len(data) > 0 {
				t.logger.Debug(ctx, "read timed out after partial reply",
					"addr", ex.Addr,
					"received", len(data))
				return data, true, nil
			}
			return nil, false, &TimeoutError{Op: "read", Addr: ex.Addr, Err: err}
		}
		// connection reset mid-reply: no data
		t.logger.Warn(ctx, "read failed, treating as empty reply",
			"addr", ex.Addr,
			"received", len(data),
			"error", err.Error())
		return nil, false, nil
	}
}

// trimPartialRune drops a multi-byte character cut off at the end of b
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if !utf8.FullRune(b[len(b)-i:]) {
			return b[:len(b)-i]
		}
		return b
	}
	return b
}

// readTrailing performs the extra short read. A timeout or EOF here is
// expected and returns what was already received.
func (t *TCPTransport) readTrailing(ctx context.Context, conn net.Conn, ex Exchange, data []byte) ([]byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(ex.TrailingReadTimeout)) //nolint:errcheck // checked on Read
	chunk := make([]byte, ex.ChunkSize)
	n, err := conn.Read(chunk)
	if n > 0 {
		t.logger.Debug(ctx, "trailing fragment received",
			"addr", ex.Addr,
			"bytes", n)
		data = append(data, chunk[:n]...)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !errors.Is(err, io.EOF) && !isNetTimeout(err) {
			t.logger.Debug(ctx, "trailing read failed",
				"addr", ex.Addr,
				"error", err.Error())
		}
	}
	return data, nil
}

// isNetTimeout reports whether err is a network timeout
func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// checkContextCancellation checks if context is canceled or deadline exceeded
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

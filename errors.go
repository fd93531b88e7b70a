// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode/utf8"
)

// Sentinel errors wrapped by the structured error types below.
var (
	// ErrEmptyResponse is wrapped when the miner answered with zero bytes or
	// the connection could not be opened.
	ErrEmptyResponse = errors.New("no data returned from the API")

	// ErrConnectionRefused is wrapped when a proxying firmware answers with
	// its plain-text "Socket connect failed" payload instead of JSON.
	ErrConnectionRefused = errors.New("socket connect failed: connection refused")

	// ErrNoCommands is returned by Multicommand when no requested command is
	// supported by the client's dialect.
	ErrNoCommands = errors.New("no supported commands to send")

	// ErrUnsupportedCommand is returned by typed command helpers when the
	// client's dialect does not register the command.
	ErrUnsupportedCommand = errors.New("command not supported by dialect")
)

// RemoteCommandError reports a reply whose status envelope signals failure
type RemoteCommandError struct {
	// Command is the wire command that was sent (may be "a+b" for batches)
	Command string

	// Message is the message extracted from the status envelope.
	// Empty when the firmware did not supply one.
	Message string

	// Code is the firmware status code, when present
	Code int64

	// Err is an optional sentinel cause (ErrEmptyResponse, ErrConnectionRefused)
	Err error
}

// Error implements the error interface
func (e *RemoteCommandError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("minerrpc: %s: command failed", e.Command)
	}
	return fmt.Sprintf("minerrpc: %s: %s", e.Command, e.Message)
}

// Unwrap returns the sentinel cause, if any
func (e *RemoteCommandError) Unwrap() error {
	return e.Err
}

// maxDecodeErrorText bounds the repaired text quoted in a decode error message
const maxDecodeErrorText = 256

// ProtocolDecodeError reports a reply that could not be parsed even after
// every repair rule was applied
type ProtocolDecodeError struct {
	// Err is the underlying parser error
	Err error

	// Text is the fully repaired text handed to the parser
	Text string
}

// Error implements the error interface
//
// The repaired text is truncated so the message stays loggable; the full
// text is available in the Text field.
func (e *ProtocolDecodeError) Error() string {
	text := e.Text
	if len(text) > maxDecodeErrorText {
		cut := maxDecodeErrorText
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return fmt.Sprintf("minerrpc: decode error %v: %s", e.Err, text)
}

// Unwrap returns the underlying parser error
func (e *ProtocolDecodeError) Unwrap() error {
	return e.Err
}

// TimeoutError reports that the miner did not answer in time. Unlike an empty
// reply, a timeout is never degraded into "no data".
type TimeoutError struct {
	// Op is the transport step that timed out: "dial", "write" or "read"
	Op string

	// Addr is the target address
	Addr string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("minerrpc: %s %s: timeout: %v", e.Op, e.Addr, e.Err)
}

// Unwrap returns the underlying cause
func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// Timeout reports true; it lets TimeoutError satisfy net.Error-style checks.
func (e *TimeoutError) Timeout() bool {
	return true
}

// IsTimeout reports whether err means the miner did not answer in time,
// including context deadlines.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}

// IsRemote reports whether err is a failure reported by the miner itself
func IsRemote(err error) bool {
	var re *RemoteCommandError
	return errors.As(err, &re)
}

// IsDecode reports whether err is an unrecoverable protocol decode failure
func IsDecode(err error) bool {
	var de *ProtocolDecodeError
	return errors.As(err, &de)
}

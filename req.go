// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"fmt"
	"sort"
	"time"
)

// Req represents a single outbound command and its dispatch options
//
// Req is built fresh per call from the command name and request modifiers
// and discarded once the request bytes are sent.
//
// Example:
//
//	// switch to pool 1 and return the reply even if the firmware rejects it
//	res, err := client.SendCommand(ctx, "switchpool",
//	    minerrpc.Parameter(1),
//	    minerrpc.IgnoreErrors())
type Req struct {
	// Command is the command name ("summary", or "summary+pools" for a batch)
	Command string

	// Parameter is the optional command parameter (string, int or bool).
	// Nil omits the "parameter" field.
	Parameter any

	// Fields are extra top-level fields merged into the envelope
	Fields map[string]any

	// IgnoreErrors returns the parsed reply instead of failing when the
	// status envelope signals an error
	IgnoreErrors bool

	// AllowWarning logs a warning when the status envelope signals an error
	AllowWarning bool

	// Timeout overrides the client's read timeout for this request
	Timeout time.Duration
}

// Envelope builds the wire request:
// {"command": <name>, "parameter": <value>?, ...fields}
//
// Extra fields are written in sorted key order so the request bytes are
// deterministic. A field named "command" or "parameter" cannot override the
// envelope's own values.
func (r *Req) Envelope() ([]byte, error) {
	if r.Command == "" {
		return nil, fmt.Errorf("command cannot be empty")
	}

	body := Body{}.Set("command", r.Command)
	if r.Parameter != nil {
		switch r.Parameter.(type) {
		case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		default:
			return nil, fmt.Errorf("unsupported parameter type %T", r.Parameter)
		}
		body = body.Set("parameter", r.Parameter)
	}

	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		if k == "command" || k == "parameter" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		body = body.SetKey(k, r.Fields[k])
	}
	if err := body.Err(); err != nil {
		return nil, fmt.Errorf("invalid field for %s: %w", r.Command, err)
	}

	return body.Bytes()
}

// Parameter returns a request modifier that sets the command parameter.
//
// Multi-value CGMiner parameters are comma separated strings, for example
// "0,freq,650" for ascset.
func Parameter(value any) func(*Req) {
	return func(req *Req) {
		req.Parameter = value
	}
}

// Field returns a request modifier that adds an extra top-level field to the
// command envelope
func Field(key string, value any) func(*Req) {
	return func(req *Req) {
		if req.Fields == nil {
			req.Fields = make(map[string]any)
		}
		req.Fields[key] = value
	}
}

// IgnoreErrors returns a request modifier that suppresses RemoteCommandError.
// The parsed reply, possibly semantically empty, is returned instead.
func IgnoreErrors() func(*Req) {
	return func(req *Req) {
		req.IgnoreErrors = true
	}
}

// AllowWarning returns a request modifier that controls whether a failed
// status envelope is logged at Warn level (default: true)
func AllowWarning(allow bool) func(*Req) {
	return func(req *Req) {
		req.AllowWarning = allow
	}
}

// Timeout returns a request modifier that sets a custom read timeout for the
// request, overriding the client's ReadTimeout.
//
// Example:
//
//	// estats on large Avalon setups can take a while
//	res, err := client.SendCommand(ctx, "estats",
//	    minerrpc.Timeout(30*time.Second))
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// MulticommandKey marks a reply assembled by Multicommand
const MulticommandKey = "multicommand"

// Response represents a parsed miner API reply
type Response struct {
	// Raw is the repaired JSON text of the reply
	Raw string

	// Data is the reply parsed into nested maps, slices and scalars.
	// Numbers are json.Number.
	Data map[string]any
}

// GetValue retrieves a value from the reply using a gjson path.
//
// Example paths:
//   - "STATUS.0.Msg" - status message of a single-command reply
//   - "SUMMARY.0.GHS 5s" - 5 second hashrate
//   - "summary.0.SUMMARY.0.Elapsed" - uptime inside a multicommand reply
//
// Example:
//
//	res, err := client.Summary(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ghs := res.GetValue("SUMMARY.0.GHS 5s").Float()
func (r Response) GetValue(path string) gjson.Result {
	if r.Raw == "" {
		return gjson.Result{}
	}
	return gjson.Get(r.Raw, path)
}

// Command returns the sub-reply for name inside a multicommand reply.
//
// Batched replies map every command name to a one-element list; Command
// returns that element, or an empty result when the command is absent.
// Names are matched literally, so commands containing gjson path characters
// are safe.
func (r Response) Command(name string) gjson.Result {
	if r.Raw == "" {
		return gjson.Result{}
	}
	sub := gjson.Get(r.Raw, escapePath(name))
	if !sub.IsArray() {
		return gjson.Result{}
	}
	return sub.Get("0")
}

// IsEmpty reports whether the reply carries no data at all
func (r Response) IsEmpty() bool {
	return len(r.Data) == 0
}

// IsMulticommand reports whether the reply was assembled by Multicommand
func (r Response) IsMulticommand() bool {
	return r.GetValue(MulticommandKey).Bool()
}

// JSON returns the repaired reply text, or "{}" for an empty reply
func (r Response) JSON() string {
	if r.Raw == "" {
		return "{}"
	}
	return r.Raw
}

// Indent returns the reply pretty-printed with two-space indentation.
// Returns the raw text when indentation fails.
func (r Response) Indent() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(r.JSON()), "", "  "); err != nil {
		return r.JSON()
	}
	return buf.String()
}

// emptyResponse is the reply returned when errors are ignored and the
// miner sent nothing usable
func emptyResponse() Response {
	return Response{Raw: "{}", Data: map[string]any{}}
}

// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Status codes used by the status envelope
const (
	StatusSuccess       = "S"
	StatusInformational = "I"
	StatusWarning       = "W"
	StatusError         = "E"
	StatusFatal         = "F"

	// StatusRestart is the bare status string sent when a restart is acknowledged
	StatusRestart = "RESTART"
)

// reservedKeys are top-level keys that never carry a batched sub-reply
var reservedKeys = map[string]bool{
	"id":            true,
	MulticommandKey: true,
}

// ShapeKind identifies which status envelope a reply uses
type ShapeKind int

const (
	// ShapeStatusList is the single-command shape: "STATUS" holds a list
	// (or a single object) of status objects
	ShapeStatusList ShapeKind = iota

	// ShapeStatusString is the single-command shape where "STATUS" is a bare
	// string ("S", "RESTART", ...) and the message sits in a top-level "Msg"
	ShapeStatusString

	// ShapeBatched is the multicommand shape: no top-level "STATUS", every
	// command is a key holding a list whose first element carries its own
	// "STATUS" list
	ShapeBatched
)

// String returns the name of the shape
func (k ShapeKind) String() string {
	switch k {
	case ShapeStatusList:
		return "status-list"
	case ShapeStatusString:
		return "status-string"
	case ShapeBatched:
		return "batched"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(k))
	}
}

// Shape is a reply's status envelope, resolved once right after parsing
type Shape struct {
	Kind ShapeKind

	// Status is the "STATUS" value for the single-command shapes
	Status gjson.Result

	// Root is the whole reply
	Root gjson.Result
}

// ResolveShape determines the status envelope of a reply.
//
// A reply without a top-level "STATUS" key is treated as batched. Some
// firmware omits STATUS for other reasons; those replies are classified as
// batched too and usually validate as success.
func ResolveShape(r Response) Shape {
	root := gjson.Parse(r.JSON())
	status := root.Get("STATUS")

	switch {
	case !status.Exists():
		return Shape{Kind: ShapeBatched, Root: root}
	case status.Type == gjson.String:
		return Shape{Kind: ShapeStatusString, Status: status, Root: root}
	default:
		return Shape{Kind: ShapeStatusList, Status: status, Root: root}
	}
}

// Outcome is the result of validating a reply's status envelope
type Outcome struct {
	// Success is true for "S" and "I" statuses and for RESTART acknowledgements
	Success bool

	// Message is the firmware message on failure; empty when none was supplied
	Message string

	// Code is the firmware status code, zero when absent
	Code int64
}

// Validate classifies a reply as success or failure and extracts the
// firmware's message on failure.
//
// Example:
//
//	res, _ := minerrpc.Decode([]byte(`{"STATUS":[{"STATUS":"E","Code":14,"Msg":"Invalid command"}],"id":1}`))
//	out := minerrpc.Validate(res)
//	fmt.Println(out.Success, out.Message) // false Invalid command
func Validate(r Response) Outcome {
	shape := ResolveShape(r)

	switch shape.Kind {
	case ShapeBatched:
		return validateBatched(shape.Root)
	case ShapeStatusString:
		return validateStatusString(shape)
	default:
		return validateStatusList(shape.Status)
	}
}

// isSuccessStatus reports whether a status code counts as success
func isSuccessStatus(code string) bool {
	return code == StatusSuccess || code == StatusInformational
}

func validateStatusList(status gjson.Result) Outcome {
	first := status
	if status.IsArray() {
		items := status.Array()
		if len(items) == 0 {
			return Outcome{Success: false}
		}
		first = items[0]
	}

	if isSuccessStatus(first.Get("STATUS").String()) {
		return Outcome{Success: true}
	}
	return Outcome{
		Success: false,
		Message: first.Get("Msg").String(),
		Code:    first.Get("Code").Int(),
	}
}

func validateStatusString(shape Shape) Outcome {
	code := shape.Status.String()
	if code == StatusRestart || isSuccessStatus(code) {
		return Outcome{Success: true}
	}
	return Outcome{
		Success: false,
		Message: shape.Root.Get("Msg").String(),
		Code:    shape.Root.Get("Code").Int(),
	}
}

func validateBatched(root gjson.Result) Outcome {
	out := Outcome{Success: true}

	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if reservedKeys[name] || !value.IsArray() {
			return true
		}
		status := value.Get("0.STATUS")
		if !status.IsArray() {
			return true
		}
		first := status.Get("0")
		if isSuccessStatus(first.Get("STATUS").String()) {
			return true
		}
		out = Outcome{
			Success: false,
			Message: name + ": " + first.Get("Msg").String(),
			Code:    first.Get("Code").Int(),
		}
		return false
	})

	return out
}

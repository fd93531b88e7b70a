// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
)

// Body provides a fluent interface for building JSON documents using sjson
// for path-based manipulation. It builds outbound command envelopes and the
// synthetic replies assembled by Multicommand.
//
// The Body builder tracks errors internally to enable method chaining
// while providing error checking through String() or Err() methods.
//
// Example:
//
//	body := minerrpc.Body{}.
//	    Set("command", "ascset").
//	    Set("parameter", "0,freq,650")
//
//	request, err := body.Bytes()
type Body struct {
	// str contains the JSON string being built
	str string
	// err tracks the first error encountered during building
	err error
}

// Set sets a value at the specified JSON path and returns a new Body
//
// The path uses gjson dot notation for nested fields. Use SetKey when the
// key comes from outside and must be taken literally.
//
// Once an error occurs, all subsequent operations are no-ops that preserve
// the error.
func (b Body) Set(path string, value any) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Set(b.str, path, value)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Set(%q): %w", path, err)}
	}
	return Body{str: result, err: nil}
}

// SetKey sets a top-level key, escaping any path syntax it contains
func (b Body) SetKey(key string, value any) Body {
	return b.Set(escapePath(key), value)
}

// SetRaw sets a pre-encoded JSON value at the specified path
func (b Body) SetRaw(path, rawJSON string) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.SetRaw(b.str, path, rawJSON)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("SetRaw(%q): %w", path, err)}
	}
	return Body{str: result, err: nil}
}

// Delete removes a value at the specified JSON path and returns a new Body
func (b Body) Delete(path string) Body {
	if b.err != nil {
		return b
	}

	result, err := sjson.Delete(b.str, path)
	if err != nil {
		return Body{str: b.str, err: fmt.Errorf("Delete(%q): %w", path, err)}
	}
	return Body{str: result, err: nil}
}

// String returns the JSON string representation and any error encountered
// during building. An empty body renders as "{}".
func (b Body) String() (string, error) {
	if b.str == "" && b.err == nil {
		return "{}", nil
	}
	return b.str, b.err
}

// Err returns any error that occurred during the building process
func (b Body) Err() error {
	return b.err
}

// Bytes returns the JSON byte slice representation and any error encountered
// during building
func (b Body) Bytes() ([]byte, error) {
	s, err := b.String()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// pathEscaper escapes gjson/sjson path syntax so a key is matched literally
var pathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`.`, `\.`,
	`*`, `\*`,
	`?`, `\?`,
	`|`, `\|`,
	`#`, `\#`,
	`@`, `\@`,
)

// escapePath escapes a single key for use as a gjson/sjson path component
func escapePath(key string) string {
	return pathEscaper.Replace(key)
}

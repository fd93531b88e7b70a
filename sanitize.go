// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"
)

// repairRule is one textual fix for a known firmware defect
type repairRule struct {
	name  string
	apply func(string) string
}

// brokenErrorCodeList matches a whatsminer API 2.0.4 reply that encodes the
// error_code object with list brackets.
var brokenErrorCodeList = regexp.MustCompile(`"error_code":\[".+"\]`)

// infoSentinel shields the word "info" while bare inf tokens are rewritten
const infoSentinel = "1nfo"

// repairRules are applied in order. Later rules assume earlier ones ran.
var repairRules = []repairRule{
	{"trailing-comma", func(s string) string {
		return strings.ReplaceAll(s, ",}", "}")
	}},
	{"embedded-newline", func(s string) string {
		return strings.ReplaceAll(s, "\n", "")
	}},
	{"adjacent-objects", func(s string) string {
		return strings.ReplaceAll(s, "}{", "},{")
	}},
	{"leading-list-comma", func(s string) string {
		return strings.ReplaceAll(s, "[,{", "[{")
	}},
	{"temp0-missing-comma", func(s string) string {
		return strings.ReplaceAll(s, `""temp0`, `","temp0`)
	}},
	{"special-floats", func(s string) string {
		s = strings.ReplaceAll(s, "info", infoSentinel)
		s = strings.ReplaceAll(s, "inf", "0")
		s = strings.ReplaceAll(s, "nan", "0")
		return strings.ReplaceAll(s, infoSentinel, "info")
	}},
	{"leading-comma", func(s string) string {
		if strings.HasPrefix(s, ",") {
			return "{" + s[1:]
		}
		return s
	}},
	{"truncated", func(s string) string {
		if strings.HasSuffix(s, "}") {
			return s
		}
		// drop the last partial field so the remainder parses
		if i := strings.LastIndex(s, ","); i >= 0 {
			return s[:i] + "}"
		}
		return "}"
	}},
	{"error-code-list", func(s string) string {
		if !brokenErrorCodeList.MatchString(s) {
			return s
		}
		s = strings.ReplaceAll(s, "[", "{")
		return strings.ReplaceAll(s, "]", "}")
	}},
}

// RepairRuleNames returns the names of the repair rules in application order
func RepairRuleNames() []string {
	names := make([]string, len(repairRules))
	for i, rule := range repairRules {
		names[i] = rule.name
	}
	return names
}

// Repair converts a raw miner reply into JSON text by applying every repair
// rule in order. A single trailing NUL byte is stripped first.
//
// Repair never fails on well-formed UTF-8; whether the result parses is
// decided by Decode.
func Repair(raw []byte) (string, error) {
	raw = bytes.TrimSuffix(raw, []byte{0})
	if !utf8.Valid(raw) {
		return "", &ProtocolDecodeError{
			Err:  errors.New("reply is not valid UTF-8"),
			Text: strings.ToValidUTF8(string(raw), "�"),
		}
	}

	text := string(raw)
	for _, rule := range repairRules {
		text = rule.apply(text)
	}
	return text, nil
}

// Decode repairs and parses a raw miner reply.
//
// The reply must be a JSON object. When parsing still fails after every
// repair rule, Decode returns a *ProtocolDecodeError carrying the parser error
// and the repaired text.
//
// Example:
//
//	res, err := minerrpc.Decode([]byte(`{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"MHS av":inf,}]}`))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.GetValue("SUMMARY.0.MHS av").Int()) // 0
func Decode(raw []byte) (Response, error) {
	text, err := Repair(raw)
	if err != nil {
		return Response{}, err
	}

	data, err := parseObject(text)
	if err != nil {
		return Response{}, &ProtocolDecodeError{Err: err, Text: text}
	}
	if data == nil {
		// the literal null parses into a nil map
		return Response{}, &ProtocolDecodeError{Err: errors.New("reply is not a JSON object"), Text: text}
	}

	return Response{Raw: text, Data: data}, nil
}

// parseObject parses a JSON object. Numbers are kept as json.Number so
// integers beyond 2^53 survive.
func parseObject(text string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid data after top-level value at offset %d", dec.InputOffset())
	}
	return data, nil
}

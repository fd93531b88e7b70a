// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"errors"
	"testing"
)

func TestTypedHelpers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name          string
		dialect       Dialect
		call          func(*Client) (Response, error)
		wantCommand   string
		wantParameter any
		wantField     [2]string
	}{
		{
			name:        "version",
			dialect:     CGMiner,
			call:        func(c *Client) (Response, error) { return c.Version(ctx) },
			wantCommand: "version",
		},
		{
			name:        "summary",
			dialect:     CGMiner,
			call:        func(c *Client) (Response, error) { return c.Summary(ctx) },
			wantCommand: "summary",
		},
		{
			name:          "edevs old",
			dialect:       CGMiner,
			call:          func(c *Client) (Response, error) { return c.Edevs(ctx, true) },
			wantCommand:   "edevs",
			wantParameter: "old",
		},
		{
			name:          "check",
			dialect:       CGMiner,
			call:          func(c *Client) (Response, error) { return c.Check(ctx, "ascset") },
			wantCommand:   "check",
			wantParameter: "ascset",
		},
		{
			name:          "switchpool",
			dialect:       CGMiner,
			call:          func(c *Client) (Response, error) { return c.SwitchPool(ctx, 0) },
			wantCommand:   "switchpool",
			wantParameter: float64(0),
		},
		{
			name:    "addpool",
			dialect: CGMiner,
			call: func(c *Client) (Response, error) {
				return c.AddPool(ctx, "stratum+tcp://pool.example.com:3333", "worker.1", "x")
			},
			wantCommand:   "addpool",
			wantParameter: "stratum+tcp://pool.example.com:3333,worker.1,x",
		},
		{
			name:        "temps",
			dialect:     BOSMiner,
			call:        func(c *Client) (Response, error) { return c.Temps(ctx) },
			wantCommand: "temps",
		},
		{
			name:        "get_psu",
			dialect:     BTMiner,
			call:        func(c *Client) (Response, error) { return c.GetPSU(ctx) },
			wantCommand: "get_psu",
		},
		{
			name:        "get_miner_info fields",
			dialect:     BTMiner,
			call:        func(c *Client) (Response, error) { return c.GetMinerInfo(ctx, "ip", "mac") },
			wantCommand: "get_miner_info",
			wantField:   [2]string{"info", "ip,mac"},
		},
		{
			name:        "power",
			dialect:     LUXMiner,
			call:        func(c *Client) (Response, error) { return c.Power(ctx) },
			wantCommand: "power",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &scriptedTransport{handle: func(command string) ([]byte, error) {
				return []byte(okReply(command)), nil
			}}
			client := newTestClient(t, ft, WithDialect(tt.dialect))

			if _, err := tt.call(client); err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}
			if len(ft.requests) != 1 {
				t.Fatalf("sent %d requests, want 1", len(ft.requests))
			}

			req := ft.requests[0]
			if req["command"] != tt.wantCommand {
				t.Errorf("command = %v, want %s", req["command"], tt.wantCommand)
			}
			if req["parameter"] != tt.wantParameter {
				t.Errorf("parameter = %#v, want %#v", req["parameter"], tt.wantParameter)
			}
			if tt.wantField[0] != "" && req[tt.wantField[0]] != tt.wantField[1] {
				t.Errorf("%s = %v, want %s", tt.wantField[0], req[tt.wantField[0]], tt.wantField[1])
			}
		})
	}
}

func TestTypedHelpers_Unsupported(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		dialect Dialect
		call    func(*Client) (Response, error)
	}{
		{"estats on btminer", BTMiner, func(c *Client) (Response, error) { return c.Estats(ctx, false) }},
		{"get_psu on cgminer", CGMiner, func(c *Client) (Response, error) { return c.GetPSU(ctx) }},
		{"addpool on bosminer", BOSMiner, func(c *Client) (Response, error) { return c.AddPool(ctx, "u", "w", "p") }},
		{"restart on unknown", Unknown, func(c *Client) (Response, error) { return c.Restart(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := &scriptedTransport{handle: reply(okReply("x"))}
			client := newTestClient(t, ft, WithDialect(tt.dialect))

			_, err := tt.call(client)
			if !errors.Is(err, ErrUnsupportedCommand) {
				t.Errorf("error = %v, want ErrUnsupportedCommand", err)
			}
			if len(ft.requests) != 0 {
				t.Errorf("transport called %d times, want 0", len(ft.requests))
			}
		})
	}
}

func TestAddPool_RejectsCommas(t *testing.T) {
	ft := &scriptedTransport{handle: reply(okReply("addpool"))}
	client := newTestClient(t, ft)

	if _, err := client.AddPool(context.Background(), "stratum+tcp://pool:3333", "worker,1", "x"); err == nil {
		t.Error("AddPool() error = nil, want error for a comma in the user")
	}
	if len(ft.requests) != 0 {
		t.Errorf("transport called %d times, want 0", len(ft.requests))
	}
}

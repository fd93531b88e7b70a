// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/netascode/go-minerrpc"
)

// runRoot executes the CLI with args and returns its output
func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// serveMiner answers every connection on a loopback listener with reply
func serveMiner(t *testing.T, reply func(request string) string) (host, port string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() }) //nolint:errcheck // test cleanup

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close() //nolint:errcheck // test server
				buf := make([]byte, 4096)
				n, _ := conn.Read(buf) //nolint:errcheck // test server
				conn.Write([]byte(reply(string(buf[:n])))) //nolint:errcheck // test server
			}(conn)
		}
	}()

	host, port, _ = net.SplitHostPort(ln.Addr().String()) //nolint:errcheck // listener address
	return host, port
}

const summaryReply = `{"STATUS":[{"STATUS":"S","Msg":"Summary"}],"SUMMARY":[{"Elapsed":3600,"MHS av":95000000.5}],"id":1}`

func TestBackoffDelay(t *testing.T) {
	b := backoff{minDelay: 100 * time.Millisecond, maxDelay: time.Second, factor: 2}

	tests := []struct {
		attempt int
		base    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{100, time.Second},
		{5000, time.Second},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.attempt), func(t *testing.T) {
			for i := 0; i < 20; i++ {
				d := b.delay(tt.attempt)
				if d < tt.base || d > tt.base+tt.base/10 {
					t.Fatalf("delay(%d) = %v, want within [%v, %v]", tt.attempt, d, tt.base, tt.base+tt.base/10)
				}
			}
		})
	}
}

func TestParseParameter(t *testing.T) {
	tests := []struct {
		input string
		want  any
	}{
		{"1", int64(1)},
		{"-3", int64(-3)},
		{"true", true},
		{"false", false},
		{"0,freq,650", "0,freq,650"},
		{"stratum+tcp://pool:3333", "stratum+tcp://pool:3333"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseParameter(tt.input); got != tt.want {
				t.Errorf("parseParameter(%q) = %#v, want %#v", tt.input, got, tt.want)
			}
		})
	}
}

func TestScanStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ok"},
		{"canceled", context.Canceled, "canceled"},
		{"timeout", &minerrpc.TimeoutError{Op: "read"}, "offline"},
		{"empty", &minerrpc.RemoteCommandError{Err: minerrpc.ErrEmptyResponse}, "no-data"},
		{"refused", &minerrpc.RemoteCommandError{Err: minerrpc.ErrConnectionRefused}, "no-data"},
		{"remote", &minerrpc.RemoteCommandError{Message: "Invalid command"}, "error"},
		{"decode", &minerrpc.ProtocolDecodeError{Err: errors.New("bad")}, "bad-reply"},
		{"other", errors.New("boom"), "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanStatus(tt.err); got != tt.want {
				t.Errorf("scanStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

// flakyTransport times out a fixed number of times per host before answering
type flakyTransport struct {
	mu       sync.Mutex
	timeouts map[string]int
	reply    string
}

func (f *flakyTransport) RoundTrip(_ context.Context, ex minerrpc.Exchange) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timeouts[ex.Addr] > 0 {
		f.timeouts[ex.Addr]--
		return nil, &minerrpc.TimeoutError{Op: "read", Addr: ex.Addr, Err: os.ErrDeadlineExceeded}
	}
	return []byte(f.reply), nil
}

func TestScan(t *testing.T) {
	ft := &flakyTransport{
		timeouts: map[string]int{"10.0.0.2:4028": 1, "10.0.0.3:4028": 5},
		reply:    summaryReply,
	}

	var clients []*minerrpc.Client
	for _, host := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		c, err := minerrpc.NewClient(host, minerrpc.WithTransport(ft))
		if err != nil {
			t.Fatalf("NewClient() error = %v", err)
		}
		clients = append(clients, c)
	}

	opts := scanOptions{command: "summary", path: "SUMMARY.0.Elapsed", concurrency: 2, retries: 2}
	b := backoff{minDelay: time.Millisecond, maxDelay: 5 * time.Millisecond, factor: 2}

	results, err := scan(context.Background(), clients, opts, b)
	if err != nil {
		t.Fatalf("scan() error = %v", err)
	}

	want := []scanResult{
		{Host: "10.0.0.1", Status: "ok", Value: "3600", Attempts: 1},
		{Host: "10.0.0.2", Status: "ok", Value: "3600", Attempts: 2},
		{Host: "10.0.0.3", Status: "offline", Value: "", Attempts: 3},
	}
	for i, w := range want {
		got := results[i]
		if got.Host != w.Host || got.Status != w.Status || got.Value != w.Value || got.Attempts != w.Attempts {
			t.Errorf("results[%d] = %+v, want %+v", i, got, w)
		}
	}

	var out bytes.Buffer
	if err := writeResults(&out, results); err != nil {
		t.Fatalf("writeResults() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "HOST") {
		t.Errorf("writeResults() = %q, want header and three rows", out.String())
	}
}

func TestScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := minerrpc.NewClient("10.0.0.1", minerrpc.WithTransport(&flakyTransport{reply: summaryReply}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = scan(ctx, []*minerrpc.Client{c}, scanOptions{command: "summary", concurrency: 1}, defaultBackoff)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("scan() error = %v, want context.Canceled", err)
	}
}

func TestCommandsCmd(t *testing.T) {
	t.Run("flag", func(t *testing.T) {
		out, err := runRoot(t, "commands", "--dialect", "btminer")
		if err != nil {
			t.Fatalf("commands error = %v", err)
		}
		if !strings.Contains(out, "get_psu (unbatchable)\n") || !strings.Contains(out, "summary\n") {
			t.Errorf("commands output = %q, want btminer commands", out)
		}
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("MINERRPC_DIALECT", "btminer")
		out, err := runRoot(t, "commands")
		if err != nil {
			t.Fatalf("commands error = %v", err)
		}
		if !strings.Contains(out, "status (unbatchable)") {
			t.Errorf("commands output = %q, want btminer commands", out)
		}
	})

	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "minerrpc.yaml")
		if err := os.WriteFile(path, []byte("dialect: bosminer\n"), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		out, err := runRoot(t, "commands", "--config", path)
		if err != nil {
			t.Fatalf("commands error = %v", err)
		}
		if !strings.Contains(out, "tunerstatus\n") {
			t.Errorf("commands output = %q, want bosminer commands", out)
		}
	})

	t.Run("invalid dialect", func(t *testing.T) {
		if _, err := runRoot(t, "commands", "--dialect", "vnish"); err == nil {
			t.Error("commands error = nil, want invalid dialect error")
		}
	})
}

func TestSendCmd(t *testing.T) {
	requests := make(chan string, 4)
	host, port := serveMiner(t, func(request string) string {
		requests <- request
		return summaryReply + "\x00"
	})

	out, err := runRoot(t, "send", host, "summary", "--port", port, "--path", "SUMMARY.0.Elapsed")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if strings.TrimSpace(out) != "3600" {
		t.Errorf("send output = %q, want 3600", out)
	}
	if got := <-requests; got != `{"command":"summary"}` {
		t.Errorf("miner received %q", got)
	}

	_, err = runRoot(t, "send", host, "switchpool", "1", "--port", port, "--field", "new_api=true")
	if err != nil {
		t.Fatalf("send error = %v", err)
	}
	if got := <-requests; got != `{"command":"switchpool","parameter":1,"new_api":true}` {
		t.Errorf("miner received %q", got)
	}

	if _, err := runRoot(t, "send", host, "summary", "--port", port, "--field", "broken"); err == nil {
		t.Error("send error = nil, want invalid field error")
	}
}

func TestMultiCmd(t *testing.T) {
	host, port := serveMiner(t, func(string) string {
		return `{"summary":[{"STATUS":[{"STATUS":"S"}],"SUMMARY":[{"Elapsed":3600}]}],` +
			`"pools":[{"STATUS":[{"STATUS":"S"}],"POOLS":[{"URL":"stratum+tcp://pool:3333"}]}],"id":1}`
	})

	out, err := runRoot(t, "multi", host, "summary", "pools", "--port", port, "--path", "pools.0.POOLS.0.URL")
	if err != nil {
		t.Fatalf("multi error = %v", err)
	}
	if strings.TrimSpace(out) != "stratum+tcp://pool:3333" {
		t.Errorf("multi output = %q", out)
	}
}

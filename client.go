// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Default client configuration values
const (
	DefaultPort                = 4028
	DefaultConnectTimeout      = 10 * time.Second
	DefaultWriteTimeout        = 10 * time.Second
	DefaultReadTimeout         = 100 * time.Second
	DefaultTrailingReadTimeout = 500 * time.Millisecond
	DefaultChunkSize           = 4096
	DefaultMaxResponseSize     = 8 * 1024 * 1024
	DefaultPrettyPrintLogs     = false
)

// Security limits for JSON logging
const (
	MaxJSONSizeForLogging = 1 * 1024 * 1024 // 1MB limit to bound regex work
	JSONTooLargeMessage   = "[JSON TOO LARGE FOR LOGGING]"
)

// connectionRefusedReply is the plain-text payload some proxying firmware
// sends instead of JSON when its backend is down
var connectionRefusedReply = []byte("Socket connect failed: Connection refused\n")

// defaultRedactionPatterns redact credentials from logged requests and replies
var defaultRedactionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"(password|pwd|token|sign|salt|newsalt)"\s*:\s*"[^"]*"`),
	// addpool parameter: "url,user,password"
	regexp.MustCompile(`("command"\s*:\s*"addpool"\s*,\s*"parameter"\s*:\s*"[^",]*,[^",]*,)[^"]*"`),
}

// Client sends RPC commands to one miner
//
// A Client holds configuration only. Every command opens a fresh TCP
// connection, so a Client is safe for concurrent use; calls to the same
// miner are not serialized. Firmware command ports are typically
// single-threaded, so callers should bound concurrency per miner.
type Client struct {
	// Connection parameters
	Host string
	Port int

	// Timeout configuration
	ConnectTimeout      time.Duration
	WriteTimeout        time.Duration
	ReadTimeout         time.Duration
	TrailingReadTimeout time.Duration

	// Read buffer configuration
	ChunkSize       int
	MaxResponseSize int

	dialect   Dialect
	transport Transport

	// Logging configuration
	logger            Logger
	prettyPrintLogs   bool
	redactionPatterns []*regexp.Regexp

	// Observability
	registerer     prometheus.Registerer
	metrics        *metrics
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
}

// NewClient creates a new miner RPC client for the given host
//
// No connection is made here; each command opens its own connection.
//
// Example:
//
//	client, err := minerrpc.NewClient(
//	    "10.0.0.50",
//	    minerrpc.WithDialect(minerrpc.BTMiner),
//	    minerrpc.ReadTimeout(10*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err) // Configuration error
//	}
//
//	res, err := client.Summary(ctx)
//
// Returns a configured Client or an error if configuration validation fails.
func NewClient(host string, opts ...func(*Client)) (*Client, error) {
	client := &Client{
		Host:                host,
		Port:                DefaultPort,
		ConnectTimeout:      DefaultConnectTimeout,
		WriteTimeout:        DefaultWriteTimeout,
		ReadTimeout:         DefaultReadTimeout,
		TrailingReadTimeout: DefaultTrailingReadTimeout,
		ChunkSize:           DefaultChunkSize,
		MaxResponseSize:     DefaultMaxResponseSize,
		dialect:             CGMiner,
		logger:              &NoOpLogger{},
		prettyPrintLogs:     DefaultPrettyPrintLogs,
		redactionPatterns:   defaultRedactionPatterns,
	}

	for _, opt := range opts {
		opt(client)
	}

	if err := client.validateConfig(); err != nil {
		return nil, err
	}

	if client.transport == nil {
		client.transport = NewTCPTransport(client.logger)
	}

	if client.registerer != nil {
		m, err := newMetrics(client.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		client.metrics = m
	}

	if client.tracerProvider == nil {
		client.tracerProvider = noop.NewTracerProvider()
	}
	client.tracer = client.tracerProvider.Tracer("github.com/netascode/go-minerrpc")

	client.logger.Debug(context.Background(), "miner RPC client created",
		"addr", client.Addr(),
		"dialect", client.dialect.Name)

	return client, nil
}

// String returns "<dialect>: <addr>"
func (c *Client) String() string {
	return fmt.Sprintf("%s: %s", c.dialect.Name, c.Addr())
}

// Addr returns the "host:port" address commands are sent to
func (c *Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Dialect returns the client's firmware dialect
func (c *Client) Dialect() Dialect {
	return c.dialect
}

// Commands returns the command names this client is willing to send,
// sorted. This is the filter Multicommand applies before batching.
//
// Example:
//
//	for _, cmd := range client.Commands() {
//	    fmt.Println(cmd)
//	}
func (c *Client) Commands() []string {
	result := make([]string, len(c.dialect.Commands))
	copy(result, c.dialect.Commands)
	sort.Strings(result)
	return result
}

// HasCommand reports whether the client's dialect registers the command
func (c *Client) HasCommand(command string) bool {
	return c.dialect.Supports(command)
}

// validateConfig validates client configuration
//
// Validates:
//   - Host is non-empty and carries no port or whitespace
//   - Port range (1-65535)
//   - Positive timeouts
//   - ChunkSize > 0 and MaxResponseSize >= ChunkSize (or 0 for unlimited)
//   - Dialect has a name
//
// Returns an error if validation fails.
func (c *Client) validateConfig() error {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if host != c.Host || strings.ContainsAny(host, " \t\r\n") {
		return fmt.Errorf("host contains whitespace: %q", c.Host)
	}
	if strings.Contains(host, ":") && net.ParseIP(host) == nil {
		return fmt.Errorf("host must not include a port, use Port(): %s", host)
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}

	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", c.ConnectTimeout)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive, got: %v", c.WriteTimeout)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got: %v", c.ReadTimeout)
	}
	if c.TrailingReadTimeout <= 0 {
		return fmt.Errorf("trailing read timeout must be positive, got: %v", c.TrailingReadTimeout)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got: %d", c.ChunkSize)
	}
	if c.MaxResponseSize < 0 || (c.MaxResponseSize > 0 && c.MaxResponseSize < c.ChunkSize) {
		return fmt.Errorf("max response size (%d) must be 0 or at least the chunk size (%d)",
			c.MaxResponseSize, c.ChunkSize)
	}

	if c.dialect.Name == "" {
		return fmt.Errorf("dialect must have a name")
	}

	return nil
}

// prepareJSONForLogging redacts credentials and optionally pretty-prints
// JSON for Debug logs
func (c *Client) prepareJSONForLogging(jsonStr string) string {
	if len(jsonStr) > MaxJSONSizeForLogging {
		return JSONTooLargeMessage
	}

	redacted := c.redactSensitiveData(jsonStr)

	if c.prettyPrintLogs {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(redacted), "", "  "); err == nil {
			return buf.String()
		}
	}

	return redacted
}

// redactSensitiveData replaces credentials with [REDACTED]
//
// Redacts:
//   - "password", "pwd", "token", "sign", "salt", "newsalt" string fields
//   - the password part of an addpool "url,user,password" parameter
func (c *Client) redactSensitiveData(s string) string {
	for _, pattern := range c.redactionPatterns {
		s = pattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			switch {
			case len(sub) > 1 && strings.HasPrefix(sub[1], `"command"`):
				return sub[1] + `[REDACTED]"`
			case len(sub) > 1:
				return `"` + sub[1] + `":"[REDACTED]"`
			default:
				return `"[REDACTED]"`
			}
		})
	}
	return s
}

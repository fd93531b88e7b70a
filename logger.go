// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"
)

// MaxLogValueLength limits the length of log values. Miner replies can be
// several hundred kilobytes of error lists, so values longer than this are
// truncated.
const MaxLogValueLength = 1024

// Logger interface for pluggable logging support
//
// Implementations should use structured logging with key-value pairs.
// The go-minerrpc library provides two implementations:
//   - DefaultLogger: Wraps Go's standard log package with configurable log level
//   - NoOpLogger: Zero-overhead logging when disabled (default)
//
// Example custom logger integration:
//
//	type SlogAdapter struct {
//	    logger *slog.Logger
//	}
//
//	func (s *SlogAdapter) Debug(ctx context.Context, msg string, keysAndValues ...any) {
//	    s.logger.DebugContext(ctx, msg, keysAndValues...)
//	}
//	// ... implement Info, Warn, Error
//
//	client, _ := minerrpc.NewClient("10.0.0.50",
//	    minerrpc.WithLogger(&SlogAdapter{logger: slog.Default()}))
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

// LogLevel represents the severity threshold for logging
type LogLevel int

const (
	// LogLevelDebug enables all log levels (most verbose)
	LogLevelDebug LogLevel = iota

	// LogLevelInfo enables Info, Warn, and Error logs
	LogLevelInfo

	// LogLevelWarn enables Warn and Error logs
	LogLevelWarn

	// LogLevelError enables only Error logs
	LogLevelError

	// LogLevelNone disables all logging
	LogLevelNone
)

// String returns the string representation of a LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLogLevel converts a case-insensitive level name into a LogLevel.
// Unknown names return LogLevelInfo and false.
func ParseLogLevel(name string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LogLevelDebug, true
	case "INFO":
		return LogLevelInfo, true
	case "WARN", "WARNING":
		return LogLevelWarn, true
	case "ERROR":
		return LogLevelError, true
	case "NONE", "OFF":
		return LogLevelNone, true
	default:
		return LogLevelInfo, false
	}
}

// DefaultLogger wraps Go's standard log package with configurable log level
//
// Log output format: [LEVEL] message key1=value1 key2=value2
//
// Example:
//
//	logger := minerrpc.NewDefaultLogger(minerrpc.LogLevelDebug)
//	client, _ := minerrpc.NewClient("10.0.0.50",
//	    minerrpc.WithLogger(logger))
type DefaultLogger struct {
	level LogLevel
}

// NewDefaultLogger creates a DefaultLogger with the specified log level
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level}
}

// Debug logs a debug message with structured key-value pairs
func (l *DefaultLogger) Debug(_ context.Context, msg string, keysAndValues ...any) {
	if l.level <= LogLevelDebug {
		l.log(LogLevelDebug, msg, keysAndValues...)
	}
}

// Info logs an informational message with structured key-value pairs
func (l *DefaultLogger) Info(_ context.Context, msg string, keysAndValues ...any) {
	if l.level <= LogLevelInfo {
		l.log(LogLevelInfo, msg, keysAndValues...)
	}
}

// Warn logs a warning message with structured key-value pairs
func (l *DefaultLogger) Warn(_ context.Context, msg string, keysAndValues ...any) {
	if l.level <= LogLevelWarn {
		l.log(LogLevelWarn, msg, keysAndValues...)
	}
}

// Error logs an error message with structured key-value pairs
func (l *DefaultLogger) Error(_ context.Context, msg string, keysAndValues ...any) {
	if l.level <= LogLevelError {
		l.log(LogLevelError, msg, keysAndValues...)
	}
}

// sanitizeLogValue sanitizes a log value to prevent log injection and limit
// log size. Firmware replies routinely contain embedded newlines and NUL
// bytes, which would otherwise split or corrupt log lines.
//
// Example:
//
//	Input: "user\n[ERROR] Fake attack message"
//	Output: "user [ERROR] Fake attack message"
func sanitizeLogValue(val any) string {
	str := fmt.Sprintf("%v", val)

	if len(str) > MaxLogValueLength {
		str = str[:MaxLogValueLength] + "...[TRUNCATED]"
	}

	var builder strings.Builder
	builder.Grow(len(str))

	for i := 0; i < len(str); i++ {
		r := rune(str[i])

		if r >= 0x80 {
			decoded, size := utf8.DecodeRuneInString(str[i:])
			if decoded == utf8.RuneError {
				builder.WriteRune('.')
				if size == 0 {
					size = 1
				}
				i += size - 1
				continue
			}

			switch decoded {
			case 0x200B, 0x200C, 0x200D, 0xFEFF: // Zero-width characters
			case 0x202E: // Right-to-left override
				builder.WriteRune(' ')
				i += size - 1
			default:
				builder.WriteString(str[i : i+size])
				i += size - 1
			}
			continue
		}

		switch r {
		case '\n', '\r', '\t', 0x0C:
			builder.WriteRune(' ')
		case 0x1B, 0x07, 0x08:
			builder.WriteRune('.')
		default:
			if r < 32 || r == 127 {
				builder.WriteRune('.')
			} else {
				builder.WriteRune(r)
			}
		}
	}

	return builder.String()
}

// log formats and outputs a log message with structured key-value pairs
//
// Keys and values are sanitized; the message comes from the library itself
// and is written as-is.
func (l *DefaultLogger) log(level LogLevel, msg string, keysAndValues ...any) {
	if l.level > level {
		return
	}

	name := level.String()
	var builder strings.Builder
	builder.Grow(len(name) + len(msg) + 10 + (len(keysAndValues) * 25))

	builder.WriteString("[")
	builder.WriteString(name)
	builder.WriteString("] ")
	builder.WriteString(msg)

	for i := 0; i < len(keysAndValues); i += 2 {
		builder.WriteString(" ")
		builder.WriteString(sanitizeLogValue(keysAndValues[i]))

		if i+1 < len(keysAndValues) {
			builder.WriteString("=")
			builder.WriteString(sanitizeLogValue(keysAndValues[i+1]))
		} else {
			builder.WriteString("=<MISSING>")
		}
	}

	log.Println(builder.String())
}

// NoOpLogger is a no-operation logger that discards all log messages
//
// This is the default logger used by go-minerrpc when no custom logger
// is configured.
type NoOpLogger struct{}

// Debug discards the log message
func (n *NoOpLogger) Debug(_ context.Context, _ string, _ ...any) {}

// Info discards the log message
func (n *NoOpLogger) Info(_ context.Context, _ string, _ ...any) {}

// Warn discards the log message
func (n *NoOpLogger) Warn(_ context.Context, _ string, _ ...any) {}

// Error discards the log message
func (n *NoOpLogger) Error(_ context.Context, _ string, _ ...any) {}

// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package minerrpc

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// counterValue returns the value of minerrpc_commands_total for the labels
func counterValue(t *testing.T, reg *prometheus.Registry, labels map[string]string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "minerrpc_commands_total" {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// histogramCount returns the sample count of the named histogram family
func histogramCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var total uint64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
	}
	return total
}

func TestMetrics(t *testing.T) {
	replies := map[string]string{
		"summary": okReply("summary"),
		"foo":     errorReply("Invalid command"),
		"pools":   "",
	}
	ft := &scriptedTransport{handle: func(command string) ([]byte, error) {
		return []byte(replies[command]), nil
	}}

	reg := prometheus.NewRegistry()
	client := newTestClient(t, ft, WithMetrics(reg))
	ctx := context.Background()

	client.SendCommand(ctx, "summary")                 //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "summary")                 //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "foo")                     //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "foo", IgnoreErrors())     //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "pools")                   //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "pools", IgnoreErrors())   //nolint:errcheck // outcome recorded in metrics
	client.SendCommand(ctx, "summary", Parameter(nil)) //nolint:errcheck // outcome recorded in metrics

	tests := []struct {
		command string
		outcome string
		want    float64
	}{
		{"summary", OutcomeSuccess, 3},
		{"foo", OutcomeRemote, 1},
		{"foo", OutcomeIgnored, 1},
		{"pools", OutcomeEmpty, 1},
		{"pools", OutcomeIgnored, 1},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.outcome, func(t *testing.T) {
			got := counterValue(t, reg, map[string]string{
				"dialect": "cgminer",
				"command": tt.command,
				"outcome": tt.outcome,
			})
			if got != tt.want {
				t.Errorf("commands_total = %v, want %v", got, tt.want)
			}
		})
	}

	if got := histogramCount(t, reg, "minerrpc_command_duration_seconds"); got != 7 {
		t.Errorf("command_duration_seconds count = %d, want 7", got)
	}
	if got := histogramCount(t, reg, "minerrpc_response_bytes"); got != 7 {
		t.Errorf("response_bytes count = %d, want 7", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *metrics
	// must not panic without WithMetrics
	m.observe("cgminer", "summary", OutcomeSuccess, 0, 10)
}

// spanAttr returns the span attribute value for key
func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) attribute.Value {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { tp.Shutdown(context.Background()) }) //nolint:errcheck // test cleanup

	ft := &scriptedTransport{handle: func(command string) ([]byte, error) {
		if command == "summary" {
			return []byte(okReply("summary")), nil
		}
		return []byte(errorReply("Invalid command")), nil
	}}
	client := newTestClient(t, ft, WithTracerProvider(tp), WithDialect(BMMiner))

	client.SendCommand(context.Background(), "summary") //nolint:errcheck // checked via spans
	client.SendCommand(context.Background(), "foo")     //nolint:errcheck // checked via spans

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	ok, failed := spans[0], spans[1]
	if ok.Name() != "minerrpc summary" {
		t.Errorf("span name = %q, want %q", ok.Name(), "minerrpc summary")
	}
	if got := spanAttr(ok, "minerrpc.dialect").AsString(); got != "bmminer" {
		t.Errorf("minerrpc.dialect = %q, want bmminer", got)
	}
	if got := spanAttr(ok, "server.port").AsInt64(); got != DefaultPort {
		t.Errorf("server.port = %d, want %d", got, DefaultPort)
	}
	if got := spanAttr(ok, "minerrpc.outcome").AsString(); got != OutcomeSuccess {
		t.Errorf("minerrpc.outcome = %q, want %q", got, OutcomeSuccess)
	}
	if ok.Status().Code == codes.Error {
		t.Error("successful command recorded an error status")
	}

	if got := spanAttr(failed, "minerrpc.outcome").AsString(); got != OutcomeRemote {
		t.Errorf("minerrpc.outcome = %q, want %q", got, OutcomeRemote)
	}
	if failed.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", failed.Status().Code)
	}
	if len(failed.Events()) == 0 {
		t.Error("failed command recorded no error event")
	}
}

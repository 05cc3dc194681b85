package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[m.Name] += dp.Value
			}
		}
	}
	return out
}

func TestSessionMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewSessionMetrics(provider)
	if err != nil {
		t.Fatalf("NewSessionMetrics: %v", err)
	}
	ctx := context.Background()
	m.Interaction(ctx)
	m.Interaction(ctx)
	m.Tokens(ctx, "user", 7)
	m.Tokens(ctx, "assistant", 5)
	m.Tokens(ctx, "user", 0)
	m.Violation(ctx, "token_limit")
	m.ConnectionFailure(ctx)

	got := collect(t, reader)
	want := map[string]int64{
		"voice.session.interactions":        2,
		"voice.session.tokens":              12,
		"voice.session.policy_violations":   1,
		"voice.session.connection_failures": 1,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
}

func TestSessionMetrics_NilSafe(t *testing.T) {
	var m *SessionMetrics
	ctx := context.Background()
	m.Interaction(ctx)
	m.Tokens(ctx, "user", 3)
	m.Violation(ctx, "revoked")
	m.ConnectionFailure(ctx)

	noop, err := NewSessionMetrics(nil)
	if err != nil {
		t.Fatalf("NewSessionMetrics(nil): %v", err)
	}
	noop.Interaction(ctx)
}

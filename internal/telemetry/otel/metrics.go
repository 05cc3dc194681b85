package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// SessionMetrics records quota counters for voice sessions. The zero value and nil are no-ops.
type SessionMetrics struct {
	interactions       metric.Int64Counter
	tokens             metric.Int64Counter
	violations         metric.Int64Counter
	connectionFailures metric.Int64Counter
}

// NewSessionMetrics registers the session counters on the given MeterProvider.
// A nil provider uses a no-op meter.
func NewSessionMetrics(provider metric.MeterProvider) (*SessionMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	m := &SessionMetrics{}
	var err error
	if m.interactions, err = meter.Int64Counter("voice.session.interactions",
		metric.WithDescription("Completed user utterances.")); err != nil {
		return nil, err
	}
	if m.tokens, err = meter.Int64Counter("voice.session.tokens",
		metric.WithDescription("Estimated tokens consumed."), metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if m.violations, err = meter.Int64Counter("voice.session.policy_violations",
		metric.WithDescription("Sessions blocked by the quota policy.")); err != nil {
		return nil, err
	}
	if m.connectionFailures, err = meter.Int64Counter("voice.session.connection_failures",
		metric.WithDescription("Failed attempts to start a realtime session.")); err != nil {
		return nil, err
	}
	return m, nil
}

// Interaction counts one completed utterance.
func (m *SessionMetrics) Interaction(ctx context.Context) {
	if m == nil || m.interactions == nil {
		return
	}
	m.interactions.Add(ctx, 1)
}

// Tokens adds n estimated tokens attributed to role (user or assistant).
func (m *SessionMetrics) Tokens(ctx context.Context, role string, n int) {
	if m == nil || m.tokens == nil || n <= 0 {
		return
	}
	m.tokens.Add(ctx, int64(n), metric.WithAttributes(attribute.String("role", role)))
}

// Violation counts a block with its reason.
func (m *SessionMetrics) Violation(ctx context.Context, reason string) {
	if m == nil || m.violations == nil {
		return
	}
	m.violations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// ConnectionFailure counts a failed start.
func (m *SessionMetrics) ConnectionFailure(ctx context.Context) {
	if m == nil || m.connectionFailures == nil {
		return
	}
	m.connectionFailures.Add(ctx, 1)
}

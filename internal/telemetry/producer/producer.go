// Package producer defines the interface for emitting telemetry events to a broker (Kafka).
package producer

import (
	"context"

	"voice-trial-agent/internal/telemetry/domain"
)

// Producer emits telemetry events. It satisfies telemetry.EventEmitter. Callers use it best-effort.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; wrap with telemetry.EmitAsync from hot paths.
	Emit(ctx context.Context, event *domain.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}

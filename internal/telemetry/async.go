package telemetry

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"voice-trial-agent/internal/telemetry/domain"
)

// emitTimeout bounds one async emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest a binary should wait in Drain before closing its
// exporters. It covers one full emitTimeout.
const ShutdownDrainDuration = emitTimeout

const drainPoll = 10 * time.Millisecond

// inflight counts EmitAsync goroutines that have not returned yet.
var inflight atomic.Int64

// EmitAsync emits event on its own goroutine so the talk loop and request handlers never wait
// on an exporter. Failures are logged. The emit keeps the values of ctx but not its
// cancellation, and runs under emitTimeout.
//
// A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Add(-1)
		emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			log.Printf("telemetry: async emit of %s failed: %v", event.EventType, err)
		}
	}()
}

// Pending returns the number of async emits still running.
func Pending() int64 { return inflight.Load() }

// Drain blocks until every async emit has returned or ctx is done.
func Drain(ctx context.Context) error {
	t := time.NewTicker(drainPoll)
	defer t.Stop()
	for inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("telemetry: drain with %d emits pending: %w", inflight.Load(), ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

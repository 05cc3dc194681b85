package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"voice-trial-agent/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent builds an Event with a fresh ID and the current UTC time. metadata may be nil;
// if it cannot be encoded the event is returned without it.
func NewEvent(eventType, source, email string, metadata map[string]any) *domain.Event {
	ev := &domain.Event{
		ID:            uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		IdentityEmail: email,
		CreatedAt:     time.Now().UTC(),
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			ev.Metadata = b
		} else {
			log.Printf("telemetry: encode metadata for %s: %v", eventType, err)
		}
	}
	return ev
}

// Multi fans an event out to every non-nil emitter. All emitters are attempted; errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

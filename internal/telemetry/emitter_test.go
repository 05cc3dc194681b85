package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"voice-trial-agent/internal/telemetry/domain"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*domain.Event
	emitErr error
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) getEvents() []*domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.Event(nil), m.events...)
}

// waitForEvents polls until the emitter has recorded n events or the deadline passes.
func waitForEvents(t *testing.T, m *mockEventEmitter, n int) []*domain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := m.getEvents(); len(ev) >= n {
			return ev
		}
		time.Sleep(5 * time.Millisecond)
	}
	ev := m.getEvents()
	t.Fatalf("expected %d events, got %d", n, len(ev))
	return nil
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(domain.EventInteraction, "client", "u@example.com", map[string]any{"count": 2})
	if ev.ID == "" {
		t.Error("ID should be set")
	}
	if ev.EventType != domain.EventInteraction || ev.Source != "client" || ev.IdentityEmail != "u@example.com" {
		t.Errorf("event = %+v", ev)
	}
	if ev.CreatedAt.IsZero() || ev.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt = %v, want non-zero UTC", ev.CreatedAt)
	}
	var md map[string]int
	if err := json.Unmarshal(ev.Metadata, &md); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md["count"] != 2 {
		t.Errorf("metadata count = %d, want 2", md["count"])
	}
}

func TestNewEvent_NoMetadata(t *testing.T) {
	ev := NewEvent(domain.EventLogout, "client", "", nil)
	if ev.Metadata != nil {
		t.Errorf("Metadata = %s, want nil", ev.Metadata)
	}
	other := NewEvent(domain.EventLogout, "client", "", nil)
	if ev.ID == other.ID {
		t.Error("IDs should be unique")
	}
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &mockEventEmitter{}
	boom := errors.New("boom")
	b := &mockEventEmitter{emitErr: boom}
	em := Multi(a, nil, b)
	ev := NewEvent("test", "test", "", nil)

	err := em.Emit(context.Background(), ev)
	if !errors.Is(err, boom) {
		t.Errorf("Emit error = %v, want %v", err, boom)
	}
	if len(a.getEvents()) != 1 || len(b.getEvents()) != 1 {
		t.Errorf("each emitter should receive the event once: a=%d b=%d", len(a.getEvents()), len(b.getEvents()))
	}
}

func TestMulti_Empty(t *testing.T) {
	if err := Multi().Emit(context.Background(), NewEvent("test", "test", "", nil)); err != nil {
		t.Errorf("empty Multi should not fail: %v", err)
	}
}

func TestEmitAsync_NilEmitterOrEvent(t *testing.T) {
	// Should not panic
	EmitAsync(nil, context.Background(), NewEvent("test", "test", "", nil))

	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(), nil)
	time.Sleep(10 * time.Millisecond)
	if n := len(emitter.getEvents()); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := &mockEventEmitter{}
	EmitAsync(emitter, context.Background(), NewEvent("test_event", "test", "u@example.com", nil))

	events := waitForEvents(t, emitter, 1)
	if events[0].EventType != "test_event" {
		t.Errorf("event type = %q, want %q", events[0].EventType, "test_event")
	}
	if events[0].IdentityEmail != "u@example.com" {
		t.Errorf("identity = %q, want %q", events[0].IdentityEmail, "u@example.com")
	}
}

func TestEmitAsync_UsesBackgroundContext(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	EmitAsync(emitter, ctx, NewEvent("test", "test", "", nil))
	waitForEvents(t, emitter, 1)
}

func TestEmitAsync_ErrorIsSwallowed(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: context.DeadlineExceeded}
	EmitAsync(emitter, context.Background(), NewEvent("test", "test", "", nil))
	waitForEvents(t, emitter, 1)
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, context.Background(), NewEvent("test", "test", "", nil))
		}()
	}
	wg.Wait()
	waitForEvents(t, emitter, 10)
}

// blockingEmitter holds every Emit until release is closed.
type blockingEmitter struct {
	release chan struct{}
}

func (b *blockingEmitter) Emit(ctx context.Context, event *domain.Event) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestDrain_WaitsForPendingEmits(t *testing.T) {
	b := &blockingEmitter{release: make(chan struct{})}
	EmitAsync(b, context.Background(), NewEvent("test", "test", "", nil))
	EmitAsync(b, context.Background(), NewEvent("test", "test", "", nil))
	if n := Pending(); n < 2 {
		t.Fatalf("Pending = %d, want at least 2", n)
	}

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := Drain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain with blocked emits = %v, want deadline exceeded", err)
	}

	close(b.release)
	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := Drain(ctx); err != nil {
		t.Fatalf("Drain after release: %v", err)
	}
	if n := Pending(); n != 0 {
		t.Errorf("Pending after Drain = %d, want 0", n)
	}
}

func TestDrain_NothingPending(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := Drain(ctx); err != nil {
		t.Errorf("Drain: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"voice-trial-agent/internal/config"
)

// fakeReader returns queued messages and errors in order, then blocks until ctx is done.
type fakeReader struct {
	mu    sync.Mutex
	queue []readResult
}

type readResult struct {
	msg kafka.Message
	err error
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return next.msg, next.err
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

type fakePusher struct {
	mu     sync.Mutex
	lines  []string
	failOn string
	done   chan struct{}
	want   int
}

func (p *fakePusher) PushEventJSON(ctx context.Context, raw []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, string(raw))
	if len(p.lines) == p.want {
		close(p.done)
	}
	if p.failOn != "" && strings.Contains(string(raw), p.failOn) {
		return errors.New("loki down")
	}
	return nil
}

func TestConsume_PushesAndCounts(t *testing.T) {
	readBackoff = time.Millisecond
	r := &fakeReader{queue: []readResult{
		{msg: kafka.Message{Value: []byte(`{"eventType":"session_started"}`)}},
		{err: errors.New("broker unreachable")},
		{msg: kafka.Message{Value: []byte(`{"eventType":"policy_violation","metadata":{"reason":"token_limit"}}`)}},
		{msg: kafka.Message{Value: []byte(`{"eventType":"tokens","metadata":{"role":"user"}}`), Offset: 7}},
	}}
	p := &fakePusher{failOn: "tokens", done: make(chan struct{}), want: 3}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan stats, 1)
	go func() { result <- consume(ctx, r, p) }()

	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("messages were not pushed")
	}
	cancel()
	st := <-result

	if st != (stats{read: 3, pushed: 2, failed: 1}) {
		t.Errorf("stats = %+v", st)
	}
	if len(p.lines) != 3 || !strings.Contains(p.lines[1], "policy_violation") {
		t.Errorf("pushed lines = %v", p.lines)
	}
}

func TestConsume_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st := consume(ctx, &fakeReader{}, &fakePusher{done: make(chan struct{})})
	if st != (stats{}) {
		t.Errorf("stats = %+v, want zero", st)
	}
}

func TestRun_RequiresBrokersAndLoki(t *testing.T) {
	if err := run(context.Background(), &config.Config{LokiURL: "http://localhost:3100"}); err == nil || !strings.Contains(err.Error(), "KAFKA_BROKERS") {
		t.Errorf("run without brokers = %v", err)
	}
	if err := run(context.Background(), &config.Config{TelemetryKafkaBrokers: "localhost:9092"}); err == nil || !strings.Contains(err.Error(), "LOKI_URL") {
		t.Errorf("run without Loki = %v", err)
	}
}

package voice

import (
	"context"
	"sync"
	"testing"
	"time"

	policydomain "voice-trial-agent/internal/policy/domain"
	"voice-trial-agent/internal/realtime"
)

// fakeConn mimics realtime.Session: events stop and Done closes once Close or hangup is called.
type fakeConn struct {
	in      chan realtime.Event
	events  chan realtime.Event
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	calls []string
	sent  int
}

func newFakeConn() *fakeConn {
	c := &fakeConn{
		in:      make(chan realtime.Event),
		events:  make(chan realtime.Event),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		defer close(c.events)
		for {
			select {
			case <-c.closing:
				return
			case ev := <-c.in:
				select {
				case c.events <- ev:
				case <-c.closing:
					return
				}
			}
		}
	}()
	return c
}

func (c *fakeConn) push(ev realtime.Event) bool {
	select {
	case c.in <- ev:
		return true
	case <-c.closing:
		return false
	}
}

func (c *fakeConn) hangup() { c.once.Do(func() { close(c.closing) }) }

func (c *fakeConn) record(call string) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()
}

func (c *fakeConn) callLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeConn) sentFrames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sent
}

func (c *fakeConn) Events() <-chan realtime.Event { return c.events }
func (c *fakeConn) Done() <-chan struct{}         { return c.done }

func (c *fakeConn) SendAudio(pcm []byte) error {
	select {
	case <-c.closing:
		return realtime.ErrClosed
	default:
	}
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Interrupt() error {
	c.record("interrupt")
	return nil
}

func (c *fakeConn) Mute(muted bool) error {
	if muted {
		c.record("mute")
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.record("close")
	c.hangup()
	<-c.done
	return nil
}

type fakeConnector struct {
	mu    sync.Mutex
	err   error
	keys  []string
	conns []*fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context, credential string) (Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, credential)
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeConnector) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

type fakeFetcher struct {
	mu    sync.Mutex
	key   string
	err   error
	calls int
}

func (f *fakeFetcher) FetchKey(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.key, f.err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCapture struct {
	frames chan []byte
	once   sync.Once
	mu     sync.Mutex
	done   bool
}

func (c *fakeCapture) Frames() <-chan []byte { return c.frames }

func (c *fakeCapture) Stop() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.done = true
		close(c.frames)
		c.mu.Unlock()
	})
	return nil
}

func (c *fakeCapture) send(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.done {
		c.frames <- frame
	}
}

func (c *fakeCapture) stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

type fakeMic struct {
	mu       sync.Mutex
	openErr  error
	captures []*fakeCapture
	sweeps   int
}

func (m *fakeMic) Open(ctx context.Context) (Capture, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	c := &fakeCapture{frames: make(chan []byte, 8)}
	m.captures = append(m.captures, c)
	return c, nil
}

func (m *fakeMic) StopAll() int {
	m.mu.Lock()
	caps := append([]*fakeCapture(nil), m.captures...)
	m.sweeps++
	m.mu.Unlock()
	n := 0
	for _, c := range caps {
		if !c.stopped() {
			_ = c.Stop()
			n++
		}
	}
	return n
}

// active reports whether any capture is still open.
func (m *fakeMic) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.captures {
		if !c.stopped() {
			return true
		}
	}
	return false
}

func (m *fakeMic) opened() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.captures)
}

func (m *fakeMic) sweepCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweeps
}

type recordingNotifier struct {
	mu       sync.Mutex
	states   []State
	messages []Message
	blocked  []policydomain.Verdict
	statuses []Status
}

func (n *recordingNotifier) StateChanged(s State) {
	n.mu.Lock()
	n.states = append(n.states, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) MessageAdded(m Message) {
	n.mu.Lock()
	n.messages = append(n.messages, m)
	n.mu.Unlock()
}

func (n *recordingNotifier) StatusChanged(s Status) {
	n.mu.Lock()
	n.statuses = append(n.statuses, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) Blocked(v policydomain.Verdict) {
	n.mu.Lock()
	n.blocked = append(n.blocked, v)
	n.mu.Unlock()
}

func (n *recordingNotifier) blocks() []policydomain.Verdict {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]policydomain.Verdict(nil), n.blocked...)
}

func (n *recordingNotifier) stateLog() []State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]State(nil), n.states...)
}

type fakePlayer struct {
	mu      sync.Mutex
	played  int
	flushes int
}

func (p *fakePlayer) Play([]byte) {
	p.mu.Lock()
	p.played++
	p.mu.Unlock()
}

func (p *fakePlayer) Flush() {
	p.mu.Lock()
	p.flushes++
	p.mu.Unlock()
}

func (p *fakePlayer) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played, p.flushes
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

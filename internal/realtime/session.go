// Package realtime is a minimal client for the realtime speech API: it opens an authenticated
// WebSocket session for a persona, streams microphone audio up and surfaces transcripts,
// messages and audio as a channel of events.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultURL     = "wss://api.openai.com/v1/realtime"
	DefaultModel   = "gpt-4o-mini-realtime-preview"
	defaultTimeout = 15 * time.Second
	eventBuffer    = 64
)

var ErrClosed = errors.New("realtime: session closed")

// EventType names the events a Session surfaces.
type EventType string

const (
	EventUtteranceTranscribed EventType = "utterance-transcribed"
	EventMessageCreated       EventType = "message-created"
	EventAudioDelta           EventType = "audio-delta"
	EventError                EventType = "error"
)

// Event is one inbound occurrence on a Session. Only the fields of its Type are set.
type Event struct {
	Type       EventType
	Transcript string // utterance-transcribed
	Role       string // message-created: "user" or "assistant"
	Content    string // message-created
	Audio      []byte // audio-delta: PCM16 little-endian
	Err        error  // error
}

// ServerError is an error event reported by the realtime service.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "realtime: " + e.Message }

// Dialer opens realtime sessions.
type Dialer struct {
	URL        string
	Model      string
	Persona    Persona
	SampleRate int
	// HandshakeTimeout bounds dial plus session setup when ctx has no deadline.
	HandshakeTimeout time.Duration
	WS               *websocket.Dialer
}

// NewDialer returns a Dialer for endpoint and model. Empty values select the defaults.
func NewDialer(endpoint, model string, persona Persona, sampleRate int) *Dialer {
	if endpoint == "" {
		endpoint = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Dialer{URL: endpoint, Model: model, Persona: persona, SampleRate: sampleRate, HandshakeTimeout: defaultTimeout}
}

// Dial connects with the short-lived credential and waits until the service has accepted
// the persona configuration.
func (d *Dialer) Dial(ctx context.Context, credential string) (*Session, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, errors.New("realtime: credential is required")
	}
	wsURL, err := d.endpoint()
	if err != nil {
		return nil, err
	}
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ws := d.WS
	if ws == nil {
		ws = websocket.DefaultDialer
	}
	headers := make(http.Header)
	headers.Set("Authorization", "Bearer "+credential)

	conn, resp, err := ws.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s (status %d): %w", wsURL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", wsURL, err)
	}

	deadline, _ := dialCtx.Deadline()
	_ = conn.SetReadDeadline(deadline)
	if err := d.handshake(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := &Session{
		conn:    conn,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

func (d *Dialer) endpoint() (string, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return "", fmt.Errorf("realtime: invalid url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("model", d.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// handshake waits for session.created, sends the persona and waits for session.updated.
func (d *Dialer) handshake(conn *websocket.Conn) error {
	if err := awaitFrame(conn, typeSessionCreated); err != nil {
		return err
	}
	if err := conn.WriteJSON(newSessionUpdate(d.Model, d.Persona, d.SampleRate)); err != nil {
		return fmt.Errorf("realtime: send session.update: %w", err)
	}
	return awaitFrame(conn, typeSessionUpdated)
}

func awaitFrame(conn *websocket.Conn, want string) error {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("realtime: waiting for %s: %w", want, err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		typ, ev, ok, err := decodeFrame(data)
		if err != nil {
			return err
		}
		if ok && ev.Type == EventError {
			return ev.Err
		}
		if typ == want {
			return nil
		}
	}
}

// Session is an open realtime connection.
type Session struct {
	conn *websocket.Conn

	events  chan Event
	done    chan struct{}
	closing chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
	muted     atomic.Bool
}

// Events yields inbound events until the session ends; the channel is then closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done is closed when the read loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// SendAudio appends one PCM16 frame to the input buffer. Frames sent while muted are dropped.
func (s *Session) SendAudio(pcm []byte) error {
	if s.muted.Load() || len(pcm) == 0 {
		return nil
	}
	return s.send(audioAppend{Type: typeAudioAppend, Audio: base64.StdEncoding.EncodeToString(pcm)})
}

// Interrupt cancels the in-flight response.
func (s *Session) Interrupt() error {
	return s.send(simpleEvent{Type: typeResponseCancel})
}

// Mute stops (or resumes) forwarding microphone audio. Muting clears any buffered input.
func (s *Session) Mute(muted bool) error {
	was := s.muted.Swap(muted)
	if muted && !was {
		return s.send(simpleEvent{Type: typeAudioClear})
	}
	return nil
}

// Muted reports whether outbound audio is being dropped.
func (s *Session) Muted() bool { return s.muted.Load() }

func (s *Session) send(v any) error {
	if s.closed.Load() {
		return ErrClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close closes the connection and waits for the read loop. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			s.emit(Event{Type: EventError, Err: fmt.Errorf("realtime: read: %w", err)})
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		_, ev, ok, err := decodeFrame(data)
		if err != nil {
			s.emit(Event{Type: EventError, Err: err})
			continue
		}
		if ok {
			s.emit(ev)
		}
	}
}

// emit blocks until the consumer takes ev or the session is closing.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.closing:
	}
}

// Package voice runs the talk loop: it connects the realtime agent, feeds its events into the
// session policy engine and tears everything down when the policy blocks the session.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"voice-trial-agent/internal/audit"
	policydomain "voice-trial-agent/internal/policy/domain"
	"voice-trial-agent/internal/policy/engine"
	"voice-trial-agent/internal/realtime"
	"voice-trial-agent/internal/telemetry"
	telemetrydomain "voice-trial-agent/internal/telemetry/domain"
	telemetryotel "voice-trial-agent/internal/telemetry/otel"
)

var (
	ErrNotAuthenticated  = errors.New("voice: not authenticated")
	ErrConnectionFailure = errors.New("voice: connection failure")
	ErrPolicyViolation   = errors.New("voice: policy violation")
	ErrBusy              = errors.New("voice: session already connecting or listening")
	ErrAborted           = errors.New("voice: start aborted by stop")
	ErrClosed            = errors.New("voice: controller closed")
)

const (
	// DefaultCheckInterval is how often an active session is re-evaluated.
	DefaultCheckInterval = time.Second

	connectedMessage = "Connected. How can I help?"
	closedMessage    = "Connection closed."
	telemetrySource  = "client"
)

// Options wires a Controller. Auth, Policy, Revoker, Fetcher, Connector and Microphone are required.
type Options struct {
	Auth       Auth
	Policy     Policy
	Revoker    Revoker
	Fetcher    KeyFetcher
	Connector  Connector
	Microphone Microphone

	Player        Player
	Notifier      Notifier
	Emitter       telemetry.EventEmitter
	Metrics       *telemetryotel.SessionMetrics
	Audit         audit.AuditLogger
	CheckInterval time.Duration
}

// Controller owns the realtime connection and the microphone capture for the current identity.
type Controller struct {
	auth      Auth
	policy    Policy
	revoker   Revoker
	fetcher   KeyFetcher
	connector Connector
	mic       Microphone
	player    Player
	notifier  Notifier
	emitter   telemetry.EventEmitter
	metrics   *telemetryotel.SessionMetrics
	audit     audit.AuditLogger
	interval  time.Duration
	nowF      func() time.Time

	mu       sync.Mutex
	state    State
	active   bool
	closed   bool
	gen      uint64 // bumped on every detach; stale goroutines compare against it
	conn     Conn
	capture  Capture
	cancel   context.CancelFunc
	messages []Message

	wg sync.WaitGroup
}

// NewController returns an idle, active Controller.
func NewController(opts Options) *Controller {
	c := &Controller{
		auth:      opts.Auth,
		policy:    opts.Policy,
		revoker:   opts.Revoker,
		fetcher:   opts.Fetcher,
		connector: opts.Connector,
		mic:       opts.Microphone,
		player:    opts.Player,
		notifier:  opts.Notifier,
		emitter:   opts.Emitter,
		metrics:   opts.Metrics,
		audit:     opts.Audit,
		interval:  opts.CheckInterval,
		nowF:      time.Now,
		state:     StateIdle,
		active:    true,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.interval <= 0 {
		c.interval = DefaultCheckInterval
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active reports whether Start is enabled.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Messages returns a copy of the conversation log.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// SetActive enables or disables Start. Deactivating stops a running session.
func (c *Controller) SetActive(ctx context.Context, active bool) {
	c.mu.Lock()
	c.active = active
	st := c.state
	c.mu.Unlock()
	if !active && (st == StateConnecting || st == StateListening) {
		c.Stop(ctx)
	}
	c.publishStatus(ctx)
}

// Start connects the realtime agent for the logged-in identity. It is ignored while inactive.
// Returns ErrNotAuthenticated when nobody is logged in, an ErrPolicyViolation-wrapped error when the
// identity is blocked, and an ErrConnectionFailure-wrapped error when the credential or connection fails.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case !c.active:
		c.mu.Unlock()
		return nil
	case c.state == StateBlocked:
		c.mu.Unlock()
		return ErrPolicyViolation
	case c.state != StateIdle:
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateConnecting
	gen := c.gen
	c.mu.Unlock()
	c.notifier.StateChanged(StateConnecting)

	profile, ok, err := c.auth.Current(ctx)
	if err != nil {
		return c.failStart(ctx, gen, "", err)
	}
	if !ok {
		if c.settle(gen, StateIdle) {
			c.notifier.StateChanged(StateIdle)
		}
		return ErrNotAuthenticated
	}
	email := profile.Email

	verdict, err := c.policy.Evaluate(ctx, email)
	if err != nil {
		return c.failStart(ctx, gen, email, err)
	}
	if verdict.Blocked {
		c.block(ctx, gen, email, verdict)
		return fmt.Errorf("%w: %s", ErrPolicyViolation, verdict.Reason)
	}

	sess, err := c.policy.Get(ctx, email)
	if err != nil {
		return c.failStart(ctx, gen, email, err)
	}
	if sess == nil {
		if _, err := c.policy.StartSession(ctx, email); err != nil {
			return c.failStart(ctx, gen, email, err)
		}
		c.emit(ctx, telemetrydomain.EventSessionStarted, email, nil)
	}

	key, err := c.fetcher.FetchKey(ctx)
	if err != nil {
		return c.failStart(ctx, gen, email, err)
	}
	conn, err := c.connector.Connect(ctx, key)
	if err != nil {
		return c.failStart(ctx, gen, email, err)
	}
	if !c.adopt(gen, func() { c.conn = conn }) {
		c.release(resources{conn: conn})
		return ErrAborted
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	capture, err := c.mic.Open(connCtx)
	if err != nil {
		cancel()
		return c.failStart(ctx, gen, email, fmt.Errorf("open microphone: %w", err))
	}
	if !c.adopt(gen, func() {
		c.capture = capture
		c.cancel = cancel
		c.state = StateListening
		c.wg.Add(3)
	}) {
		c.release(resources{capture: capture, cancel: cancel})
		return ErrAborted
	}
	c.notifier.StateChanged(StateListening)

	go c.pumpAudio(capture, conn)
	go c.pumpEvents(connCtx, gen, email, conn)
	go c.monitor(connCtx, gen, email)

	c.addMessage(MessageAgent, connectedMessage)
	if v, blocked := c.check(connCtx, gen, email); blocked {
		return fmt.Errorf("%w: %s", ErrPolicyViolation, v.Reason)
	}
	return nil
}

// Stop tears down the running session and returns to Idle. Safe to call in any state.
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.state != StateConnecting && c.state != StateListening {
		c.mu.Unlock()
		return
	}
	r := c.detachLocked(StateStopping)
	gen := c.gen
	c.mu.Unlock()
	c.notifier.StateChanged(StateStopping)

	c.release(r)

	if c.settle(gen, StateIdle) {
		c.notifier.StateChanged(StateIdle)
	}
	c.emit(ctx, telemetrydomain.EventSessionStopped, "", nil)
	c.publishStatus(ctx)
}

// Dismiss acknowledges the block notice and returns to Idle.
func (c *Controller) Dismiss() {
	c.mu.Lock()
	if c.state != StateBlocked {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.mu.Unlock()
	c.notifier.StateChanged(StateIdle)
}

// Close stops any session, sweeps the microphone and waits for background goroutines.
// Further Starts fail with ErrClosed.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop(ctx)
	if n := c.mic.StopAll(); n > 0 {
		log.Printf("voice: stopped %d lingering capture(s) on close", n)
	}
	c.wg.Wait()
	return nil
}

// Status reports usage for the logged-in identity. Status.Email is empty when nobody is logged in.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	st := Status{Active: c.Active()}
	profile, ok, err := c.auth.Current(ctx)
	if err != nil || !ok {
		return st, err
	}
	p := c.policy.Policy()
	st.Email = profile.Email
	st.InteractionLimit = p.InteractionLimit
	st.TokenLimit = p.TokenLimit
	s, err := c.policy.Get(ctx, profile.Email)
	if err != nil {
		return st, err
	}
	if s != nil {
		st.SessionStarted = true
		st.InteractionCount = s.InteractionCount
		st.Tokens = s.EstimatedTokens
		st.Remaining = s.Remaining(c.nowF(), p.Window)
	}
	return st, nil
}

type resources struct {
	conn    Conn
	capture Capture
	cancel  context.CancelFunc
}

// detachLocked hands the live resources to the caller and invalidates the current generation.
func (c *Controller) detachLocked(next State) resources {
	r := resources{conn: c.conn, capture: c.capture, cancel: c.cancel}
	c.conn, c.capture, c.cancel = nil, nil, nil
	c.gen++
	c.state = next
	return r
}

// adopt runs fn under the lock if gen is still current.
func (c *Controller) adopt(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	fn()
	return true
}

// settle moves to next if gen is still current and the state is transitional.
func (c *Controller) settle(gen uint64, next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || (c.state != StateConnecting && c.state != StateStopping) {
		return false
	}
	c.state = next
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// release stops the connection and the capture. Every step runs; failures are logged.
func (c *Controller) release(r resources) {
	if r.conn != nil {
		if err := r.conn.Interrupt(); err != nil && !errors.Is(err, realtime.ErrClosed) {
			log.Printf("voice: interrupt: %v", err)
		}
		if err := r.conn.Mute(true); err != nil && !errors.Is(err, realtime.ErrClosed) {
			log.Printf("voice: mute: %v", err)
		}
		if err := r.conn.Close(); err != nil {
			log.Printf("voice: close connection: %v", err)
		}
	}
	if r.capture != nil {
		if err := r.capture.Stop(); err != nil {
			log.Printf("voice: stop capture: %v", err)
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	if n := c.mic.StopAll(); n > 0 {
		log.Printf("voice: stopped %d lingering capture(s)", n)
	}
	if c.player != nil {
		c.player.Flush()
	}
}

func (c *Controller) failStart(ctx context.Context, gen uint64, email string, cause error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrAborted
	}
	r := c.detachLocked(StateIdle)
	c.mu.Unlock()

	c.release(r)
	c.notifier.StateChanged(StateIdle)
	log.Printf("voice: start failed: %v", cause)
	c.addMessage(MessageAgent, "Failed to start: "+cause.Error())
	c.metrics.ConnectionFailure(ctx)
	c.emit(ctx, telemetrydomain.EventConnectionFailure, email, map[string]any{"error": cause.Error()})
	return fmt.Errorf("%w: %w", ErrConnectionFailure, cause)
}

// block tears the session down, revokes the identity, raises the notice and logs out.
func (c *Controller) block(ctx context.Context, gen uint64, email string, v policydomain.Verdict) {
	c.mu.Lock()
	if c.gen != gen || c.state == StateBlocked {
		c.mu.Unlock()
		return
	}
	r := c.detachLocked(StateBlocked)
	c.mu.Unlock()

	c.release(r)
	c.notifier.StateChanged(StateBlocked)

	// ctx may belong to the connection just released.
	ctx = context.WithoutCancel(ctx)
	if err := c.revoker.Revoke(ctx, email); err != nil {
		log.Printf("voice: revoke %s: %v", email, err)
	}
	log.Printf("voice: session for %s blocked: %s", email, v.Reason)
	if c.audit != nil {
		c.audit.LogEvent(ctx, email, audit.ActionPolicyViolation, audit.ResourceSession, string(v.Reason))
	}
	c.metrics.Violation(ctx, string(v.Reason))
	c.emit(ctx, telemetrydomain.EventPolicyViolation, email, map[string]any{"reason": string(v.Reason)})
	c.notifier.Blocked(v)
	if err := c.auth.Logout(ctx); err != nil {
		log.Printf("voice: forced logout: %v", err)
	}
	c.publishStatus(ctx)
}

// check evaluates the policy and blocks on violation.
func (c *Controller) check(ctx context.Context, gen uint64, email string) (policydomain.Verdict, bool) {
	v, err := c.policy.Evaluate(ctx, email)
	if err != nil {
		log.Printf("voice: evaluate %s: %v", email, err)
		return v, false
	}
	if v.Blocked {
		c.block(ctx, gen, email, v)
		return v, true
	}
	c.publishStatus(ctx)
	return v, false
}

func (c *Controller) pumpAudio(capture Capture, conn Conn) {
	defer c.wg.Done()
	for frame := range capture.Frames() {
		if err := conn.SendAudio(frame); err != nil {
			if !errors.Is(err, realtime.ErrClosed) {
				log.Printf("voice: send audio: %v", err)
			}
			return
		}
	}
}

func (c *Controller) pumpEvents(ctx context.Context, gen uint64, email string, conn Conn) {
	defer c.wg.Done()
	for ev := range conn.Events() {
		if !c.current(gen) {
			return
		}
		c.handleEvent(ctx, gen, email, ev)
	}
	c.connectionLost(ctx, gen)
}

func (c *Controller) handleEvent(ctx context.Context, gen uint64, email string, ev realtime.Event) {
	switch ev.Type {
	case realtime.EventUtteranceTranscribed:
		if ev.Transcript != "" {
			c.addMessage(MessageUser, ev.Transcript)
		}
		if s, err := c.policy.RecordInteraction(ctx, email); err != nil {
			log.Printf("voice: record interaction: %v", err)
		} else {
			c.metrics.Interaction(ctx)
			c.emit(ctx, telemetrydomain.EventInteraction, email, map[string]any{"count": s.InteractionCount})
		}
		c.recordTokens(ctx, email, "user", ev.Transcript)
	case realtime.EventMessageCreated:
		if ev.Role != "assistant" {
			return
		}
		if ev.Content != "" {
			c.addMessage(MessageAgent, ev.Content)
		}
		c.recordTokens(ctx, email, "assistant", ev.Content)
	case realtime.EventAudioDelta:
		if c.player != nil {
			c.player.Play(ev.Audio)
		}
		return
	case realtime.EventError:
		log.Printf("voice: realtime: %v", ev.Err)
		return
	default:
		return
	}
	c.check(ctx, gen, email)
}

func (c *Controller) recordTokens(ctx context.Context, email, role, text string) {
	n := engine.EstimateTokens(text)
	if n == 0 {
		return
	}
	s, err := c.policy.RecordTokens(ctx, email, n)
	if err != nil {
		log.Printf("voice: record tokens: %v", err)
		return
	}
	c.metrics.Tokens(ctx, role, n)
	c.emit(ctx, telemetrydomain.EventTokens, email, map[string]any{"role": role, "delta": n, "total": s.EstimatedTokens})
}

// connectionLost handles the remote side ending the session while listening.
func (c *Controller) connectionLost(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	r := c.detachLocked(StateIdle)
	c.mu.Unlock()

	log.Printf("voice: realtime connection closed by remote")
	c.release(r)
	c.addMessage(MessageAgent, closedMessage)
	c.notifier.StateChanged(StateIdle)
	c.publishStatus(ctx)
}

func (c *Controller) monitor(ctx context.Context, gen uint64, email string) {
	defer c.wg.Done()
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !c.current(gen) {
				return
			}
			c.check(ctx, gen, email)
		}
	}
}

func (c *Controller) addMessage(t MessageType, content string) {
	m := Message{ID: uuid.NewString(), Type: t, Content: content, Timestamp: c.nowF()}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	c.notifier.MessageAdded(m)
}

func (c *Controller) publishStatus(ctx context.Context) {
	st, err := c.Status(ctx)
	if err != nil {
		log.Printf("voice: status: %v", err)
		return
	}
	c.notifier.StatusChanged(st)
}

func (c *Controller) emit(ctx context.Context, eventType, email string, metadata map[string]any) {
	telemetry.EmitAsync(c.emitter, ctx, telemetry.NewEvent(eventType, telemetrySource, email, metadata))
}

// Package engine tracks the trial Session of each identity and decides when it must be blocked.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	identitydomain "voice-trial-agent/internal/identity/domain"
	"voice-trial-agent/internal/policy/domain"
	sessiondomain "voice-trial-agent/internal/session/domain"
)

var (
	ErrNoSession     = errors.New("no active session")
	ErrNegativeDelta = errors.New("token delta must not be negative")
)

// Store keys, each suffixed with the identity email.
const (
	usagePrefix        = "usage_"
	tokensPrefix       = "tokens_"
	sessionStartPrefix = "sessionStart_"
	sessionEndPrefix   = "sessionEnd_"
)

// SessionKeys returns every store key that holds session state for email.
func SessionKeys(email string) []string {
	email = identitydomain.NormalizeEmail(email)
	return []string{
		usagePrefix + email,
		tokensPrefix + email,
		sessionStartPrefix + email,
		sessionEndPrefix + email,
	}
}

// KV is the slice of the namespaced key-value store the engine needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Revoker is the credential store's revocation surface.
type Revoker interface {
	Revoke(ctx context.Context, email string) error
	IsRevoked(ctx context.Context, email string) (bool, error)
}

// Engine is the session policy engine. Session state is persisted in the store so a
// restarted client resumes the same window and counters.
type Engine struct {
	kv        KV
	revoker   Revoker
	policy    domain.Policy
	evaluator Evaluator
	nowF      func() time.Time

	mu sync.Mutex // serializes read-modify-write of session counters
}

// NewEngine returns an Engine. A nil evaluator selects NativeEvaluator.
func NewEngine(kv KV, revoker Revoker, policy domain.Policy, evaluator Evaluator) *Engine {
	if evaluator == nil {
		evaluator = NativeEvaluator{}
	}
	return &Engine{kv: kv, revoker: revoker, policy: policy, evaluator: evaluator, nowF: time.Now}
}

// Policy returns the limits the engine enforces.
func (e *Engine) Policy() domain.Policy { return e.policy }

// EstimateTokens approximates the token count of text as ceil(code points / 4).
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// StartSession creates a fresh Session for email, replacing any previous one.
func (e *Engine) StartSession(ctx context.Context, email string) (*sessiondomain.Session, error) {
	email = identitydomain.NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("policy: email is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	s := &sessiondomain.Session{IdentityEmail: email, StartedAt: now}
	writes := []struct{ key, value string }{
		{sessionStartPrefix + email, strconv.FormatInt(now.UnixMilli(), 10)},
		{sessionEndPrefix + email, strconv.FormatInt(now.Add(e.policy.Window).UnixMilli(), 10)},
		{usagePrefix + email, "0"},
		{tokensPrefix + email, "0"},
	}
	for _, w := range writes {
		if err := e.kv.Set(ctx, w.key, w.value); err != nil {
			return nil, fmt.Errorf("policy: start session: %w", err)
		}
	}
	s.State = e.state(s, now)
	return s, nil
}

// RecordInteraction counts one completed user utterance. When the count reaches the
// interaction limit the owning identity is revoked before returning.
func (e *Engine) RecordInteraction(ctx context.Context, email string) (*sessiondomain.Session, error) {
	email = identitydomain.NormalizeEmail(email)
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	s.InteractionCount++
	if err := e.kv.Set(ctx, usagePrefix+email, strconv.Itoa(s.InteractionCount)); err != nil {
		return nil, fmt.Errorf("policy: record interaction: %w", err)
	}
	if s.InteractionCount >= e.policy.InteractionLimit {
		if err := e.revoker.Revoke(ctx, email); err != nil {
			return nil, fmt.Errorf("policy: revoke at interaction limit: %w", err)
		}
		log.Printf("policy: %s reached interaction limit %d, revoked", email, e.policy.InteractionLimit)
	}
	return s, nil
}

// RecordTokens adds delta estimated tokens to the session.
func (e *Engine) RecordTokens(ctx context.Context, email string, delta int) (*sessiondomain.Session, error) {
	if delta < 0 {
		return nil, ErrNegativeDelta
	}
	email = identitydomain.NormalizeEmail(email)
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := e.load(ctx, email)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	if delta == 0 {
		return s, nil
	}
	s.EstimatedTokens += delta
	if err := e.kv.Set(ctx, tokensPrefix+email, strconv.Itoa(s.EstimatedTokens)); err != nil {
		return nil, fmt.Errorf("policy: record tokens: %w", err)
	}
	return s, nil
}

// Get returns the current Session for email, or nil when none is active.
func (e *Engine) Get(ctx context.Context, email string) (*sessiondomain.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.load(ctx, identitydomain.NormalizeEmail(email))
}

// Evaluate decides whether email's session is blocked. An identity with no session is
// blocked only when revoked.
func (e *Engine) Evaluate(ctx context.Context, email string) (domain.Verdict, error) {
	email = identitydomain.NormalizeEmail(email)
	revoked, err := e.revoker.IsRevoked(ctx, email)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("policy: revocation lookup: %w", err)
	}
	s, err := e.Get(ctx, email)
	if err != nil {
		return domain.Verdict{}, err
	}
	return e.evaluator.Evaluate(ctx, Input{Session: s, Policy: e.policy, Revoked: revoked, Now: e.now()})
}

// IsBlocked is the boolean projection of Evaluate.
func (e *Engine) IsBlocked(ctx context.Context, email string) (bool, error) {
	v, err := e.Evaluate(ctx, email)
	if err != nil {
		return false, err
	}
	return v.Blocked, nil
}

// EndSession destroys the Session for email. Ending a missing session is not an error.
func (e *Engine) EndSession(ctx context.Context, email string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range SessionKeys(email) {
		if err := e.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("policy: end session: %w", err)
		}
	}
	return nil
}

// RemainingTime returns the time left in email's window, zero when there is no session.
func (e *Engine) RemainingTime(ctx context.Context, email string) (time.Duration, error) {
	s, err := e.Get(ctx, email)
	if err != nil || s == nil {
		return 0, err
	}
	return s.Remaining(e.now(), e.policy.Window), nil
}

// load reads the persisted session. The caller holds e.mu.
func (e *Engine) load(ctx context.Context, email string) (*sessiondomain.Session, error) {
	start, ok, err := e.getInt(ctx, sessionStartPrefix+email)
	if err != nil || !ok {
		return nil, err
	}
	usage, _, err := e.getInt(ctx, usagePrefix+email)
	if err != nil {
		return nil, err
	}
	tokens, _, err := e.getInt(ctx, tokensPrefix+email)
	if err != nil {
		return nil, err
	}
	s := &sessiondomain.Session{
		IdentityEmail:    email,
		StartedAt:        time.UnixMilli(start),
		InteractionCount: int(usage),
		EstimatedTokens:  int(tokens),
	}
	s.State = e.state(s, e.now())
	return s, nil
}

// now is the clock truncated to the millisecond precision the session start is stored with.
func (e *Engine) now() time.Time {
	return time.UnixMilli(e.nowF().UnixMilli())
}

func (e *Engine) getInt(ctx context.Context, key string) (int64, bool, error) {
	v, ok, err := e.kv.Get(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("policy: %s is not an integer: %w", key, err)
	}
	return i, true, nil
}

func (e *Engine) state(s *sessiondomain.Session, now time.Time) sessiondomain.State {
	if s.Expired(now, e.policy.Window) {
		return sessiondomain.StateExpired
	}
	return sessiondomain.StateActive
}

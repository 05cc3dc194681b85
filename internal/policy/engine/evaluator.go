package engine

import (
	"context"
	"time"

	"voice-trial-agent/internal/policy/domain"
	sessiondomain "voice-trial-agent/internal/session/domain"
)

// Input is everything an Evaluator needs to decide whether a session is blocked.
// Session is nil when the identity has no active session.
type Input struct {
	Session *sessiondomain.Session
	Policy  domain.Policy
	Revoked bool
	Now     time.Time
}

// Evaluator decides the quota verdict for an Input.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (domain.Verdict, error)
}

// NativeEvaluator applies the quota predicates in Go. Reasons are checked in the order
// interaction limit, revoked, expiry, token limit; the first that holds wins. A live
// session at its interaction limit reports interaction_limit even though reaching the
// limit also revoked the identity.
type NativeEvaluator struct{}

// Evaluate never fails.
func (NativeEvaluator) Evaluate(_ context.Context, in Input) (domain.Verdict, error) {
	return nativeVerdict(in), nil
}

func nativeVerdict(in Input) domain.Verdict {
	s := in.Session
	if s != nil && s.InteractionCount >= in.Policy.InteractionLimit {
		return domain.Block(domain.ReasonInteractionLimit)
	}
	if in.Revoked {
		return domain.Block(domain.ReasonRevoked)
	}
	if s == nil {
		return domain.Allow
	}
	if s.Expired(in.Now, in.Policy.Window) {
		return domain.Block(domain.ReasonSessionExpired)
	}
	if s.EstimatedTokens >= in.Policy.TokenLimit {
		return domain.Block(domain.ReasonTokenLimit)
	}
	return domain.Allow
}

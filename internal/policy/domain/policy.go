package domain

import "time"

// Policy holds the trial quota limits.
type Policy struct {
	InteractionLimit int
	Window           time.Duration
	TokenLimit       int
}

// DefaultPolicy returns 3 interactions, a 60 second window and 500 estimated tokens.
func DefaultPolicy() Policy {
	return Policy{InteractionLimit: 3, Window: 60 * time.Second, TokenLimit: 500}
}

// Reason names the predicate that blocked a session.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonRevoked          Reason = "revoked"
	ReasonInteractionLimit Reason = "interaction_limit"
	ReasonSessionExpired   Reason = "session_expired"
	ReasonTokenLimit       Reason = "token_limit"
)

// Valid reports whether r is one of the known reasons (including ReasonNone).
func (r Reason) Valid() bool {
	switch r {
	case ReasonNone, ReasonRevoked, ReasonInteractionLimit, ReasonSessionExpired, ReasonTokenLimit:
		return true
	}
	return false
}

// Message is the text shown in the block notice.
func (r Reason) Message() string {
	switch r {
	case ReasonRevoked:
		return "Your trial access has been revoked."
	case ReasonInteractionLimit:
		return "You've reached the limit of interactions for this trial."
	case ReasonSessionExpired:
		return "Your trial session has expired."
	case ReasonTokenLimit:
		return "Your token limit has been reached."
	default:
		return ""
	}
}

// Verdict is the outcome of one policy evaluation.
type Verdict struct {
	Blocked bool
	Reason  Reason
}

// Allow is the verdict for a session inside every limit.
var Allow = Verdict{}

// Block returns a blocking verdict for reason.
func Block(reason Reason) Verdict {
	return Verdict{Blocked: true, Reason: reason}
}

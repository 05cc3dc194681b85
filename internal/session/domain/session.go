package domain

import "time"

// State is the derived lifecycle state of a Session.
type State string

const (
	StateActive  State = "active"
	StateExpired State = "expired"
)

// Session is the bounded trial period of one authenticated identity: it starts on the first
// Talk after login and is destroyed on logout, quota breach or expiry.
type Session struct {
	IdentityEmail    string
	StartedAt        time.Time
	InteractionCount int
	EstimatedTokens  int
	State            State
}

// Expired reports whether more than window has elapsed since StartedAt.
// Exactly window is still inside the session.
func (s *Session) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(s.StartedAt) > window
}

// Remaining returns the time left in the window, never negative.
func (s *Session) Remaining(now time.Time, window time.Duration) time.Duration {
	left := window - now.Sub(s.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

package voice

import (
	"time"

	policydomain "voice-trial-agent/internal/policy/domain"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateListening  State = "listening"
	StateStopping   State = "stopping"
	StateBlocked    State = "blocked"
)

// MessageType distinguishes the two sides of the conversation log.
type MessageType string

const (
	MessageUser  MessageType = "user"
	MessageAgent MessageType = "agent"
)

// Message is one line of the conversation log.
type Message struct {
	ID        string
	Type      MessageType
	Content   string
	Timestamp time.Time
}

// Status is the usage summary shown while authenticated.
type Status struct {
	Email            string
	Active           bool
	SessionStarted   bool
	InteractionCount int
	InteractionLimit int
	Tokens           int
	TokenLimit       int
	Remaining        time.Duration
}

// Notifier receives controller updates. Calls are made from controller goroutines and must not block.
type Notifier interface {
	StateChanged(s State)
	MessageAdded(m Message)
	StatusChanged(s Status)
	Blocked(v policydomain.Verdict)
}

type nopNotifier struct{}

func (nopNotifier) StateChanged(State)           {}
func (nopNotifier) MessageAdded(Message)         {}
func (nopNotifier) StatusChanged(Status)         {}
func (nopNotifier) Blocked(policydomain.Verdict) {}

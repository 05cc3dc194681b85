package voice

import (
	"context"

	identitydomain "voice-trial-agent/internal/identity/domain"
	policydomain "voice-trial-agent/internal/policy/domain"
	"voice-trial-agent/internal/realtime"
	sessiondomain "voice-trial-agent/internal/session/domain"
)

// Auth is the slice of the auth service the controller needs.
type Auth interface {
	Current(ctx context.Context) (identitydomain.Profile, bool, error)
	Logout(ctx context.Context) error
}

// Policy is the policy engine's session surface. The controller mutates session state only through it.
type Policy interface {
	Policy() policydomain.Policy
	Get(ctx context.Context, email string) (*sessiondomain.Session, error)
	StartSession(ctx context.Context, email string) (*sessiondomain.Session, error)
	RecordInteraction(ctx context.Context, email string) (*sessiondomain.Session, error)
	RecordTokens(ctx context.Context, email string, delta int) (*sessiondomain.Session, error)
	Evaluate(ctx context.Context, email string) (policydomain.Verdict, error)
}

// Revoker sets the revocation flag for an identity.
type Revoker interface {
	Revoke(ctx context.Context, email string) error
}

// KeyFetcher obtains a short-lived realtime credential.
type KeyFetcher interface {
	FetchKey(ctx context.Context) (string, error)
}

// Conn is an open realtime connection.
type Conn interface {
	Events() <-chan realtime.Event
	Done() <-chan struct{}
	SendAudio(pcm []byte) error
	Interrupt() error
	Mute(muted bool) error
	Close() error
}

// Connector opens realtime connections.
type Connector interface {
	Connect(ctx context.Context, credential string) (Conn, error)
}

// Capture is an open microphone stream.
type Capture interface {
	Frames() <-chan []byte
	Stop() error
}

// Microphone is the exclusive capture device.
type Microphone interface {
	Open(ctx context.Context) (Capture, error)
	// StopAll stops any capture still held, even if the controller lost its handle.
	StopAll() int
}

// Player plays assistant audio. Optional.
type Player interface {
	Play(pcm []byte)
	Flush()
}

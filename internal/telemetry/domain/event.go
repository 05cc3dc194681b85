package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the client and the credential proxy.
const (
	EventLogin             = "login"
	EventLogout            = "logout"
	EventSessionStarted    = "session_started"
	EventSessionStopped    = "session_stopped"
	EventInteraction       = "interaction"
	EventTokens            = "tokens"
	EventPolicyViolation   = "policy_violation"
	EventConnectionFailure = "connection_failure"
	EventCredentialIssued  = "credential_issued"
	EventHTTPRequest       = "http_request"
)

// Event is a single telemetry record. It is serialized as JSON onto Kafka and into Loki lines.
type Event struct {
	ID            string          `json:"id"`
	EventType     string          `json:"eventType"`
	Source        string          `json:"source"`
	IdentityEmail string          `json:"identityEmail,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Package credential mints and fetches the short-lived client secrets used to open realtime sessions.
// The Issuer runs next to the long-lived API key (cmd/server); the Fetcher runs in the client.
package credential

import "errors"

var (
	// ErrUnavailable is returned when a credential could not be obtained.
	ErrUnavailable = errors.New("credential unavailable")
	// ErrNotConfigured is returned by the Issuer when no upstream API key is set.
	ErrNotConfigured = errors.New("credential issuer not configured")
)

// Response is the body of a successful proxy response.
type Response struct {
	TempKey string `json:"tempKey"`
}

// ErrorResponse is the body of a failed proxy response.
type ErrorResponse struct {
	Error string `json:"error"`
}

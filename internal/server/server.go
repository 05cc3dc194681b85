// Package server assembles the credential proxy's HTTP handler.
package server

import (
	"net/http"

	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/credential"
	healthhandler "voice-trial-agent/internal/health/handler"
	"voice-trial-agent/internal/server/middleware"
	"voice-trial-agent/internal/telemetry"
)

// Routes served by the proxy.
const (
	PathCredential = "/api"
	PathHealth     = "/healthz"
)

// Deps holds the proxy's dependencies. Only Issuer is required.
type Deps struct {
	// Issuer mints the short-lived realtime credential returned by GET /api.
	Issuer credential.KeyIssuer
	// Emitter receives credential_issued and http_request events. If nil, no telemetry is emitted.
	Emitter telemetry.EventEmitter
	// Audit records each credential request. If nil, requests are not audited.
	Audit audit.AuditLogger
	// HealthPinger is checked by /healthz (e.g. the audit store). If nil, the check is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is checked by /healthz. If nil, the check is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
	// ClientToken, when set, must be presented as a Bearer token on /api.
	ClientToken string
}

// NewHandler returns the proxy's root handler.
//
// Middleware order (outermost first): client IP, telemetry, audit, bearer token.
// Rejected requests are therefore still audited and counted.
func NewHandler(deps Deps) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(PathCredential, credential.NewHandler(deps.Issuer, deps.Emitter))
	mux.Handle(PathHealth, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker))

	public := map[string]bool{PathHealth: true}
	return middleware.Chain(mux,
		middleware.ClientIPHandler,
		middleware.Telemetry(deps.Emitter, public),
		middleware.Audit(deps.Audit, map[string]bool{PathCredential: true}),
		middleware.RequireToken(deps.ClientToken, public),
	)
}

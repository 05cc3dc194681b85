package credential

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"voice-trial-agent/internal/telemetry"
	telemetrydomain "voice-trial-agent/internal/telemetry/domain"
)

const telemetrySource = "credential-proxy"

// KeyIssuer mints a client secret. *Issuer implements it.
type KeyIssuer interface {
	Issue(ctx context.Context) (string, error)
}

// Handler serves GET requests with a freshly minted credential.
type Handler struct {
	issuer  KeyIssuer
	emitter telemetry.EventEmitter
}

// NewHandler returns a Handler backed by issuer. emitter may be nil.
func NewHandler(issuer KeyIssuer, emitter telemetry.EventEmitter) *Handler {
	return &Handler{issuer: issuer, emitter: emitter}
}

// ServeHTTP responds {"tempKey": value} on success and 500 {"error": message} on failure.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	key, err := h.issuer.Issue(r.Context())
	if err != nil {
		log.Printf("credential: issue failed: %v", err)
		telemetry.EmitAsync(h.emitter, r.Context(), telemetry.NewEvent(telemetrydomain.EventCredentialIssued, telemetrySource, "",
			map[string]any{"ok": false, "error": err.Error()}))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	telemetry.EmitAsync(h.emitter, r.Context(), telemetry.NewEvent(telemetrydomain.EventCredentialIssued, telemetrySource, "",
		map[string]any{"ok": true}))
	writeJSON(w, http.StatusOK, Response{TempKey: key})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("credential: write response: %v", err)
	}
}

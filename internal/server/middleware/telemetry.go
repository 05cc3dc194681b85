package middleware

import (
	"net/http"
	"time"

	"voice-trial-agent/internal/telemetry"
	"voice-trial-agent/internal/telemetry/domain"
)

const telemetrySource = "http_middleware"

// Telemetry emits an http_request event after each request. Best-effort: emission is
// asynchronous and failures are only logged. A nil emitter disables the middleware.
// skipPaths is the set of paths to not emit (e.g. /healthz).
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if emitter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if skipPaths[r.URL.Path] {
				return
			}
			event := telemetry.NewEvent(domain.EventHTTPRequest, telemetrySource, "", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status_code": rec.code(),
				"duration_ms": time.Since(start).Milliseconds(),
				"client_ip":   ClientIP(r.Context()),
			})
			telemetry.EmitAsync(emitter, r.Context(), event)
		})
	}
}

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

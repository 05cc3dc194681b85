package middleware

import (
	"fmt"
	"net/http"

	"voice-trial-agent/internal/audit"
)

// Audit records one audit entry per request to a path in auditedPaths.
// LogEvent is best-effort, so the response is never affected. A nil logger disables the middleware.
func Audit(logger audit.AuditLogger, auditedPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if !auditedPaths[r.URL.Path] {
				return
			}
			meta := fmt.Sprintf("method=%s path=%s status=%d", r.Method, r.URL.Path, rec.code())
			logger.LogEvent(r.Context(), "", audit.ActionIssueCredential, audit.ResourceCredential, meta)
		})
	}
}

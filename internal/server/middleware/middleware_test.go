package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-trial-agent/internal/audit"
	"voice-trial-agent/internal/telemetry/domain"
)

type auditCall struct {
	email, action, resource, metadata string
}

// mockAuditLogger implements audit.AuditLogger for middleware tests.
type mockAuditLogger struct {
	calls []auditCall
}

func (m *mockAuditLogger) LogEvent(ctx context.Context, email, action, resource, metadata string) {
	m.calls = append(m.calls, auditCall{email, action, resource, metadata})
}

// mockEmitter implements telemetry.EventEmitter for middleware tests.
type mockEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (m *mockEmitter) Emit(ctx context.Context, event *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *mockEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockEmitter) first() *domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[0]
}

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestRequestIP(t *testing.T) {
	testCases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:1234", "203.0.113.5"},
		{"forwarded single", map[string]string{"X-Forwarded-For": " 203.0.113.7 "}, "", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.2"}, "10.0.0.1:1234", "198.51.100.2"},
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"remote without port", nil, "192.0.2.9", "192.0.2.9"},
		{"nothing", nil, "", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := RequestIP(r); got != tc.want {
				t.Errorf("RequestIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClientIP_Context(t *testing.T) {
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Errorf("ClientIP without value = %q, want unknown", got)
	}
	if got := ClientIP(WithClientIP(context.Background(), "192.0.2.1")); got != "192.0.2.1" {
		t.Errorf("ClientIP = %q, want 192.0.2.1", got)
	}

	var seen string
	h := ClientIPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClientIP(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.RemoteAddr = "192.0.2.44:9000"
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != "192.0.2.44" {
		t.Errorf("handler saw %q, want 192.0.2.44", seen)
	}
}

func TestRequireToken(t *testing.T) {
	public := map[string]bool{"/healthz": true}
	testCases := []struct {
		name     string
		token    string
		path     string
		header   string
		wantCode int
	}{
		{"disabled", "", "/api", "", http.StatusOK},
		{"missing token", "s3cret", "/api", "", http.StatusUnauthorized},
		{"wrong token", "s3cret", "/api", "Bearer nope", http.StatusUnauthorized},
		{"malformed header", "s3cret", "/api", "s3cret", http.StatusUnauthorized},
		{"valid token", "s3cret", "/api", "Bearer s3cret", http.StatusOK},
		{"case-insensitive scheme", "s3cret", "/api", "bearer  s3cret ", http.StatusOK},
		{"public path", "s3cret", "/healthz", "", http.StatusOK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := RequireToken(tc.token, public)(okHandler(http.StatusOK))
			r := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantCode == http.StatusUnauthorized {
				var body map[string]string
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body["error"] == "" {
					t.Error("error body should be set")
				}
			}
		})
	}
}

func TestAudit(t *testing.T) {
	logger := &mockAuditLogger{}
	h := Audit(logger, map[string]bool{"/api": true})(okHandler(http.StatusInternalServerError))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(logger.calls) != 1 {
		t.Fatalf("audit calls = %d, want 1", len(logger.calls))
	}
	c := logger.calls[0]
	if c.action != audit.ActionIssueCredential || c.resource != audit.ResourceCredential {
		t.Errorf("call = %+v", c)
	}
	if c.metadata != "method=GET path=/api status=500" {
		t.Errorf("metadata = %q", c.metadata)
	}
}

func TestAudit_NilLogger(t *testing.T) {
	h := Audit(nil, map[string]bool{"/api": true})(okHandler(http.StatusTeapot))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("code = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestTelemetry(t *testing.T) {
	emitter := &mockEmitter{}
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), ClientIPHandler, Telemetry(emitter, map[string]bool{"/healthz": true}))

	r := httptest.NewRequest(http.MethodGet, "/api", nil)
	r.RemoteAddr = "192.0.2.8:4000"
	h.ServeHTTP(httptest.NewRecorder(), r)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	deadline := time.Now().Add(2 * time.Second)
	for emitter.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if emitter.count() != 1 {
		t.Fatalf("events = %d, want 1", emitter.count())
	}
	ev := emitter.first()
	if ev.EventType != domain.EventHTTPRequest || ev.Source != telemetrySource {
		t.Errorf("event = %+v", ev)
	}
	var md map[string]any
	if err := json.Unmarshal(ev.Metadata, &md); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if md["path"] != "/api" || md["client_ip"] != "192.0.2.8" || md["status_code"] != float64(200) {
		t.Errorf("metadata = %v", md)
	}
}

func TestChain_Order(t *testing.T) {
	var order []string
	mw := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	Chain(okHandler(http.StatusOK), mw("a"), mw("b"), mw("c")).
		ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("order = %q, want a,b,c", got)
	}
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"voice-trial-agent/internal/audit"
	auditrepo "voice-trial-agent/internal/audit/repository"
	"voice-trial-agent/internal/credential"
	"voice-trial-agent/internal/server/middleware"
)

type stubIssuer struct {
	key string
	err error
}

func (s *stubIssuer) Issue(context.Context) (string, error) { return s.key, s.err }

type stubPinger struct{ err error }

func (s *stubPinger) Ping(context.Context) error { return s.err }

func TestNewHandler_Credential(t *testing.T) {
	repo := auditrepo.NewMemoryRepository()
	h := NewHandler(Deps{
		Issuer: &stubIssuer{key: "ek_abc"},
		Audit:  audit.NewLogger(repo, middleware.ClientIP),
	})

	r := httptest.NewRequest(http.MethodGet, PathCredential, nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var resp credential.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(credential.Response{TempKey: "ek_abc"}, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}

	entries, err := repo.ListByIdentity(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListByIdentity: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if entries[0].IP != "203.0.113.9" || entries[0].Action != audit.ActionIssueCredential {
		t.Errorf("audit entry = %+v", entries[0])
	}
}

func TestNewHandler_IssuerFailure(t *testing.T) {
	h := NewHandler(Deps{Issuer: &stubIssuer{err: errors.New("upstream down")}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathCredential, nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d, want 500", rec.Code)
	}
	var resp credential.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("error message should be set")
	}
}

func TestNewHandler_ClientToken(t *testing.T) {
	h := NewHandler(Deps{Issuer: &stubIssuer{key: "ek"}, ClientToken: "s3cret"})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathCredential, nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without token: code = %d, want 401", rec.Code)
	}

	r := httptest.NewRequest(http.MethodGet, PathCredential, nil)
	r.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Errorf("with token: code = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathHealth, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health without token: code = %d, want 200", rec.Code)
	}
}

func TestNewHandler_Health(t *testing.T) {
	testCases := []struct {
		name     string
		pinger   *stubPinger
		wantCode int
	}{
		{"serving", &stubPinger{}, http.StatusOK},
		{"store down", &stubPinger{err: errors.New("closed")}, http.StatusServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(Deps{Issuer: &stubIssuer{}, HealthPinger: tc.pinger})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, PathHealth, nil))
			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
		})
	}
}

func TestNewHandler_NotFound(t *testing.T) {
	h := NewHandler(Deps{Issuer: &stubIssuer{}})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}

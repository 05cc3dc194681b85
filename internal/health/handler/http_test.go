package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestServeHTTP(t *testing.T) {
	testCases := []struct {
		name       string
		pinger     Pinger
		checker    PolicyChecker
		wantCode   int
		wantStatus string
	}{
		{"no checks", nil, nil, http.StatusOK, StatusServing},
		{"pinger success", &mockPinger{}, nil, http.StatusOK, StatusServing},
		{"pinger failure", &mockPinger{pingErr: errors.New("connection refused")}, nil, http.StatusServiceUnavailable, StatusNotServing},
		{"policy success", &mockPinger{}, &mockPolicyChecker{}, http.StatusOK, StatusServing},
		{"policy failure", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("not compiled")}, http.StatusServiceUnavailable, StatusNotServing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(tc.pinger, tc.checker)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			var resp Response
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", resp.Status, tc.wantStatus)
			}
		})
	}
}

func TestServeHTTP_Head(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("HEAD body = %q, want empty", rec.Body.String())
	}
}

func TestServeHTTP_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d, want 405", rec.Code)
	}
}

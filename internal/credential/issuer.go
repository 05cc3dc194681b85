package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 15 * time.Second
	// DefaultBaseURL is the upstream REST base URL.
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultTTL is the lifetime requested for a minted client secret.
	DefaultTTL = 600 * time.Second
)

// Issuer mints ephemeral realtime client secrets from the upstream API.
type Issuer struct {
	APIKey     string
	BaseURL    string
	Model      string
	TTL        time.Duration
	HTTPClient *http.Client
}

// NewIssuer returns an Issuer using apiKey. Empty baseURL and non-positive ttl select the defaults.
func NewIssuer(apiKey, baseURL, model string, ttl time.Duration) *Issuer {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		APIKey:     apiKey,
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		Model:      model,
		TTL:        ttl,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type expiresAfter struct {
	Anchor  string `json:"anchor"`
	Seconds int    `json:"seconds"`
}

type secretSession struct {
	Type  string `json:"type"`
	Model string `json:"model"`
}

type clientSecretRequest struct {
	ExpiresAfter expiresAfter  `json:"expires_after"`
	Session      secretSession `json:"session"`
}

type clientSecretResponse struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Issue requests a new client secret and returns its value.
func (i *Issuer) Issue(ctx context.Context) (string, error) {
	if i.APIKey == "" {
		return "", ErrNotConfigured
	}
	raw, err := json.Marshal(clientSecretRequest{
		ExpiresAfter: expiresAfter{Anchor: "created_at", Seconds: int(i.TTL / time.Second)},
		Session:      secretSession{Type: "realtime", Model: i.Model},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.BaseURL+"/realtime/client_secrets", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+i.APIKey)
	resp, err := i.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("credential: issue: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("credential: issue failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out clientSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("credential: decode issue response: %w", err)
	}
	if out.Value == "" {
		return "", fmt.Errorf("credential: issue response missing value")
	}
	return out.Value, nil
}

package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Fetcher obtains a temporary credential from the proxy endpoint.
type Fetcher struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

// NewFetcher returns a Fetcher for url. token, when non-empty, is sent as a bearer token.
func NewFetcher(url, token string) *Fetcher {
	return &Fetcher{
		URL:        url,
		Token:      token,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// FetchKey GETs the proxy and returns the tempKey. Every failure wraps ErrUnavailable; the proxy's
// error message is included when present.
func (f *Fetcher) FetchKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrUnavailable, e.Error)
		}
		return "", fmt.Errorf("%w: proxy returned status %d", ErrUnavailable, resp.StatusCode)
	}
	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if strings.TrimSpace(out.TempKey) == "" {
		return "", fmt.Errorf("%w: response missing tempKey", ErrUnavailable)
	}
	return out.TempKey, nil
}

/**
 * @description
 * Client for the Yahoo Finance public API. It exposes the three reads the market
 * service needs: daily bars over a date range, the latest session close and the
 * company profile.
 *
 * @notes
 * - The profile endpoint requires a session cookie plus a "crumb" token. Both are
 *   obtained lazily and refreshed once when the provider answers 401.
 * - The client never retries on its own; callers decide.
 */
package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

const (
	DefaultBaseURL   = "https://query2.finance.yahoo.com"
	DefaultCookieURL = "https://fc.yahoo.com"

	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	maxErrorBodyLen = 512
)

var (
	// ErrSymbolNotFound is returned when the provider does not know the symbol.
	ErrSymbolNotFound = errors.New("marketdata: symbol not found")
	// ErrNoData is returned when the symbol exists but the requested range holds no bars.
	ErrNoData = errors.New("marketdata: no data for range")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("marketdata: rate limited by provider")
)

// APIError is any other non-success answer from the provider.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Description != "" {
		return fmt.Sprintf("marketdata: status %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("marketdata: status %d", e.StatusCode)
}

// Client is a Yahoo Finance client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	cookieURL  string
	httpClient *http.Client

	mu    sync.Mutex
	crumb string
}

// NewClient creates a new market-data client. Empty URLs fall back to the
// public Yahoo endpoints; timeout bounds every request.
func NewClient(baseURL, cookieURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if strings.TrimSpace(cookieURL) == "" {
		cookieURL = DefaultCookieURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL:   strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		cookieURL: strings.TrimSpace(cookieURL),
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

// providerError is the error object Yahoo embeds in chart and quoteSummary bodies.
type providerError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (c *Client) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata request: %w", err)
	}
	return resp, nil
}

// decode reads a provider response into out and maps failure statuses onto the
// package errors. pick extracts the embedded error object after decoding.
func decode(resp *http.Response, out any, pick func() *providerError) error {
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("marketdata read body: %w", err)
	}

	decodeErr := json.Unmarshal(body, out)
	var perr *providerError
	if decodeErr == nil {
		perr = pick()
	}

	if resp.StatusCode == http.StatusNotFound || (perr != nil && strings.EqualFold(perr.Code, "Not Found")) {
		return ErrSymbolNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if perr != nil {
			apiErr.Code, apiErr.Description = perr.Code, perr.Description
		} else {
			apiErr.Description = truncate(string(body), maxErrorBodyLen)
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("marketdata decode: %w", decodeErr)
	}
	if perr != nil {
		return &APIError{StatusCode: resp.StatusCode, Code: perr.Code, Description: perr.Description}
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Package httpds is the HTTP side of a connection: a client bound to a base
// URL that resolves task endpoints against it, retries transient failures
// with exponential backoff, and decodes text bodies to UTF-8.
//
// Both the availability sensor and the fetch task go through it. The sensor
// uses Probe (one attempt, its own pacing); the fetch task uses Get.
package httpds

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures a Client.
//
// Zero values are given defaults:
//   - Timeout:        30s
//   - InitialBackoff: 200ms
//   - MaxBackoff:     5s
type Config struct {
	// BaseURL is the connection's host part, e.g. "https://randomuser.me/".
	BaseURL string

	// Timeout is the per-request timeout applied at the http.Client level.
	Timeout time.Duration

	// MaxRetries is the number of retry attempts after the initial request.
	MaxRetries int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// InsecureSkipVerify disables TLS certificate verification. Ignored when
	// Transport is set.
	InsecureSkipVerify bool

	// Headers are added to every request.
	Headers http.Header

	// Transport overrides the default *http.Transport.
	Transport http.RoundTripper
}

// Client wraps an http.Client with a base URL and retry behaviour.
type Client struct {
	base           *url.URL
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	headers        http.Header

	// wait blocks for d or until ctx is done; tests replace it.
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient validates cfg.BaseURL and constructs a Client.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("httpds: base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("httpds: base url %q must be absolute", cfg.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicitly configurable
			},
		}
	}

	return &Client{
		base:           base,
		httpClient:     &http.Client{Timeout: cfg.Timeout, Transport: transport},
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		headers:        cfg.Headers.Clone(),
		wait:           sleepWithContext,
	}, nil
}

// Resolve joins endpoint onto the base URL. Endpoints are relative ("api/");
// a leading slash is ignored so "/api" and "api" resolve under the base path.
func (c *Client) Resolve(endpoint string) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("httpds: endpoint %q: %w", endpoint, err)
	}
	if ref.IsAbs() {
		return "", fmt.Errorf("httpds: endpoint %q must be relative to the connection", endpoint)
	}
	return c.base.ResolveReference(ref).String(), nil
}

// Get requests endpoint with retries. Retryable statuses (429, 5xx) and
// transport errors are retried up to MaxRetries times; any other response is
// returned as-is and the caller must close its body.
func (c *Client) Get(ctx context.Context, endpoint string) (*http.Response, error) {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return nil, err
	}

	attempts := c.maxRetries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, target)
		if err != nil {
			lastErr = err
		} else {
			if !isRetryableStatus(resp.StatusCode) {
				return resp, nil
			}
			_ = resp.Body.Close()
			lastErr = &StatusError{URL: target, Code: resp.StatusCode}
		}

		if attempt+1 >= attempts {
			break
		}
		if err := c.wait(ctx, backoffDuration(c.initialBackoff, attempt, c.maxBackoff)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Probe sends a single GET to endpoint and reports whether it answered with
// a 2xx status. The body is discarded.
func (c *Client) Probe(ctx context.Context, endpoint string) error {
	target, err := c.Resolve(endpoint)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, target)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: target, Code: resp.StatusCode}
	}
	return nil
}

func (c *Client) send(ctx context.Context, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("httpds: build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	return c.httpClient.Do(req)
}

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpds: GET %s: status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// isRetryableStatus treats 429 and 5xx as transient.
func isRetryableStatus(code int) bool {
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500 && code <= 599
}

// backoffDuration returns initial * 2^attempt clamped to max.
func backoffDuration(initial time.Duration, attempt int, max time.Duration) time.Duration {
	if attempt <= 0 {
		if initial > max {
			return max
		}
		return initial
	}
	d := initial << attempt
	if d > max || d <= 0 {
		return max
	}
	return d
}

// sleepWithContext waits for d, returning early with ctx.Err() on cancel.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

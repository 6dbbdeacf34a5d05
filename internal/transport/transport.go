// Package transport implements the connection-pooled HTTP client shared
// by the bucket, results and pipelines manager clients: candidate-base-URL
// failover with healthcheck-driven selection, bounded socket timeouts,
// and exponential-backoff retry on transient failures. The object-store
// archive backend uses its own plain http.Client instead.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sitefed/labwork/internal/retry"
)

const (
	// DefaultConnectTimeout bounds TCP connection establishment.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultReadTimeout bounds the time to read a full response.
	DefaultReadTimeout = 30 * time.Second
	// DefaultHealthTimeout bounds a single base-URL health probe.
	DefaultHealthTimeout = 2 * time.Second
)

// Client talks to a service that is reachable at one of several
// candidate base URLs (e.g. a set of bucket-service replicas). The
// first URL that answers its health endpoint is used for the
// remainder of this Client's lifetime, re-probed on failure.
type Client struct {
	baseURLs     []string
	healthPath   string
	userAgent    string
	httpClient   *http.Client
	retryPolicy  retry.Policy
	selectedBase string
}

// Config configures a Client.
type Config struct {
	// BaseURLs is the ordered list of candidate service endpoints.
	BaseURLs []string
	// HealthPath is probed with HEAD to pick a live base URL. Empty
	// disables probing and simply uses BaseURLs[0].
	HealthPath string
	UserAgent  string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	RetryPolicy    *retry.Policy
}

// New constructs a Client. It does not probe endpoints eagerly;
// selection happens lazily on the first request.
func New(cfg Config) (*Client, error) {
	if len(cfg.BaseURLs) == 0 {
		return nil, fmt.Errorf("transport: at least one base URL is required")
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}

	dialer := &net.Dialer{Timeout: connectTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	policy := retry.DefaultPolicy()
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}
	if policy.Retryable == nil {
		policy.Retryable = IsTransient
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "labwork/1.0"
	}

	return &Client{
		baseURLs:   append([]string(nil), cfg.BaseURLs...),
		healthPath: cfg.HealthPath,
		userAgent:  userAgent,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   readTimeout,
		},
		retryPolicy: policy,
	}, nil
}

// APIError is returned for a 4xx response; it is never retried.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transport: client error %d: %s", e.StatusCode, e.Body)
}

// Do issues method against path (relative to the selected base URL),
// marshaling body as JSON when non-nil and decoding the response into
// out when non-nil. It retries per the configured policy on
// connection failures, timeouts, and 5xx responses; 4xx responses are
// returned immediately as *APIError and never retried.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: marshal request body: %w", err)
		}
		reqBody = encoded
	}

	return retry.Do(ctx, c.retryPolicy, func(ctx context.Context) error {
		base, err := c.selectBase(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, base+path, bytesReader(reqBody))
		if err != nil {
			return retry.Final(fmt.Errorf("transport: build request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-Id", uuid.NewString())
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// A failed base is untrusted; force re-probing next attempt.
			c.selectedBase = ""
			return err
		}
		defer resp.Body.Close()

		return c.handleResponse(resp, out)
	})
}

func (c *Client) handleResponse(resp *http.Response, out interface{}) error {
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("transport: decode response: %w", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		data, _ := io.ReadAll(resp.Body)
		return retry.Final(&APIError{StatusCode: resp.StatusCode, Body: string(data)})
	default:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("transport: server error %d: %s", resp.StatusCode, string(data))
	}
}

// selectBase returns a base URL known (or believed) to be healthy,
// probing candidates in order when none is currently selected.
func (c *Client) selectBase(ctx context.Context) (string, error) {
	if c.selectedBase != "" {
		return c.selectedBase, nil
	}
	if c.healthPath == "" {
		c.selectedBase = c.baseURLs[0]
		return c.selectedBase, nil
	}

	var lastErr error
	for _, candidate := range c.baseURLs {
		probeCtx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, candidate+c.healthPath, nil)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		resp, err := c.httpClient.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 500 {
			c.selectedBase = candidate
			return candidate, nil
		}
		lastErr = fmt.Errorf("health probe %s returned %d", candidate, resp.StatusCode)
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate base URLs configured")
	}
	return "", fmt.Errorf("transport: no healthy base URL among %v: %w", c.baseURLs, lastErr)
}

func bytesReader(b []byte) io.Reader {
	if b == nil {
		return nil
	}
	return bytes.NewReader(b)
}

// IsTransient classifies connection-refused, timeout, and 5xx-wrapped
// errors as retryable. *APIError (4xx) is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if asAPIError(err, &apiErr) {
		return false
	}
	return true
}

func asAPIError(err error, target **APIError) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if ae, ok := err.(*APIError); ok {
			*target = ae
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

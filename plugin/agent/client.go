// Package agent provides the resilient HTTP client used for every
// outbound call to a remote reasoning service. Endpoints are resolved by
// service name; calls are retried with exponential backoff on transient
// failures and rate limited to avoid hammering a recovering agent.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 120 * time.Second
	defaultMaxAttempts    = 5
	defaultBackoffBase    = 800 * time.Millisecond

	// maxErrorBodyLen caps the response body carried inside errors.
	maxErrorBodyLen = 2000
)

// retryableStatuses are the HTTP statuses worth another attempt.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Caller is the call surface consumed by gate and workflow packages.
// *Client is the production implementation.
type Caller interface {
	Call(ctx context.Context, service string, payload map[string]any) (map[string]any, error)
}

// Config holds the agent client configuration.
type Config struct {
	// Endpoints maps service names to URLs.
	Endpoints map[string]string
	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration
	// ReadTimeout bounds the whole request including response read.
	ReadTimeout time.Duration
	// MaxAttempts is the total attempt budget per call.
	MaxAttempts int
	// BackoffBase is the wait before the second attempt; each further
	// wait doubles.
	BackoffBase time.Duration
	// RequestsPerSecond limits outbound call rate (0 = unlimited).
	RequestsPerSecond float64
}

// Client calls named remote agents with retry and backoff. It performs
// no side effects beyond the network call itself.
type Client struct {
	endpoints   map[string]string
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
	limiter     *rate.Limiter
}

// NewClient creates a new agent client.
func NewClient(cfg Config) *Client {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		endpoints: cfg.Endpoints,
		httpClient: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
			},
		},
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		limiter:     limiter,
	}
}

// Call posts payload to the named service and returns the decoded JSON
// object. A successful response whose body is not a JSON object is
// returned as {"raw": <body>} so callers can proceed with degraded
// information instead of failing.
func (c *Client) Call(ctx context.Context, service string, payload map[string]any) (map[string]any, error) {
	url, ok := c.endpoints[service]
	if !ok || url == "" {
		return nil, &Error{
			Code:    ErrCodeUnknownService,
			Service: service,
			Message: "no endpoint configured",
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload for %q: %w", service, err)
	}

	// One request id across all attempts of the same logical call, so
	// the remote side can correlate retries.
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := c.backoffBase << uint(attempt-2)
			slog.Debug("retrying agent call",
				"service", service,
				"attempt", attempt,
				"wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		result, err := c.doOnce(ctx, service, url, requestID, body)
		if err == nil {
			return result, nil
		}
		lastErr = err

		code := CodeOf(err)
		if code != ErrCodeNetwork && code != ErrCodeRetryableStatus {
			return nil, err
		}
		slog.Warn("agent call failed",
			"service", service,
			"attempt", attempt,
			"max_attempts", c.maxAttempts,
			"error", err)
	}
	return nil, lastErr
}

// doOnce issues a single attempt.
func (c *Client) doOnce(ctx context.Context, service, url, requestID string, body []byte) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Service: service, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Service: service, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Code: ErrCodeNetwork, Service: service, Message: "failed to read response", Cause: err}
	}

	if resp.StatusCode >= 400 {
		code := ErrCodeStatus
		if retryableStatuses[resp.StatusCode] {
			code = ErrCodeRetryableStatus
		}
		return nil, &Error{
			Code:    code,
			Service: service,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), maxErrorBodyLen)),
		}
	}

	var decoded any
	if err := json.Unmarshal(respBody, &decoded); err == nil {
		if obj, ok := decoded.(map[string]any); ok {
			return obj, nil
		}
	}

	// Not a JSON object; hand the raw text downstream instead of failing.
	slog.Warn("agent response is not a JSON object", "service", service, "body", truncate(string(respBody), 200))
	return map[string]any{"raw": string(respBody)}, nil
}

var _ Caller = (*Client)(nil)

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

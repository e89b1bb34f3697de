// Package httpretry retries outbound HTTP calls with exponential backoff
// and full jitter.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/ignite/enrollment-engine/internal/pkg/logger"
)

// HTTPDoer executes HTTP requests. Both *http.Client and *RetryClient
// satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tune a RetryClient.
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RetryOn lists the status codes worth another attempt. Empty means
	// NotProcessedStatuses.
	RetryOn []int
}

// NotProcessedStatuses are the answers a provider gives before accepting a
// request, so a retry cannot produce a second delivery.
var NotProcessedStatuses = []int{http.StatusTooManyRequests, http.StatusServiceUnavailable}

// TransientStatuses also retries gateway errors. Only safe for idempotent
// calls.
var TransientStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryClient wraps an HTTPDoer with retries.
type RetryClient struct {
	client HTTPDoer
	opts   Options
	retry  map[int]bool
	log    *logger.Logger
}

// NewRetryClient wraps client. A nil client gets a 30s-timeout http.Client.
func NewRetryClient(client HTTPDoer, opts Options) *RetryClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if len(opts.RetryOn) == 0 {
		opts.RetryOn = NotProcessedStatuses
	}
	retry := make(map[int]bool, len(opts.RetryOn))
	for _, code := range opts.RetryOn {
		retry[code] = true
	}
	return &RetryClient{client: client, opts: opts, retry: retry, log: logger.With("component", "httpretry")}
}

// Do executes req, retrying retryable statuses and network errors until
// MaxRetries is spent or the request context ends. The last retryable
// response is returned as-is so the caller can read its body.
func (rc *RetryClient) Do(req *http.Request) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= rc.opts.MaxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}

			delay := rc.delay(attempt)
			rc.log.Warn("retrying request", "attempt", attempt, "max", rc.opts.MaxRetries,
				"host", req.URL.Host, "path", req.URL.Path, "wait", delay.String())

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-req.Context().Done():
				timer.Stop()
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, req.Context().Err()
			}
		}

		resp, err := rc.client.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !rc.retry[resp.StatusCode] || attempt == rc.opts.MaxRetries {
			return resp, nil
		}

		// Drain for connection reuse.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// delay is full jitter over min(MaxDelay, BaseDelay*2^(attempt-1)), never
// below 10ms.
func (rc *RetryClient) delay(attempt int) time.Duration {
	exp := float64(rc.opts.BaseDelay) * math.Pow(2, float64(attempt-1))
	if exp > float64(rc.opts.MaxDelay) {
		exp = float64(rc.opts.MaxDelay)
	}
	d := time.Duration(rand.Float64() * exp)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

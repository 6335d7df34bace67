package storefront

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ericfisherdev/storepanel/internal/metrics"
)

const (
	// maxAttempts bounds how many times one request reaches the backend.
	maxAttempts = 3
	// maxRetryWait is the longest Retry-After the transport will sit out.
	// A backend asking for more gets its response surfaced unchanged.
	maxRetryWait = 2 * time.Second
)

// errBackendBusy marks a throttled attempt without a Retry-After hint; the
// exponential backoff decides the wait.
var errBackendBusy = errors.New("backend busy")

// retryTransport re-sends requests the backend throttled with 429 or 503,
// honouring Retry-After. Transport errors are never retried.
type retryTransport struct {
	next    http.RoundTripper
	maxWait time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func newRetryTransport(next http.RoundTripper, logger *slog.Logger) *retryTransport {
	return &retryTransport{
		next:    next,
		maxWait: maxRetryWait,
		logger:  logger,
		now:     time.Now,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		out := req
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(err)
			}
			out = req.Clone(req.Context())
			out.Body = body
		}

		resp, err := t.next.RoundTrip(out)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if !throttled(resp.StatusCode) || !replayable || attempt >= maxAttempts {
			return resp, nil
		}

		wait, hinted := retryAfter(resp.Header.Get("Retry-After"), t.now())
		if hinted && wait > t.maxWait {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()

		metrics.BackendRetriesTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()
		t.logger.Debug("backend throttled request, retrying",
			"method", req.Method,
			"path", req.URL.EscapedPath(),
			"status", resp.StatusCode,
			"attempt", attempt,
			"retry_after", wait,
		)
		if hinted {
			return nil, &backoff.RetryAfterError{Duration: wait}
		}
		return nil, errBackendBusy
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = t.maxWait

	return backoff.Retry(req.Context(), operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxAttempts),
	)
}

func throttled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// retryAfter parses a Retry-After header given either as delta seconds or as
// an HTTP date. The second result is false when no usable hint is present.
func retryAfter(value string, now time.Time) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	if d := at.Sub(now); d > 0 {
		return d, true
	}
	return 0, true
}

package storefront_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/storepanel/internal/adapter/driven/storefront"
)

// newThrottledClient serves responses[i] for the i-th request and repeats the
// last one afterwards. It goes through NewClient so the production transport
// stack is exercised.
func newThrottledClient(t *testing.T, responses ...func(http.ResponseWriter)) (*storefront.Client, *atomic.Int32) {
	t.Helper()

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(hits.Add(1)) - 1
		if n >= len(responses) {
			n = len(responses) - 1
		}
		responses[n](w)
	}))
	t.Cleanup(server.Close)

	client, err := storefront.NewClient(server.URL, 5*time.Second, discardLogger())
	require.NoError(t, err)
	return client, &hits
}

func throttle(status int, retryAfter string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		if retryAfter != "" {
			w.Header().Set("Retry-After", retryAfter)
		}
		w.WriteHeader(status)
	}
}

func okJSON(body string) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestRetry_RecoversAfterThrottling(t *testing.T) {
	tests := []struct {
		name   string
		first  func(http.ResponseWriter)
		second func(http.ResponseWriter)
	}{
		{name: "429 with zero Retry-After", first: throttle(http.StatusTooManyRequests, "0"), second: throttle(http.StatusTooManyRequests, "0")},
		{name: "503 with zero Retry-After", first: throttle(http.StatusServiceUnavailable, "0"), second: throttle(http.StatusServiceUnavailable, "0")},
		{name: "Retry-After as past HTTP date", first: throttle(http.StatusTooManyRequests, "Mon, 02 Jan 2006 15:04:05 GMT"), second: throttle(http.StatusTooManyRequests, "0")},
		{name: "429 without Retry-After", first: throttle(http.StatusTooManyRequests, ""), second: throttle(http.StatusTooManyRequests, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, hits := newThrottledClient(t, tt.first, tt.second, okJSON(`[]`))

			orders, err := client.ListOrders(context.Background(), testCred)
			require.NoError(t, err)
			assert.Empty(t, orders)
			assert.Equal(t, int32(3), hits.Load())
		})
	}
}

func TestRetry_SurfacesLongRetryAfter(t *testing.T) {
	client, hits := newThrottledClient(t, throttle(http.StatusTooManyRequests, "30"))

	start := time.Now()
	_, err := client.ListOrders(context.Background(), testCred)
	elapsed := time.Since(start)

	require.Error(t, err)
	var apiErr *storefront.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	client, hits := newThrottledClient(t, throttle(http.StatusServiceUnavailable, "0"))

	_, err := client.ListOrders(context.Background(), testCred)

	require.Error(t, err)
	var apiErr *storefront.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}

func TestRetry_DoesNotRetryOtherStatuses(t *testing.T) {
	for _, status := range []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusUnauthorized} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			client, hits := newThrottledClient(t, throttle(status, "0"))

			_, err := client.ListOrders(context.Background(), testCred)

			require.Error(t, err)
			assert.Equal(t, int32(1), hits.Load())
		})
	}
}

func TestRetry_ReplaysRequestBody(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got map[string]string
		_ = json.NewDecoder(r.Body).Decode(&got)
		mu.Lock()
		bodies = append(bodies, got)
		first := len(bodies) == 1
		mu.Unlock()
		if first {
			throttle(http.StatusTooManyRequests, "0")(w)
			return
		}
		okJSON(`{"token":"tok-1"}`)(w)
	}))
	t.Cleanup(server.Close)

	client, err := storefront.NewClient(server.URL, 5*time.Second, discardLogger())
	require.NoError(t, err)

	cred, err := client.Login(context.Background(), "alice@example.com", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cred.Token)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	for _, b := range bodies {
		assert.Equal(t, "alice@example.com", b["email"])
		assert.Equal(t, "s3cret", b["password"])
	}
}

func TestRetry_StopsWhenContextCancelled(t *testing.T) {
	client, hits := newThrottledClient(t, throttle(http.StatusTooManyRequests, "1"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.ListOrders(ctx, testCred)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int32(1), hits.Load())
}

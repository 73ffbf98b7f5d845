package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pay/internal/resilience"
)

func TestHTTPClientRetriesUntilSuccess(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "try again", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := resilience.HTTPClient{
		Client:      server.Client(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), hits.Load())
}

func TestHTTPClientGivesUpAfterMaxAttempts(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := resilience.HTTPClient{
		Client:      server.Client(),
		MaxAttempts: 2,
		BaseBackoff: time.Millisecond,
	}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.Error(t, err)
	require.Equal(t, int32(2), hits.Load())
}

func TestHTTPClientOpenBreakerShortCircuits(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	breaker := resilience.NewBreaker(1, 0.5, time.Minute)
	breaker.Report(false)

	client := resilience.HTTPClient{
		Client:      server.Client(),
		Breaker:     breaker,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}
	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Equal(t, int32(0), hits.Load())
}

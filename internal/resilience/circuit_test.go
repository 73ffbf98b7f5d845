package resilience_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-pay/internal/resilience"
)

func TestBreakerTransitions(t *testing.T) {
	breaker := resilience.NewBreaker(2, 0.5, 50*time.Millisecond)

	require.True(t, breaker.Allow())
	breaker.Report(false)
	require.True(t, breaker.Allow())
	breaker.Report(false)

	require.False(t, breaker.Allow(), "breaker should open after threshold exceeded")

	time.Sleep(60 * time.Millisecond)
	require.True(t, breaker.Allow(), "breaker should move to half-open after cool off")
	breaker.Report(true)
	require.True(t, breaker.Allow(), "breaker should close after successful probe")
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, 30*time.Millisecond)

	breaker.Report(false)
	require.False(t, breaker.Allow())

	time.Sleep(40 * time.Millisecond)
	require.True(t, breaker.Allow())
	breaker.Report(false)
	require.False(t, breaker.Allow(), "failed probe should reopen the breaker")
}

func TestBreakerAdmitsDoesNotTransition(t *testing.T) {
	breaker := resilience.NewBreaker(1, 0.5, 30*time.Millisecond)

	breaker.Report(false)
	require.False(t, breaker.Admits(), "open breaker inside cool-off should not admit")

	time.Sleep(40 * time.Millisecond)
	require.True(t, breaker.Admits(), "open breaker past cool-off should admit")

	// Admits must not have consumed the half-open probe slot: a failure
	// report against a still-Open breaker is ignored, so admission for the
	// real recovery probe survives.
	breaker.Report(false)
	require.True(t, breaker.Allow(), "recovery probe slot should remain available")
}

func TestBackoffWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	d1 := resilience.Backoff(base, 1, 0)
	require.Equal(t, base, d1)

	d2 := resilience.Backoff(base, 3, 0)
	require.Equal(t, base*4, d2)

	// With jitter the delay should stay within expected range.
	d3 := resilience.Backoff(base, 2, 0.2)
	min := base*2 - (base * 2 / 5)
	max := base*2 + (base * 2 / 5)
	require.GreaterOrEqual(t, d3, min)
	require.LessOrEqual(t, d3, max)
}

package resilience

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net/http"
	"time"
)

// Backoff returns the exponential backoff delay for attempt (1-based).
// jitterPct spreads the result by up to that fraction in either direction.
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << uint(attempt-1)
	if jitterPct <= 0 {
		return d
	}
	delta := (rand.Float64()*2 - 1) * jitterPct * float64(d)
	return d + time.Duration(delta)
}

// HTTPClient retries idempotent gateway calls with exponential backoff
// behind a circuit breaker. Responses with a 5xx status count as failures;
// anything below that is handed back to the caller, including gateway
// rejections the caller must not retry.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes req, replaying the buffered body on each retry. An open
// breaker yields ErrOpenCircuit without touching the network.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	breaker := cl.Breaker
	if breaker == nil {
		breaker = NewBreaker(1, 1, time.Second)
	}
	attempts := max(cl.MaxAttempts, 1)

	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow() {
			lastErr = ErrOpenCircuit
			break
		}

		resp, err := cl.doOnce(ctx, withReplayBody(req.Clone(ctx), body))
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			breaker.Report(true)
			return resp, nil
		}
		breaker.Report(false)
		if err != nil {
			lastErr = err
		} else {
			lastErr = errors.New(resp.Status)
		}

		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout > 0 {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		req = req.WithContext(callCtx)
	}
	return cl.Client.Do(req)
}

// bufferBody drains the request body once so every attempt can replay it.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	data, err := io.ReadAll(src)
	_ = src.Close()
	if err != nil {
		return nil, err
	}
	withReplayBody(req, data)
	return data, nil
}

func withReplayBody(req *http.Request, body []byte) *http.Request {
	if body == nil {
		return req
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return req
}

package overpass

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy controls how a single lookup retries busy or failing upstreams
// before the failure reaches the circuit breaker.
type RetryPolicy struct {
	// MaxAttempts includes the first try. 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// JitterFraction spreads each delay by up to this fraction either way.
	JitterFraction float64
}

// DefaultRetryPolicy returns three attempts starting at a 500ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		JitterFraction: 0.25,
	}
}

// WithRetry sets the retry policy for upstream requests.
func WithRetry(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// statusError is a non-200 interpreter response.
type statusError struct {
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("overpass: status %d", e.StatusCode)
}

// transient reports whether err is worth retrying: rate limiting, gateway
// and server errors, and network timeouts.
func transient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func withRetry(ctx context.Context, p RetryPolicy, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		body, err := fn(ctx)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || !transient(err) || attempt == p.MaxAttempts-1 {
			return nil, lastErr
		}

		zap.L().Warn("retrying overpass request",
			zap.String("component", "overpass"),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		timer := time.NewTimer(p.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := float64(p.InitialBackoff) * math.Pow(2, float64(attempt))
	if p.MaxBackoff > 0 && delay > float64(p.MaxBackoff) {
		delay = float64(p.MaxBackoff)
	}
	if p.JitterFraction > 0 {
		delay += (rand.Float64()*2 - 1) * delay * p.JitterFraction
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/ehound/internal/crawlerr"
)

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ExponentialRetryPolicy implements RetryPolicy with jittered exponential backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries after the first
// attempt. Non-positive delays fall back to 250ms / 5s.
func NewExponentialRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxRetries + 1,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry reports whether err is worth another attempt. attempt is the number of
// attempts already made.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr *crawlerr.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Temporary()
	}
	var opErr net.Error
	return errors.As(err, &opErr)
}

// Backoff returns the wait before attempt+1.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Retrying re-issues failed requests according to policy. The last error is returned
// once the policy gives up.
func Retrying(policy RetryPolicy, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Fetcher) Fetcher {
		return Func(func(ctx context.Context, req Request) (Response, error) {
			if policy == nil {
				return next.Fetch(ctx, req)
			}
			attempt := 0
			for {
				resp, err := next.Fetch(ctx, req)
				attempt++
				if err == nil || !policy.ShouldRetry(err, attempt) {
					return resp, err
				}
				wait := policy.Backoff(attempt)
				logger.Warn("Retrying fetch",
					zap.String("url", req.URL),
					zap.Int("attempt", attempt),
					zap.Duration("backoff", wait),
					zap.Error(err),
				)
				if !sleep(ctx, wait) {
					return Response{}, err
				}
			}
		})
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

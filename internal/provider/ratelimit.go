package provider

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to the wrapped provider with a token bucket.
// It is shared by all runs of a process.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps next. A non-positive rps disables throttling.
func NewRateLimited(next Provider, rps float64, burst int) *RateLimited {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Generate waits for a token, then calls the wrapped provider.
func (r *RateLimited) Generate(ctx context.Context, req *Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{
			Code:       ErrorCodeRateLimit,
			Message:    "rate limiter wait failed",
			Underlying: err,
			Retryable:  true,
		}
	}
	return r.next.Generate(ctx, req)
}

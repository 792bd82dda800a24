package marketdata

import (
	"context"

	"golang.org/x/time/rate"
)

// Budget is the shared request budget. Every worker in an experiment
// run draws from the same token bucket, so total upstream pressure is
// bounded no matter how many goroutines fetch candles.
type Budget struct {
	limiter *rate.Limiter
}

// NewBudget creates a budget of rps requests per second with the given
// burst capacity. rps <= 0 disables limiting.
func NewBudget(rps float64, burst int) *Budget {
	if rps <= 0 {
		return &Budget{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Budget{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a request token is available or ctx is cancelled.
func (b *Budget) Wait(ctx context.Context) error {
	return b.limiter.Wait(ctx)
}

// Allow reports whether a token is available without blocking.
func (b *Budget) Allow() bool {
	return b.limiter.Allow()
}

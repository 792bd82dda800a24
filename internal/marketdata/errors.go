package marketdata

import "errors"

var (
	// ErrFetchFailed is returned when a request exhausted its retries
	// or hit a terminal upstream response.
	ErrFetchFailed = errors.New("market data fetch failed")

	// ErrRateLimited is returned when the upstream kept answering 429
	// through the whole retry schedule.
	ErrRateLimited = errors.New("market data rate limited")
)

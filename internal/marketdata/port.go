// Package marketdata talks to the external OHLCV/metadata API.
package marketdata

import (
	"context"

	"caller-alert-lab/internal/domain"
)

// Port is the upstream market data surface the candle provider needs.
type Port interface {
	// FetchCandles retrieves candles for (mint, chain, interval) with
	// ts in [from, to]. The returned slice is sorted by ts ASC; the
	// API may legitimately return fewer candles than the range spans.
	FetchCandles(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64) (domain.CandleSlice, error)

	// FetchTokenMeta retrieves supply/mcap/price metadata for a mint.
	// Missing fields stay nil; the caller decides how to degrade.
	FetchTokenMeta(ctx context.Context, mint string, chain domain.Chain) (*domain.TokenMeta, error)
}

// Package candles resolves OHLCV ranges through a cache, the local
// time-series store and the external API, in that order.
package candles

import (
	"context"
	"fmt"
	"log"
	"os"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/marketdata"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/storage"
)

// DefaultCacheSize bounds the LRU of recent range results.
const DefaultCacheSize = 256

// Provider is the hybrid candle source. Resolution order: in-memory
// LRU, time-series store, external API with write-back. Each step
// short-circuits when the full requested range is satisfied.
type Provider struct {
	cache  *lruCache
	store  storage.CandleStore
	api    marketdata.Port
	logger *log.Logger
}

// ProviderOption configures Provider.
type ProviderOption func(*Provider)

// WithCacheSize sets the LRU capacity.
func WithCacheSize(n int) ProviderOption {
	return func(p *Provider) {
		p.cache = newLRUCache(n)
	}
}

// WithLogger sets the provider logger.
func WithLogger(l *log.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = l
	}
}

// NewProvider creates a hybrid candle provider.
func NewProvider(store storage.CandleStore, api marketdata.Port, opts ...ProviderOption) *Provider {
	p := &Provider{
		cache:  newLRUCache(DefaultCacheSize),
		store:  store,
		api:    api,
		logger: log.New(os.Stderr, "[candles] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetCandles resolves candles for (mint, chain, interval) with ts in
// [from, to]. The returned slice is ordered, deduplicated and aligned.
// Under PolicyStrict an incomplete range returns a GapError; under
// PolicyBestEffort the dense sequence returns together with the gap
// list so the consumer can skip them.
func (p *Provider) GetCandles(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64, policy GapPolicy) (domain.CandleSlice, []Gap, error) {
	if err := domain.ValidateMint(mint, chain); err != nil {
		return nil, nil, err
	}
	if intervalSeconds <= 0 || to < from {
		return nil, nil, fmt.Errorf("%w: candle range [%d, %d] at interval %d", domain.ErrValidation, from, to, intervalSeconds)
	}

	key := cacheKey(mint, chain, intervalSeconds, from, to)
	if cached, ok := p.cache.get(key); ok {
		observability.RecordCacheHit()
		return cached, nil, nil
	}
	observability.RecordCacheMiss()

	stored, err := p.store.GetRange(ctx, mint, chain, intervalSeconds, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("candle store read: %w", err)
	}
	stored = aligned(stored, intervalSeconds)

	gaps := FindGaps(stored, from, to, intervalSeconds)
	if len(gaps) == 0 {
		p.cache.put(key, stored)
		return stored, nil, nil
	}

	merged, fetchErr := p.fillFromAPI(ctx, stored, mint, chain, intervalSeconds, gaps)
	gaps = FindGaps(merged, from, to, intervalSeconds)

	if fetchErr != nil {
		if policy == PolicyStrict {
			return nil, gaps, fetchErr
		}
		p.logger.Printf("api fill failed for %s, continuing best-effort: %v", mint, fetchErr)
	}

	if len(gaps) == 0 {
		p.cache.put(key, merged)
		return merged, nil, nil
	}

	observability.RecordGap(string(policy))
	if policy == PolicyStrict {
		return nil, gaps, &GapError{Gaps: gaps}
	}
	return merged, gaps, nil
}

// fillFromAPI fetches each missing sub-range, writes results back to
// the store and merges them into the stored rows.
func (p *Provider) fillFromAPI(ctx context.Context, stored domain.CandleSlice, mint string, chain domain.Chain, intervalSeconds int64, gaps []Gap) (domain.CandleSlice, error) {
	merged := stored
	var firstErr error

	for _, gap := range gaps {
		fetched, err := p.api.FetchCandles(ctx, mint, chain, intervalSeconds, gap.From, gap.To)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fetched = aligned(fetched, intervalSeconds)
		if len(fetched) == 0 {
			continue
		}
		if err := p.store.UpsertBatch(ctx, fetched); err != nil {
			// Storage failures are fatal to the request; the API
			// result cannot be trusted to reappear.
			return nil, fmt.Errorf("candle write-back: %w", err)
		}
		merged = append(merged, fetched...)
	}

	merged = merged.SortAndDedup()
	return merged, firstErr
}

// aligned drops rows whose ts does not land on the interval grid.
func aligned(in domain.CandleSlice, intervalSeconds int64) domain.CandleSlice {
	out := in[:0]
	for _, c := range in {
		if c.Ts%intervalSeconds == 0 {
			out = append(out, c)
		}
	}
	return out
}

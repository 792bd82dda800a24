package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// CandleStore is an in-memory implementation of storage.CandleStore.
// Upserts replace by key, matching the replacing engine of the
// ClickHouse backend.
type CandleStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Candle
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{data: make(map[string]*domain.Candle)}
}

func candleKey(c *domain.Candle) string {
	return fmt.Sprintf("%s|%s|%d|%d", c.Chain, c.TokenAddress, c.IntervalSeconds, c.Ts)
}

// UpsertBatch writes candles; repeated keys replace earlier rows.
func (s *CandleStore) UpsertBatch(_ context.Context, candles []*domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		if c == nil || c.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
		cp := *c
		s.data[candleKey(c)] = &cp
	}
	return nil
}

// GetRange retrieves candles in [from, to] ordered by ts ASC.
func (s *CandleStore) GetRange(_ context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64) (domain.CandleSlice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out domain.CandleSlice
	for _, c := range s.data {
		if c.TokenAddress == mint && c.Chain == chain && c.IntervalSeconds == intervalSeconds && c.Ts >= from && c.Ts <= to {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}

// Compact is a no-op; the map is always compacted.
func (s *CandleStore) Compact(_ context.Context) error { return nil }

var _ storage.CandleStore = (*CandleStore)(nil)

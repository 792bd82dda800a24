package clickhouse

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
//
// ohlcv_candles is a ReplacingMergeTree keyed on (token_address, chain,
// interval_seconds, ts) with an explicit arrival version column, so
// re-ingesting a range is an upsert: the latest arrival wins. Merges
// are asynchronous, so reads collapse duplicates themselves with
// argMax(col, arrival) instead of relying on FINAL.
type CandleStore struct {
	conn *Conn

	// arrival is a process-local version counter seeded from the wall
	// clock. It must be strictly increasing across batches or the
	// replacing engine cannot order re-ingested rows.
	arrival atomic.Int64
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	s := &CandleStore{conn: conn}
	s.arrival.Store(time.Now().UnixNano())
	return s
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// UpsertBatch writes candles. Repeated keys within or across batches
// replace earlier rows by arrival order.
func (s *CandleStore) UpsertBatch(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	for _, c := range candles {
		if c == nil || c.TokenAddress == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlcv_candles (
			token_address, chain, interval_seconds, ts,
			open, high, low, close, volume, arrival
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.TokenAddress, string(c.Chain), uint32(c.IntervalSeconds), c.Ts,
			c.Open, c.High, c.Low, c.Close, c.Volume,
			uint64(s.arrival.Add(1)),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves candles for (mint, chain, interval) with ts in
// [from, to], deduplicated and ordered by ts ASC.
func (s *CandleStore) GetRange(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64) (domain.CandleSlice, error) {
	query := `
		SELECT
			ts,
			argMax(open, arrival),
			argMax(high, arrival),
			argMax(low, arrival),
			argMax(close, arrival),
			argMax(volume, arrival)
		FROM ohlcv_candles
		WHERE token_address = ? AND chain = ? AND interval_seconds = ?
		  AND ts >= ? AND ts <= ?
		GROUP BY ts
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, string(chain), uint32(intervalSeconds), from, to)
	if err != nil {
		return nil, fmt.Errorf("query candle range: %w", err)
	}
	defer rows.Close()

	var out domain.CandleSlice
	for rows.Next() {
		c := &domain.Candle{
			TokenAddress:    mint,
			Chain:           chain,
			IntervalSeconds: intervalSeconds,
		}
		if err := rows.Scan(&c.Ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return out, nil
}

// Compact collapses historical duplicates eagerly. Reads already
// deduplicate with argMax; this exists for legacy backfills that left
// large duplicate ranges behind.
func (s *CandleStore) Compact(ctx context.Context) error {
	if err := s.conn.Exec(ctx, "OPTIMIZE TABLE ohlcv_candles FINAL"); err != nil {
		return fmt.Errorf("optimize ohlcv_candles: %w", err)
	}
	return nil
}

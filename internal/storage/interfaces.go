package storage

import (
	"context"
	"time"

	"caller-alert-lab/internal/domain"
)

// CandleStore provides access to ohlcv_candles storage (OLAP side).
// The backing engine collapses repeated primary keys with last-arrival-
// wins semantics, so UpsertBatch is idempotent.
type CandleStore interface {
	// UpsertBatch writes candles. Repeated keys within or across
	// batches replace earlier rows by arrival order.
	UpsertBatch(ctx context.Context, candles []*domain.Candle) error

	// GetRange retrieves candles for (mint, chain, interval) whose
	// ts lies in [from, to], deduplicated and ordered by ts ASC.
	GetRange(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64) (domain.CandleSlice, error)

	// Compact collapses historical duplicates eagerly. Online reads
	// do not require it; it exists for legacy backfills.
	Compact(ctx context.Context) error
}

// TokenStore provides access to the canonical tokens table.
type TokenStore interface {
	// Ensure inserts the token if absent and returns its row id.
	// The stored address keeps the exact case of the first sighting.
	Ensure(ctx context.Context, t *domain.Token) (int64, error)

	// GetByAddress retrieves a token. Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.Token, error)
}

// CallerStore provides access to callers.
type CallerStore interface {
	// Ensure inserts the caller if absent and returns its row id.
	Ensure(ctx context.Context, c *domain.Caller) (int64, error)

	// GetByHandle retrieves a caller. Returns ErrNotFound if absent.
	GetByHandle(ctx context.Context, source, handle string) (*domain.Caller, error)
}

// AlertStore provides idempotent access to alerts.
type AlertStore interface {
	// InsertIdempotent inserts the alert unless (chat_id, message_id)
	// already exists. Returns true when a new row was written.
	InsertIdempotent(ctx context.Context, a *domain.Alert) (bool, error)

	// GetByID retrieves an alert. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, alertID string) (*domain.Alert, error)

	// GetByTimeRange retrieves alerts with alert_ts in [from, to],
	// optionally filtered, ordered by (alert_ts, alert_id) ASC.
	GetByTimeRange(ctx context.Context, from, to int64, filters domain.SnapshotFilters) ([]*domain.Alert, error)

	// Count returns the total number of stored alerts.
	Count(ctx context.Context) (int64, error)
}

// StrategyStore provides access to named strategy configs.
type StrategyStore interface {
	// Insert adds a strategy version. Returns ErrDuplicateKey when
	// (name, version) exists.
	Insert(ctx context.Context, name string, version int, cfg *domain.StrategyConfig, active bool) error

	// GetActive retrieves the active config for a name.
	GetActive(ctx context.Context, name string) (*domain.StrategyConfig, error)
}

// RunStore provides access to simulation_runs.
type RunStore interface {
	// Insert adds a new run row. Returns ErrDuplicateKey if run_id
	// exists.
	Insert(ctx context.Context, r *domain.SimulationRun) error

	// GetByID retrieves a run. Returns ErrNotFound if absent.
	GetByID(ctx context.Context, runID string) (*domain.SimulationRun, error)

	// UpdateStatus transitions the run. Returns ErrBadTransition when
	// the machine disallows it.
	UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errorMessage string, completedAt *time.Time) error

	// RecordArtifacts attaches output artifact ids to the run row.
	RecordArtifacts(ctx context.Context, runID, tradesID, metricsID, eventsID, diagnosticsID string) error

	// List retrieves runs ordered by created_at DESC.
	List(ctx context.Context, status domain.RunStatus, limit, offset int) ([]*domain.SimulationRun, error)
}

// SummaryRow is a run-level metrics row joined for ranking.
type SummaryRow struct {
	RunID   string
	Summary domain.MetricsSummary
}

// LeaderboardQuery is the closed query surface over run summaries.
type LeaderboardQuery struct {
	// Criteria is one of: return, win_rate, profit_factor, sharpe,
	// max_drawdown.
	Criteria   string
	Descending bool
	Limit      int
	MinTrades  int
	MinWinRate float64
}

// SummaryStore provides access to simulation_results_summary.
type SummaryStore interface {
	// Upsert writes the run-level summary (one row per run).
	Upsert(ctx context.Context, runID string, s *domain.MetricsSummary) error

	// GetByRunID retrieves a summary. Returns ErrNotFound if absent.
	GetByRunID(ctx context.Context, runID string) (*domain.MetricsSummary, error)

	// Leaderboard ranks runs by the query criteria.
	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]*SummaryRow, error)
}

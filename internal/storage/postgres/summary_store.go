package postgres

import (
	"context"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// SummaryStore implements storage.SummaryStore using PostgreSQL.
type SummaryStore struct {
	pool *Pool
}

// NewSummaryStore creates a new SummaryStore.
func NewSummaryStore(pool *Pool) *SummaryStore {
	return &SummaryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SummaryStore = (*SummaryStore)(nil)

// Upsert writes the run-level summary (one row per run).
func (s *SummaryStore) Upsert(ctx context.Context, runID string, sum *domain.MetricsSummary) error {
	if runID == "" || sum == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_results_summary (
			run_id, final_pnl, final_price, max_drawdown, win_rate,
			trade_count, avg_return, reentry_count, holding_minutes,
			fees, profit_factor, sharpe, sortino, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		ON CONFLICT (run_id) DO UPDATE SET
			final_pnl = EXCLUDED.final_pnl,
			final_price = EXCLUDED.final_price,
			max_drawdown = EXCLUDED.max_drawdown,
			win_rate = EXCLUDED.win_rate,
			trade_count = EXCLUDED.trade_count,
			avg_return = EXCLUDED.avg_return,
			reentry_count = EXCLUDED.reentry_count,
			holding_minutes = EXCLUDED.holding_minutes,
			fees = EXCLUDED.fees,
			profit_factor = EXCLUDED.profit_factor,
			sharpe = EXCLUDED.sharpe,
			sortino = EXCLUDED.sortino,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		runID, sum.FinalPnl, sum.FinalPrice, sum.MaxDrawdown, sum.WinRate,
		sum.TradeCount, sum.AvgReturn, sum.ReentryCount, sum.HoldingMinutes,
		sum.Fees, sum.ProfitFactor, sum.Sharpe, sum.Sortino,
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// GetByRunID retrieves a summary. Returns ErrNotFound if absent.
func (s *SummaryStore) GetByRunID(ctx context.Context, runID string) (*domain.MetricsSummary, error) {
	query := `
		SELECT final_pnl, final_price, max_drawdown, win_rate,
		       trade_count, avg_return, reentry_count, holding_minutes,
		       fees, profit_factor, sharpe, sortino
		FROM simulation_results_summary
		WHERE run_id = $1
	`

	var sum domain.MetricsSummary
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&sum.FinalPnl, &sum.FinalPrice, &sum.MaxDrawdown, &sum.WinRate,
		&sum.TradeCount, &sum.AvgReturn, &sum.ReentryCount, &sum.HoldingMinutes,
		&sum.Fees, &sum.ProfitFactor, &sum.Sharpe, &sum.Sortino,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get summary by run id: %w", err)
	}
	return &sum, nil
}

// Leaderboard ranks runs by the query criteria. The criteria set is
// closed and mapped to columns here; nothing user-supplied reaches the
// SQL text.
func (s *SummaryStore) Leaderboard(ctx context.Context, q storage.LeaderboardQuery) ([]*storage.SummaryRow, error) {
	column, ok := leaderboardColumns[q.Criteria]
	if !ok {
		return nil, fmt.Errorf("%w: leaderboard criteria %q", storage.ErrInvalidInput, q.Criteria)
	}

	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT run_id, final_pnl, final_price, max_drawdown, win_rate,
		       trade_count, avg_return, reentry_count, holding_minutes,
		       fees, profit_factor, sharpe, sortino
		FROM simulation_results_summary
		WHERE trade_count >= $1 AND win_rate >= $2
		ORDER BY %s %s NULLS LAST, run_id ASC
		LIMIT $3
	`, column, direction)

	rows, err := s.pool.Query(ctx, query, q.MinTrades, q.MinWinRate, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []*storage.SummaryRow
	for rows.Next() {
		var row storage.SummaryRow
		err := rows.Scan(
			&row.RunID, &row.Summary.FinalPnl, &row.Summary.FinalPrice,
			&row.Summary.MaxDrawdown, &row.Summary.WinRate,
			&row.Summary.TradeCount, &row.Summary.AvgReturn,
			&row.Summary.ReentryCount, &row.Summary.HoldingMinutes,
			&row.Summary.Fees, &row.Summary.ProfitFactor,
			&row.Summary.Sharpe, &row.Summary.Sortino,
		)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard rows: %w", err)
	}
	return out, nil
}

var leaderboardColumns = map[string]string{
	"return":        "final_pnl",
	"win_rate":      "win_rate",
	"profit_factor": "profit_factor",
	"sharpe":        "sharpe",
	"max_drawdown":  "max_drawdown",
}

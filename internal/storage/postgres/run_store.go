package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// RunStore implements storage.RunStore using PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunStore = (*RunStore)(nil)

// Insert adds a new run row. Returns ErrDuplicateKey if run_id exists.
func (s *RunStore) Insert(ctx context.Context, r *domain.SimulationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO simulation_runs (
			run_id, strategy_hash, snapshot_hash, exec_model_hash,
			cost_model_hash, risk_model_hash, seed, engine_version,
			status, error_message, trades_id, metrics_id, events_id,
			diagnostics_id, created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := s.pool.Exec(ctx, query,
		r.RunID, r.StrategyHash, r.SnapshotHash, r.ExecModelHash,
		r.CostModelHash, r.RiskModelHash, r.Seed, r.EngineVersion,
		string(r.Status), r.ErrorMessage, r.TradesID, r.MetricsID,
		r.EventsID, r.DiagnosticsID, r.CreatedAt, r.CompletedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if absent.
func (s *RunStore) GetByID(ctx context.Context, runID string) (*domain.SimulationRun, error) {
	query := runColumns + ` WHERE run_id = $1`

	r, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run by id: %w", err)
	}
	return r, nil
}

// UpdateStatus transitions the run. The current status is read and the
// update applied in one transaction so a concurrent writer cannot slip
// an illegal transition through.
func (s *RunStore) UpdateStatus(ctx context.Context, runID string, status domain.RunStatus, errorMessage string, completedAt *time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM simulation_runs WHERE run_id = $1 FOR UPDATE`,
		runID,
	).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock run row: %w", err)
	}

	if !domain.CanTransition(domain.RunStatus(current), status) {
		return storage.ErrBadTransition
	}

	_, err = tx.Exec(ctx,
		`UPDATE simulation_runs
		 SET status = $2, error_message = $3, completed_at = $4
		 WHERE run_id = $1`,
		runID, string(status), errorMessage, completedAt,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

// RecordArtifacts attaches output artifact ids to the run row.
func (s *RunStore) RecordArtifacts(ctx context.Context, runID, tradesID, metricsID, eventsID, diagnosticsID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE simulation_runs
		 SET trades_id = $2, metrics_id = $3, events_id = $4, diagnostics_id = $5
		 WHERE run_id = $1`,
		runID, tradesID, metricsID, eventsID, diagnosticsID,
	)
	if err != nil {
		return fmt.Errorf("record run artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// List retrieves runs ordered by created_at DESC, then run_id. An empty
// status matches all runs.
func (s *RunStore) List(ctx context.Context, status domain.RunStatus, limit, offset int) ([]*domain.SimulationRun, error) {
	query := runColumns + `
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, run_id ASC
		LIMIT $2 OFFSET $3
	`
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.SimulationRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}

const runColumns = `
	SELECT run_id, strategy_hash, snapshot_hash, exec_model_hash,
	       cost_model_hash, risk_model_hash, seed, engine_version,
	       status, error_message, trades_id, metrics_id, events_id,
	       diagnostics_id, created_at, completed_at
	FROM simulation_runs
`

// scanRun scans a single row into a SimulationRun.
func scanRun(row pgx.Row) (*domain.SimulationRun, error) {
	var r domain.SimulationRun

	err := row.Scan(
		&r.RunID, &r.StrategyHash, &r.SnapshotHash, &r.ExecModelHash,
		&r.CostModelHash, &r.RiskModelHash, &r.Seed, &r.EngineVersion,
		&r.Status, &r.ErrorMessage, &r.TradesID, &r.MetricsID,
		&r.EventsID, &r.DiagnosticsID, &r.CreatedAt, &r.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

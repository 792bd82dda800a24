package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// AlertStore implements storage.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *Pool
}

// NewAlertStore creates a new AlertStore.
func NewAlertStore(pool *Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AlertStore = (*AlertStore)(nil)

// InsertIdempotent inserts the alert unless (chat_id, message_id)
// already exists. Returns true when a new row was written.
func (s *AlertStore) InsertIdempotent(ctx context.Context, a *domain.Alert) (bool, error) {
	if a == nil || a.AlertID == "" {
		return false, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO alerts (
			alert_id, token_address, chain, caller_id, alert_ts,
			alert_price, alert_mcap, chat_id, message_id, raw_payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (chat_id, message_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		a.AlertID,
		a.TokenAddress,
		string(a.Chain),
		a.CallerID,
		a.AlertTs,
		a.AlertPrice,
		a.AlertMcap,
		a.ChatID,
		a.MessageID,
		a.RawPayload,
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByID retrieves an alert. Returns ErrNotFound if absent.
func (s *AlertStore) GetByID(ctx context.Context, alertID string) (*domain.Alert, error) {
	query := alertColumns + ` WHERE alert_id = $1`

	a, err := scanAlert(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get alert by id: %w", err)
	}
	return a, nil
}

// GetByTimeRange retrieves alerts with alert_ts in [from, to],
// optionally filtered, ordered by (alert_ts, alert_id) ASC.
func (s *AlertStore) GetByTimeRange(ctx context.Context, from, to int64, filters domain.SnapshotFilters) ([]*domain.Alert, error) {
	query := alertColumns + ` WHERE alert_ts >= $1 AND alert_ts <= $2`
	args := []any{from, to}

	if len(filters.Callers) > 0 {
		args = append(args, filters.Callers)
		query += fmt.Sprintf(" AND caller_id = ANY($%d)", len(args))
	}
	if len(filters.Mints) > 0 {
		args = append(args, filters.Mints)
		query += fmt.Sprintf(" AND token_address = ANY($%d)", len(args))
	}
	query += " ORDER BY alert_ts ASC, alert_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts by time range: %w", err)
	}
	defer rows.Close()

	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alert rows: %w", err)
	}
	return out, nil
}

// Count returns the total number of stored alerts.
func (s *AlertStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

const alertColumns = `
	SELECT alert_id, token_address, chain, caller_id, alert_ts,
	       alert_price, alert_mcap, chat_id, message_id, raw_payload
	FROM alerts
`

// scanAlert scans a single row into an Alert.
func scanAlert(row pgx.Row) (*domain.Alert, error) {
	var a domain.Alert

	err := row.Scan(
		&a.AlertID,
		&a.TokenAddress,
		&a.Chain,
		&a.CallerID,
		&a.AlertTs,
		&a.AlertPrice,
		&a.AlertMcap,
		&a.ChatID,
		&a.MessageID,
		&a.RawPayload,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

package postgres

import (
	"context"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// CallerStore implements storage.CallerStore using PostgreSQL.
type CallerStore struct {
	pool *Pool
}

// NewCallerStore creates a new CallerStore.
func NewCallerStore(pool *Pool) *CallerStore {
	return &CallerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CallerStore = (*CallerStore)(nil)

// Ensure inserts the caller if absent and returns its row id.
func (s *CallerStore) Ensure(ctx context.Context, c *domain.Caller) (int64, error) {
	if c == nil || c.Handle == "" {
		return 0, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO callers (source, handle)
		VALUES ($1, $2)
		ON CONFLICT (source, handle) DO NOTHING
		RETURNING caller_id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query, c.Source, c.Handle).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNotFoundError(err) {
		return 0, fmt.Errorf("insert caller: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT caller_id FROM callers WHERE source = $1 AND handle = $2`,
		c.Source, c.Handle,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get caller id after conflict: %w", err)
	}
	return id, nil
}

// GetByHandle retrieves a caller. Returns ErrNotFound if absent.
func (s *CallerStore) GetByHandle(ctx context.Context, source, handle string) (*domain.Caller, error) {
	query := `
		SELECT caller_id, source, handle
		FROM callers
		WHERE source = $1 AND handle = $2
	`

	var c domain.Caller
	err := s.pool.QueryRow(ctx, query, source, handle).Scan(&c.CallerID, &c.Source, &c.Handle)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get caller by handle: %w", err)
	}
	return &c, nil
}

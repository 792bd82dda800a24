package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// StrategyStore implements storage.StrategyStore using PostgreSQL.
// Configs are stored as JSONB and decoded on read.
type StrategyStore struct {
	pool *Pool
}

// NewStrategyStore creates a new StrategyStore.
func NewStrategyStore(pool *Pool) *StrategyStore {
	return &StrategyStore{pool: pool}
}

// Compile-time interface check.
var _ storage.StrategyStore = (*StrategyStore)(nil)

// Insert adds a strategy version. Returns ErrDuplicateKey when
// (name, version) exists.
func (s *StrategyStore) Insert(ctx context.Context, name string, version int, cfg *domain.StrategyConfig, active bool) error {
	if name == "" || cfg == nil {
		return storage.ErrInvalidInput
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal strategy config: %w", err)
	}

	query := `
		INSERT INTO strategies (name, version, config, active)
		VALUES ($1, $2, $3, $4)
	`

	if _, err := s.pool.Exec(ctx, query, name, version, raw, active); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

// GetActive retrieves the highest active version for a name.
func (s *StrategyStore) GetActive(ctx context.Context, name string) (*domain.StrategyConfig, error) {
	query := `
		SELECT config
		FROM strategies
		WHERE name = $1 AND active
		ORDER BY version DESC
		LIMIT 1
	`

	var raw []byte
	err := s.pool.QueryRow(ctx, query, name).Scan(&raw)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get active strategy: %w", err)
	}

	var cfg domain.StrategyConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal strategy config: %w", err)
	}
	return &cfg, nil
}

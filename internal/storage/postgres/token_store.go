package postgres

import (
	"context"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Ensure inserts the token if absent and returns its row id. The stored
// address keeps the exact case of the first sighting; a conflicting
// insert never rewrites it.
func (s *TokenStore) Ensure(ctx context.Context, t *domain.Token) (int64, error) {
	if t == nil || t.Address == "" {
		return 0, storage.ErrInvalidInput
	}

	query := `
		INSERT INTO tokens (chain, address, symbol, metadata)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chain, address) DO NOTHING
		RETURNING token_id
	`

	var id int64
	err := s.pool.QueryRow(ctx, query, string(t.Chain), t.Address, t.Symbol, t.Metadata).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !isNotFoundError(err) {
		return 0, fmt.Errorf("insert token: %w", err)
	}

	// Conflict path: the row already exists, fetch its id.
	err = s.pool.QueryRow(ctx,
		`SELECT token_id FROM tokens WHERE chain = $1 AND address = $2`,
		string(t.Chain), t.Address,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("get token id after conflict: %w", err)
	}
	return id, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if absent.
func (s *TokenStore) GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.Token, error) {
	query := `
		SELECT token_id, chain, address, symbol, metadata
		FROM tokens
		WHERE chain = $1 AND address = $2
	`

	var t domain.Token
	err := s.pool.QueryRow(ctx, query, string(chain), address).Scan(
		&t.TokenID, &t.Chain, &t.Address, &t.Symbol, &t.Metadata,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return &t, nil
}

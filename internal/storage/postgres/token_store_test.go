package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

func TestTokenStore_EnsureIdempotent(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(pool)
	ctx := context.Background()

	token := &domain.Token{
		Chain:   domain.ChainSolana,
		Address: "So11111111111111111111111111111111111111112",
		Symbol:  "WSOL",
	}

	id1, err := store.Ensure(ctx, token)
	require.NoError(t, err)
	assert.NotZero(t, id1)

	id2, err := store.Ensure(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestTokenStore_AddressCasePreserved(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(pool)
	ctx := context.Background()

	// Mixed-case EVM address must be stored exactly as first seen.
	address := "0xAbCdEf0123456789aBcDeF0123456789abCDef01"
	chain := domain.EVMChain(1)

	_, err := store.Ensure(ctx, &domain.Token{Chain: chain, Address: address})
	require.NoError(t, err)

	got, err := store.GetByAddress(ctx, chain, address)
	require.NoError(t, err)
	assert.Equal(t, address, got.Address)
}

func TestTokenStore_GetByAddressNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTokenStore(pool)
	ctx := context.Background()

	_, err := store.GetByAddress(ctx, domain.ChainSolana, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCallerStore_Ensure(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCallerStore(pool)
	ctx := context.Background()

	caller := &domain.Caller{Source: "telegram", Handle: "alpha_caller"}

	id1, err := store.Ensure(ctx, caller)
	require.NoError(t, err)

	id2, err := store.Ensure(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := store.GetByHandle(ctx, "telegram", "alpha_caller")
	require.NoError(t, err)
	assert.Equal(t, id1, got.CallerID)

	_, err = store.GetByHandle(ctx, "telegram", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

func testRun(id string, createdAt time.Time) *domain.SimulationRun {
	return &domain.SimulationRun{
		RunID:         id,
		StrategyHash:  "strategy-hash",
		SnapshotHash:  "snapshot-hash",
		ExecModelHash: "exec-hash",
		CostModelHash: "cost-hash",
		RiskModelHash: "risk-hash",
		Seed:          42,
		EngineVersion: "1.0.0",
		Status:        domain.RunPending,
		CreatedAt:     createdAt,
	}
}

func TestRunStore_InsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := testRun("run-001", time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-001")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, run.StrategyHash, got.StrategyHash)
	assert.Equal(t, run.Seed, got.Seed)
	assert.Equal(t, domain.RunPending, got.Status)
	assert.Nil(t, got.CompletedAt)

	// Duplicate run_id.
	err = store.Insert(ctx, run)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestRunStore_UpdateStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := testRun("run-status", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, run))

	// pending -> running
	require.NoError(t, store.UpdateStatus(ctx, "run-status", domain.RunRunning, "", nil))

	// running -> completed, with completion time
	done := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.UpdateStatus(ctx, "run-status", domain.RunCompleted, "", &done))

	got, err := store.GetByID(ctx, "run-status")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(done))

	// completed is terminal
	err = store.UpdateStatus(ctx, "run-status", domain.RunRunning, "", nil)
	assert.ErrorIs(t, err, storage.ErrBadTransition)

	err = store.UpdateStatus(ctx, "missing", domain.RunRunning, "", nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_RecordArtifacts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := testRun("run-artifacts", time.Now().UTC())
	require.NoError(t, store.Insert(ctx, run))

	err := store.RecordArtifacts(ctx, "run-artifacts", "t-id", "m-id", "e-id", "d-id")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, "run-artifacts")
	require.NoError(t, err)
	assert.Equal(t, "t-id", got.TradesID)
	assert.Equal(t, "m-id", got.MetricsID)
	assert.Equal(t, "e-id", got.EventsID)
	assert.Equal(t, "d-id", got.DiagnosticsID)

	err = store.RecordArtifacts(ctx, "missing", "", "", "", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunStore_List(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.Insert(ctx, testRun("run-old", base.Add(-2*time.Hour))))
	require.NoError(t, store.Insert(ctx, testRun("run-mid", base.Add(-1*time.Hour))))
	require.NoError(t, store.Insert(ctx, testRun("run-new", base)))

	require.NoError(t, store.UpdateStatus(ctx, "run-mid", domain.RunRunning, "", nil))

	// Newest first.
	runs, err := store.List(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-new", runs[0].RunID)
	assert.Equal(t, "run-old", runs[2].RunID)

	// Status filter.
	runs, err = store.List(ctx, domain.RunPending, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	// Pagination.
	runs, err = store.List(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-mid", runs[0].RunID)
}

func TestStrategyStore_InsertAndGetActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewStrategyStore(pool)
	ctx := context.Background()

	cfg := &domain.StrategyConfig{
		Name: "ladder",
		Targets: []domain.Target{
			{Multiple: 1.5, SizeFraction: 0.5},
			{Multiple: 2.0, SizeFraction: 0.5},
		},
		Stop:  domain.StopLoss{Mode: domain.StopModeStatic, Pct: 0.3},
		Costs: domain.Costs{TradingFeePct: 0.01},
	}

	require.NoError(t, store.Insert(ctx, "ladder", 1, cfg, true))

	// Duplicate (name, version).
	err := store.Insert(ctx, "ladder", 1, cfg, true)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	// Higher active version wins.
	cfg2 := *cfg
	cfg2.Stop.Pct = 0.2
	require.NoError(t, store.Insert(ctx, "ladder", 2, &cfg2, true))

	got, err := store.GetActive(ctx, "ladder")
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Stop.Pct)
	assert.Len(t, got.Targets, 2)

	_, err = store.GetActive(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

const testMint = "So11111111111111111111111111111111111111112"

func TestCandleStore_UpsertReplaces(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	c := &domain.Candle{
		TokenAddress: testMint, Chain: domain.ChainSolana,
		Ts: 60, IntervalSeconds: 60, Open: 1, High: 1.2, Low: 0.9, Close: 1.1, Volume: 100,
	}
	require.NoError(t, store.UpsertBatch(ctx, []*domain.Candle{c}))

	c2 := *c
	c2.Close = 1.15
	require.NoError(t, store.UpsertBatch(ctx, []*domain.Candle{&c2}))

	got, err := store.GetRange(ctx, testMint, domain.ChainSolana, 60, 0, 120)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.15, got[0].Close)
}

func TestAlertStore_Idempotence(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()

	a := &domain.Alert{
		AlertID: "a1", TokenAddress: testMint, Chain: domain.ChainSolana,
		CallerID: "c1", AlertTs: 1000, ChatID: 7, MessageID: 9,
	}

	inserted, err := store.InsertIdempotent(ctx, a)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertIdempotent(ctx, a)
	require.NoError(t, err)
	assert.False(t, inserted)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAlertStore_TimeRangeOrdering(t *testing.T) {
	store := NewAlertStore()
	ctx := context.Background()

	for i, ts := range []int64{3000, 1000, 2000} {
		a := &domain.Alert{
			AlertID: string(rune('a' + i)), TokenAddress: testMint,
			Chain: domain.ChainSolana, CallerID: "c1", AlertTs: ts,
			ChatID: 7, MessageID: int64(i + 1),
		}
		_, err := store.InsertIdempotent(ctx, a)
		require.NoError(t, err)
	}

	got, err := store.GetByTimeRange(ctx, 0, 5000, domain.SnapshotFilters{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, int64(1000), got[0].AlertTs)
	assert.Equal(t, int64(3000), got[2].AlertTs)
}

func TestRunStore_StatusMachine(t *testing.T) {
	store := NewRunStore()
	ctx := context.Background()

	run := &domain.SimulationRun{RunID: "r1", Status: domain.RunPending, CreatedAt: time.Now()}
	require.NoError(t, store.Insert(ctx, run))

	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)

	require.NoError(t, store.UpdateStatus(ctx, "r1", domain.RunRunning, "", nil))

	err := store.UpdateStatus(ctx, "r1", domain.RunPending, "", nil)
	assert.ErrorIs(t, err, storage.ErrBadTransition)

	done := time.Now()
	require.NoError(t, store.UpdateStatus(ctx, "r1", domain.RunFailed, "boom", &done))

	got, err := store.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
}

func TestTokenStore_EnsureIdempotent(t *testing.T) {
	store := NewTokenStore()
	ctx := context.Background()

	id1, err := store.Ensure(ctx, &domain.Token{Chain: domain.ChainSolana, Address: testMint})
	require.NoError(t, err)

	id2, err := store.Ensure(ctx, &domain.Token{Chain: domain.ChainSolana, Address: testMint})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = store.GetByAddress(ctx, domain.ChainSolana, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSummaryStore_Leaderboard(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "r1", &domain.MetricsSummary{FinalPnl: 0.5, TradeCount: 10}))
	require.NoError(t, store.Upsert(ctx, "r2", &domain.MetricsSummary{FinalPnl: 1.5, TradeCount: 3}))

	rows, err := store.Leaderboard(ctx, storage.LeaderboardQuery{Criteria: "return", Descending: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "r2", rows[0].RunID)

	rows, err = store.Leaderboard(ctx, storage.LeaderboardQuery{Criteria: "return", Descending: true, MinTrades: 5})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "r1", rows[0].RunID)

	_, err = store.Leaderboard(ctx, storage.LeaderboardQuery{Criteria: "bogus"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSummaryStore_LeaderboardProfitFactor(t *testing.T) {
	store := NewSummaryStore()
	ctx := context.Background()

	// r2 has the larger mean return but the weaker gross ratio; the
	// profit_factor ranking must not collapse into avg_return.
	pf1, pf2 := 4.0, 1.5
	require.NoError(t, store.Upsert(ctx, "r1", &domain.MetricsSummary{AvgReturn: 0.1, ProfitFactor: &pf1, TradeCount: 4}))
	require.NoError(t, store.Upsert(ctx, "r2", &domain.MetricsSummary{AvgReturn: 0.9, ProfitFactor: &pf2, TradeCount: 4}))
	require.NoError(t, store.Upsert(ctx, "r3", &domain.MetricsSummary{AvgReturn: 0.5, TradeCount: 4}))

	rows, err := store.Leaderboard(ctx, storage.LeaderboardQuery{Criteria: "profit_factor", Descending: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "r1", rows[0].RunID)
	assert.Equal(t, "r2", rows[1].RunID)
	assert.Equal(t, "r3", rows[2].RunID)
}

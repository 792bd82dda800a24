package experiment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/artifact"
	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/idhash"
	"caller-alert-lab/internal/storage"
	"caller-alert-lab/internal/storage/memory"
)

const testMint = "So11111111111111111111111111111111111111112"

// harness bundles a handler with its in-memory collaborators.
type harness struct {
	handler   *Handler
	artifacts *artifact.Store
	alerts    *memory.AlertStore
	runs      *memory.RunStore
	summaries *memory.SummaryStore
	candles   *memory.CandleStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		artifacts: store,
		alerts:    memory.NewAlertStore(),
		runs:      memory.NewRunStore(),
		summaries: memory.NewSummaryStore(),
		candles:   memory.NewCandleStore(),
	}

	handler, err := NewHandler(Ports{
		Artifacts: store,
		Candles:   candles.NewProvider(h.candles, failingPort{}),
		Alerts:    h.alerts,
		Runs:      h.runs,
		Summaries: h.summaries,
		Clock:     func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	require.NoError(t, err)
	h.handler = handler
	return h
}

// failingPort makes any API fallthrough visible as a hard error; the
// fixtures below pre-seed the candle store with complete windows.
type failingPort struct{}

func (failingPort) FetchCandles(context.Context, string, domain.Chain, int64, int64, int64) (domain.CandleSlice, error) {
	return nil, fmt.Errorf("unexpected api call")
}

func (failingPort) FetchTokenMeta(context.Context, string, domain.Chain) (*domain.TokenMeta, error) {
	return nil, fmt.Errorf("unexpected api call")
}

func (h *harness) putInput(t *testing.T, kind domain.ArtifactKind, v interface{}) string {
	t.Helper()
	data, err := artifact.EncodeJSON(v)
	require.NoError(t, err)
	id, err := h.artifacts.Put(kind, data)
	require.NoError(t, err)
	return id
}

// seedAlert stores one alert and a rising candle window around it.
func (h *harness) seedAlert(t *testing.T, n int, alertTs int64) *domain.Alert {
	t.Helper()
	ctx := context.Background()

	alert := &domain.Alert{
		AlertID:      idhash.AlertID(100, int64(n)),
		TokenAddress: testMint,
		Chain:        domain.ChainSolana,
		CallerID:     "caller-1",
		AlertTs:      alertTs,
		ChatID:       100,
		MessageID:    int64(n),
	}
	inserted, err := h.alerts.InsertIdempotent(ctx, alert)
	require.NoError(t, err)
	require.True(t, inserted)

	var window domain.CandleSlice
	for ts := alertTs; ts <= alertTs+600; ts += 60 {
		v := 1.0 + 0.1*float64((ts-alertTs)/60)
		window = append(window, &domain.Candle{
			TokenAddress:    testMint,
			Chain:           domain.ChainSolana,
			Ts:              ts,
			IntervalSeconds: 60,
			Open:            v,
			High:            v + 0.02,
			Low:             v - 0.02,
			Close:           v,
			Volume:          100,
		})
	}
	require.NoError(t, h.candles.UpsertBatch(ctx, window))
	return alert
}

func (h *harness) definition(t *testing.T, workers int) *Definition {
	t.Helper()

	snapID := h.putInput(t, domain.ArtifactSnapshot, &domain.Snapshot{
		SnapshotID: "snap-1",
		TimeRange:  domain.TimeRange{From: 1_600_000_000, To: 1_600_100_000},
		Sources:    []string{"telegram"},
	})
	stratID := h.putInput(t, domain.ArtifactStrategy, &domain.StrategyConfig{
		Name:    "ladder",
		Targets: []domain.Target{{Multiple: 1.5, SizeFraction: 1.0}},
		Stop:    domain.StopLoss{Mode: domain.StopModeStatic, Pct: 0.10},
	})
	return &Definition{
		SnapshotID: snapID,
		StrategyID: stratID,
		Seed:       42,
		Run: RunConfig{
			PostMinutes: 10,
			Workers:     workers,
			GapPolicy:   string(candles.PolicyStrict),
		},
	}
}

func TestExecute_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		h.seedAlert(t, i, 1_600_000_200+int64(i)*3600)
	}
	def := h.definition(t, 2)

	exp, err := h.handler.Execute(ctx, def)
	require.NoError(t, err)

	assert.Equal(t, domain.RunCompleted, exp.Run.Status)
	assert.NotEmpty(t, exp.ManifestID)
	assert.Equal(t, exp.Run.TradesID, exp.Manifest.Outputs.TradesID)

	// Run row carries the artifact ids and the completed status.
	stored, err := h.runs.GetByID(ctx, exp.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, stored.Status)
	assert.Equal(t, exp.Run.TradesID, stored.TradesID)
	require.NotNil(t, stored.CompletedAt)

	// Summary row exists for the leaderboard.
	sum, err := h.summaries.GetByRunID(ctx, exp.Run.RunID)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TradeCount)
	assert.InDelta(t, 1.0, sum.WinRate, 1e-12)

	// Artifacts decode and cover every alert.
	tradesData, err := h.artifacts.Get(exp.Run.TradesID)
	require.NoError(t, err)
	trades, err := artifact.DecodeTrades(tradesData)
	require.NoError(t, err)
	assert.Len(t, trades, 3)
	for _, tr := range trades {
		assert.Equal(t, string(domain.TerminalTargetsHit), tr.Terminal)
		require.NotEmpty(t, tr.Exits)
		assert.InDelta(t, 1.5, tr.Exits[0].Price, 1e-12)
	}

	eventsData, err := h.artifacts.Get(exp.Run.EventsID)
	require.NoError(t, err)
	events, err := artifact.DecodeEvents(eventsData)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		prev, cur := events[i-1], events[i]
		ordered := prev.AlertID < cur.AlertID ||
			(prev.AlertID == cur.AlertID && prev.Seq < cur.Seq)
		assert.True(t, ordered, "events not merged by (alert_id, seq) at %d", i)
	}
}

func TestExecute_ParallelismDoesNotChangeArtifacts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 8; i++ {
		h.seedAlert(t, i, 1_600_000_200+int64(i)*3600)
	}
	def := h.definition(t, 1)

	serial, err := h.handler.Execute(ctx, def)
	require.NoError(t, err)

	def.Run.Workers = 8
	parallel, err := h.handler.Execute(ctx, def)
	require.NoError(t, err)

	assert.Equal(t, serial.Manifest.Outputs.TradesID, parallel.Manifest.Outputs.TradesID)
	assert.Equal(t, serial.Manifest.Outputs.MetricsID, parallel.Manifest.Outputs.MetricsID)
}

func TestExecute_MissingInputFailsRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAlert(t, 1, 1_600_000_200)

	def := h.definition(t, 1)
	def.StrategyID = "0000000000000000000000000000000000000000000000000000000000000000"

	_, err := h.handler.Execute(ctx, def)
	require.Error(t, err)

	runs, err := h.runs.List(ctx, domain.RunFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].ErrorMessage, "resolve input")
}

func TestExecute_SupersededInputRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAlert(t, 1, 1_600_000_200)

	def := h.definition(t, 1)
	require.NoError(t, h.artifacts.MarkSuperseded(def.StrategyID))

	_, err := h.handler.Execute(ctx, def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "superseded")
}

func TestExecute_ValidatesDefinition(t *testing.T) {
	h := newHarness(t)

	_, err := h.handler.Execute(context.Background(), &Definition{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReplay_ReproducesHashes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		h.seedAlert(t, i, 1_600_000_200+int64(i)*3600)
	}
	def := h.definition(t, 3)

	original, err := h.handler.Execute(ctx, def)
	require.NoError(t, err)

	replayed, report, err := h.handler.Replay(ctx, original.ManifestID)
	require.NoError(t, err)

	assert.True(t, report.Match, "divergences: %+v", report.Divergences)
	assert.Empty(t, report.Divergences)
	assert.NotEqual(t, original.Run.RunID, replayed.Run.RunID)
	assert.Equal(t, original.Manifest.Outputs.TradesID, replayed.Manifest.Outputs.TradesID)
	assert.Equal(t, original.Manifest.Outputs.MetricsID, replayed.Manifest.Outputs.MetricsID)
}

func TestShowAndLeaderboard(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.seedAlert(t, 1, 1_600_000_200)
	def := h.definition(t, 1)

	exp, err := h.handler.Execute(ctx, def)
	require.NoError(t, err)

	detail, err := h.handler.Show(ctx, exp.Run.RunID)
	require.NoError(t, err)
	require.NotNil(t, detail.Summary)
	assert.Equal(t, exp.Run.RunID, detail.Run.RunID)

	rows, err := h.handler.Leaderboard(ctx, leaderboardByReturn())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, exp.Run.RunID, rows[0].RunID)
}

func leaderboardByReturn() storage.LeaderboardQuery {
	return storage.LeaderboardQuery{Criteria: "return", Descending: true, Limit: 10}
}

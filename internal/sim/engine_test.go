package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caller-alert-lab/internal/domain"
)

// series builds a minute-interval window where every candle opens and
// closes at the given value, with high = close+0.02 and low = close-0.02.
func series(closes ...float64) domain.CandleSlice {
	out := make(domain.CandleSlice, len(closes))
	for i, v := range closes {
		out[i] = &domain.Candle{
			TokenAddress:    "So11111111111111111111111111111111111111112",
			Chain:           domain.ChainSolana,
			Ts:              int64(i) * 60,
			IntervalSeconds: 60,
			Open:            v,
			High:            v + 0.02,
			Low:             v - 0.02,
			Close:           v,
			Volume:          100,
		}
	}
	return out
}

func baseStrategy() *domain.StrategyConfig {
	return &domain.StrategyConfig{
		Name: "test",
		Targets: []domain.Target{
			{Multiple: 1.8, SizeFraction: 1.0},
		},
		Stop: domain.StopLoss{Mode: domain.StopModeStatic, Pct: 0.10},
	}
}

func TestSimulate_TargetLadderNetOfFees(t *testing.T) {
	strat := baseStrategy()
	strat.Costs.TradingFeePct = 0.01

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	entry, exit := res.Events[0], res.Events[1]

	assert.Equal(t, domain.EventEntry, entry.Type)
	assert.InDelta(t, 1.00, entry.Price, 1e-12)
	assert.InDelta(t, -0.01, entry.PnlSoFar, 1e-12)

	// The ladder fills at the target price, not at the candle high.
	assert.Equal(t, domain.EventPartialExitTarget, exit.Type)
	assert.InDelta(t, 1.80, exit.Price, 1e-12)
	assert.InDelta(t, 0.0, exit.Remaining, 1e-12)

	assert.Equal(t, domain.TerminalTargetsHit, res.Terminal)
	assert.InDelta(t, 0.028, res.Summary.Fees, 1e-12)
	assert.InDelta(t, 0.772, res.Summary.FinalPnl, 1e-12)
	assert.InDelta(t, 1.80, res.Summary.FinalPrice, 1e-12)
	assert.InDelta(t, 1.0, res.Summary.WinRate, 1e-12)
	assert.Equal(t, 1, res.Summary.TradeCount)
}

func TestSimulate_RiskCapsPositionSize(t *testing.T) {
	strat := baseStrategy()
	strat.Costs.TradingFeePct = 0.01

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8),
		Strategy: strat,
		Risk:     &domain.RiskModel{MaxPositionFraction: 0.5},
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	entry, exit := res.Events[0], res.Events[1]

	// Entry opens at half size and everything downstream scales.
	assert.Equal(t, domain.EventEntry, entry.Type)
	assert.InDelta(t, 0.5, entry.Size, 1e-12)
	assert.InDelta(t, 0.5, exit.Size, 1e-12)
	assert.InDelta(t, 0.0, exit.Remaining, 1e-12)

	assert.Equal(t, domain.TerminalTargetsHit, res.Terminal)
	assert.InDelta(t, 0.014, res.Summary.Fees, 1e-12)
	assert.InDelta(t, 0.386, res.Summary.FinalPnl, 1e-12)
}

func TestSimulate_RejectsInvalidRisk(t *testing.T) {
	_, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1),
		Strategy: baseStrategy(),
		Risk:     &domain.RiskModel{MaxPositionFraction: 1.5},
		Seed:     42,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSimulate_StopFillsAtStopPriceNotLow(t *testing.T) {
	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 0.90, 0.95),
		Strategy: baseStrategy(),
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	stop := res.Events[1]
	assert.Equal(t, domain.EventStopOut, stop.Type)
	// Low touched 0.88 but the fill lands on the 0.90 stop.
	assert.InDelta(t, 0.90, stop.Price, 1e-12)

	assert.Equal(t, domain.TerminalStoppedOut, res.Terminal)
	assert.InDelta(t, -0.10, res.Summary.FinalPnl, 1e-12)
	assert.InDelta(t, 0.90, res.Summary.FinalPrice, 1e-12)
	assert.InDelta(t, 0.0, res.Summary.WinRate, 1e-12)
}

func TestSimulate_TrailingStopTracksPeak(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = nil
	strat.Stop = domain.StopLoss{Mode: domain.StopModeTrailing, Pct: 0.10}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.5, 1.3),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	stop := res.Events[1]
	assert.Equal(t, domain.EventStopOut, stop.Type)
	// Peak high after the second candle is 1.52; the stop rides it.
	assert.InDelta(t, 1.52*0.9, stop.Price, 1e-12)
	assert.Equal(t, domain.TerminalStoppedOut, res.Terminal)
}

func TestSimulate_PhasedStopSwitchesAtBoundary(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = nil
	strat.Stop = domain.StopLoss{
		Mode:            domain.StopModePhased,
		Pct:             0.20,
		PhaseBoundaries: []float64{1.5},
		PhasePcts:       []float64{0.10},
	}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.55, 1.40, 1.30),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	stop := res.Events[1]
	assert.Equal(t, domain.EventStopOut, stop.Type)
	// Boundary 1.5x crossed, so the stop re-anchors at 1.50 with 10%.
	assert.InDelta(t, 1.5*0.9, stop.Price, 1e-12)
}

func TestSimulate_MultipleTargetsOneCandle(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = []domain.Target{
		{Multiple: 1.2, SizeFraction: 0.5},
		{Multiple: 1.4, SizeFraction: 0.5},
	}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.5),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 3)
	assert.InDelta(t, 1.2, res.Events[1].Price, 1e-12)
	assert.InDelta(t, 1.4, res.Events[2].Price, 1e-12)
	assert.InDelta(t, 0.5, res.Events[1].Size, 1e-12)

	assert.Equal(t, domain.TerminalTargetsHit, res.Terminal)
	assert.InDelta(t, 0.3, res.Summary.FinalPnl, 1e-12)
	assert.InDelta(t, 1.4, res.Summary.FinalPrice, 1e-12)
}

func TestSimulate_EmptyTargetsHoldToFinalClose(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = nil
	strat.Stop.Pct = 0.50

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.2, 1.3),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	final := res.Events[1]
	assert.Equal(t, domain.EventFinalClose, final.Type)
	assert.InDelta(t, 1.3, final.Price, 1e-12)

	assert.Equal(t, domain.TerminalFinalClose, res.Terminal)
	assert.InDelta(t, 0.3, res.Summary.FinalPnl, 1e-12)
	assert.InDelta(t, 1.3, res.Summary.FinalPrice, 1e-12)
	assert.InDelta(t, 2.0, res.Summary.HoldingMinutes, 1e-12)
}

func TestSimulate_DelayedEntryOnRebound(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = nil
	strat.Stop.Pct = 0.50
	strat.Entry = &domain.EntryConfig{
		InitialDrawdownPct: -0.10,
		TrailingReboundPct: 0.05,
		MaxWaitMinutes:     60,
	}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 0.92, 0.88, 0.95, 1.0),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.NotEmpty(t, res.Events)
	entry := res.Events[0]
	assert.Equal(t, domain.EventEntry, entry.Type)
	// Drawdown to 0.86 then a close 5% above the local low triggers the
	// fill at that candle's close.
	assert.InDelta(t, 0.95, entry.Price, 1e-12)
	assert.Equal(t, int64(180*1000), entry.EventTime)
}

func TestSimulate_EntryWaitBudgetExpires(t *testing.T) {
	strat := baseStrategy()
	strat.Entry = &domain.EntryConfig{
		InitialDrawdownPct: -0.10,
		TrailingReboundPct: 0.05,
		MaxWaitMinutes:     1,
	}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 0.99, 0.98, 0.97),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TerminalNoEntry, res.Terminal)
	assert.Empty(t, res.Events)
	assert.InDelta(t, 0.0, res.Summary.FinalPrice, 1e-12)
	assert.Equal(t, 0, res.Summary.TradeCount)
}

func TestSimulate_ReentryAfterStop(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = []domain.Target{{Multiple: 1.15, SizeFraction: 1.0}}
	strat.Reentry = &domain.Reentry{
		Enabled:      true,
		MaxReentries: 1,
		SizeFraction: 0.5,
		Condition:    domain.ReentryRebound,
	}

	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 0.90, 0.85, 0.95, 1.1),
		Strategy: strat,
		Seed:     42,
	})
	require.NoError(t, err)

	require.Len(t, res.Events, 5)
	types := make([]domain.EventType, len(res.Events))
	for i, ev := range res.Events {
		types[i] = ev.Type
		assert.Equal(t, i+1, ev.Seq)
	}
	assert.Equal(t, []domain.EventType{
		domain.EventEntry,
		domain.EventStopOut,
		domain.EventReentryArm,
		domain.EventReentryFill,
		domain.EventPartialExitTarget,
	}, types)

	refill := res.Events[3]
	assert.InDelta(t, 0.95, refill.Price, 1e-12)
	assert.InDelta(t, 0.5, refill.Size, 1e-12)

	// The ladder re-anchors at the re-entry price.
	assert.InDelta(t, 0.95*1.15, res.Events[4].Price, 1e-12)

	assert.Equal(t, domain.TerminalTargetsHit, res.Terminal)
	assert.Equal(t, 2, res.Summary.TradeCount)
	assert.Equal(t, 1, res.Summary.ReentryCount)
	assert.InDelta(t, -0.1+(0.95*1.15-0.95)*0.5, res.Summary.FinalPnl, 1e-12)
}

func TestSimulate_SingleCandleNoEntry(t *testing.T) {
	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0),
		Strategy: baseStrategy(),
		Seed:     42,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TerminalNoEntry, res.Terminal)
	assert.Empty(t, res.Events)
}

func TestSimulate_RejectsZeroStopPct(t *testing.T) {
	strat := baseStrategy()
	strat.Stop.Pct = 0

	_, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1),
		Strategy: strat,
		Seed:     42,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSimulate_FailureRateOneNeverEnters(t *testing.T) {
	res, err := Simulate(Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1, 1.2),
		Strategy: baseStrategy(),
		Exec: &domain.ExecutionModel{
			Latency:     domain.Latency{Distribution: domain.LatencyDistFixed},
			FailureRate: 1.0,
		},
		Seed: 42,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.TerminalNoEntry, res.Terminal)
	assert.Empty(t, res.Events)
}

func TestSimulate_Deterministic(t *testing.T) {
	strat := baseStrategy()
	strat.Targets = []domain.Target{
		{Multiple: 1.2, SizeFraction: 0.4},
		{Multiple: 1.5, SizeFraction: 0.6},
	}
	strat.Costs = domain.Costs{
		BaseFee:          0.0001,
		PriorityFeeRange: domain.PriorityFeeRange{Min: 0.00001, Max: 0.0002},
		TradingFeePct:    0.01,
	}
	exec := &domain.ExecutionModel{
		Latency:         domain.Latency{MeanMs: 400, StddevMs: 150, Distribution: domain.LatencyDistNormal},
		Slippage:        domain.SlippageModel{Base: 0.002, VolumeFactor: 0.001},
		FailureRate:     0.1,
		PartialFillRate: 0.2,
		SeedNonce:       7,
	}
	in := Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1, 0.95, 1.25, 1.4, 1.6, 1.3),
		Strategy: strat,
		Exec:     exec,
		Seed:     42,
	}

	first, err := Simulate(in)
	require.NoError(t, err)
	second, err := Simulate(in)
	require.NoError(t, err)

	require.Equal(t, first.Events, second.Events)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Terminal, second.Terminal)
}

func TestSimulate_DifferentSeedsDiverge(t *testing.T) {
	exec := &domain.ExecutionModel{
		Latency: domain.Latency{MeanMs: 400, StddevMs: 150, Distribution: domain.LatencyDistNormal},
	}
	in := Inputs{
		RunID:    "r1",
		AlertID:  "a1",
		Candles:  series(1.0, 1.1, 1.2, 1.3, 1.4, 1.5, 1.6, 1.7, 1.8),
		Strategy: baseStrategy(),
		Exec:     exec,
		Seed:     1,
	}
	first, err := Simulate(in)
	require.NoError(t, err)

	in.Seed = 2
	second, err := Simulate(in)
	require.NoError(t, err)

	// Latency draws come from the seed, so event times differ.
	require.NotEmpty(t, first.Events)
	assert.NotEqual(t, first.Events[0].EventTime, second.Events[0].EventTime)
}

// Package sim runs the per-alert trade simulation. The engine is a
// pure function of its inputs: candles in, events and a summary out,
// with all randomness drawn from a seeded per-alert RNG. No I/O.
package sim

import (
	"fmt"
	"math"
	"math/rand"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/idhash"
	"caller-alert-lab/internal/indicator"
)

// Version tags the engine build recorded on run rows and manifests.
// Bumped whenever event semantics or the RNG draw order change, since
// either breaks replay comparability.
const Version = "1.0.0"

// Machine states, recorded on events as they are produced.
const (
	StateAwaitingEntry   = "awaiting_entry"
	StateInPosition      = "in_position"
	StateArmedForReentry = "armed_for_reentry"
	StateFinalClose      = "final_close"
)

// Inputs is everything one alert simulation depends on. Candles must be
// sorted ascending by Ts and gap-free for the strategy's semantics to
// hold; the candle provider guarantees both in strict mode.
type Inputs struct {
	RunID    string
	AlertID  string
	Candles  domain.CandleSlice
	Strategy *domain.StrategyConfig
	Exec     *domain.ExecutionModel
	Cost     *domain.CostModel
	Risk     *domain.RiskModel
	Seed     int64
}

// Result is one alert's trace and outcome.
type Result struct {
	Events   []*domain.Event
	Summary  domain.MetricsSummary
	Terminal domain.TerminalState
}

// Simulate runs the state machine over the alert's candle window.
// Identical Inputs always produce identical Results.
func Simulate(in Inputs) (*Result, error) {
	if in.Strategy == nil {
		return nil, fmt.Errorf("%w: simulate: strategy required", domain.ErrValidation)
	}
	if err := in.Strategy.Validate(); err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}
	if in.Exec != nil {
		if err := in.Exec.Validate(); err != nil {
			return nil, fmt.Errorf("simulate: %w", err)
		}
	}
	if in.Cost != nil {
		if err := in.Cost.Validate(); err != nil {
			return nil, fmt.Errorf("simulate: %w", err)
		}
	}
	if in.Risk != nil {
		if err := in.Risk.Validate(); err != nil {
			return nil, fmt.Errorf("simulate: %w", err)
		}
	}

	// A single candle gives the entry no history and the exits no room.
	if len(in.Candles) < 2 {
		return &Result{Terminal: domain.TerminalNoEntry}, nil
	}

	var nonce int64
	if in.Exec != nil {
		nonce = in.Exec.SeedNonce
	}
	rng := rand.New(rand.NewSource(idhash.SubSeed(in.Seed, nonce, in.AlertID)))

	base := 1.0
	if in.Risk != nil {
		base = in.Risk.MaxPositionFraction
	}

	e := &engine{
		in:    in,
		ex:    newExecState(rng, in.Strategy, in.Exec, in.Cost, in.Candles),
		base:  base,
		phase: -1,
	}
	return e.run(), nil
}

type engine struct {
	in Inputs
	ex *execState

	// base caps the opened position size per the risk model.
	base float64

	events []*domain.Event
	seq    int

	// open position, valid while size > 0
	entryPrice float64
	openedSize float64
	size       float64
	nextTarget int
	peak       float64
	phase      int

	realized  float64
	fees      float64
	trades    int
	reentries int

	firstEntryIdx int
	lastExitIdx   int
	firstEntryTs  int64
	lastExitTs    int64
	finalPrice    float64
}

func (e *engine) run() *Result {
	candles := e.in.Candles

	entryIdx, entered := e.seekEntry()
	if !entered {
		return &Result{Events: e.events, Terminal: domain.TerminalNoEntry}
	}

	// Immediate entries fill at the open, so the entry candle itself is
	// still evaluated for stops and targets. Close fills start on the
	// next candle.
	start := entryIdx + 1
	if e.in.Strategy.Entry == nil {
		start = entryIdx
	}

	armed := false
	var localLow float64
	terminal := domain.TerminalState("")

	for i := start; i < len(candles) && terminal == ""; i++ {
		c := candles[i]

		if armed {
			if c.Low < localLow {
				localLow = c.Low
			}
			if c.Close >= localLow*(1+e.reboundPct()) && !e.ex.fillFails() {
				e.reenter(i, c)
				armed = false
			}
			continue
		}

		// Stop-loss first. A touched stop fills at the stop price, not
		// at the candle low, and never fails.
		stop := e.stopPrice()
		if c.Low <= stop {
			re := e.in.Strategy.Reentry
			willArm := re != nil && re.Enabled && re.Condition == domain.ReentryRebound && e.reentries < re.MaxReentries
			state := string(domain.TerminalStoppedOut)
			if willArm {
				state = StateArmedForReentry
			}
			e.exit(i, c, e.ex.sellPrice(stop, c), e.size, domain.EventStopOut, state)
			if willArm {
				armed = true
				localLow = c.Low
				e.emit(domain.EventReentryArm, c.Ts*1000, stop, 0, StateArmedForReentry, nil)
			} else {
				terminal = domain.TerminalStoppedOut
			}
			continue
		}

		// Targets next, in ladder order. Several rungs can fill inside
		// one candle.
		for e.nextTarget < len(e.in.Strategy.Targets) {
			t := e.in.Strategy.Targets[e.nextTarget]
			tp := e.entryPrice * t.Multiple
			if c.High < tp {
				break
			}
			if e.ex.fillFails() {
				break // retry this rung on the next candle
			}
			s := t.SizeFraction * e.openedSize
			if e.ex.partialFill() {
				s /= 2
			}
			if s > e.size {
				s = e.size
			}
			e.exit(i, c, e.ex.sellPrice(tp, c), s, domain.EventPartialExitTarget, StateInPosition)
			e.nextTarget++
			if e.size <= 1e-12 {
				terminal = domain.TerminalTargetsHit
				break
			}
		}
		if terminal != "" {
			continue
		}

		// Stop anchors move only after the candle has been evaluated.
		if c.High > e.peak {
			e.peak = c.High
		}
		e.advancePhase()
	}

	if terminal == "" {
		if armed {
			// Flat at window end; the last exit was the stop.
			terminal = domain.TerminalStoppedOut
		} else {
			last := candles[len(candles)-1]
			e.exit(len(candles)-1, last, e.ex.sellPrice(last.Close, last), e.size, domain.EventFinalClose, StateFinalClose)
			terminal = domain.TerminalFinalClose
		}
	}

	return &Result{
		Events:   e.events,
		Summary:  e.summary(),
		Terminal: terminal,
	}
}

// seekEntry scans for the entry fill. With no entry config the position
// opens at the first candle's open; otherwise it waits for the
// configured drawdown from the alert price and a rebound off the local
// low, bounded by the wait budget.
func (e *engine) seekEntry() (idx int, ok bool) {
	candles := e.in.Candles
	cfg := e.in.Strategy.Entry

	if cfg == nil {
		for i, c := range candles {
			if e.ex.fillFails() {
				continue
			}
			e.enter(i, c, e.ex.buyPrice(c.Open, c), e.base)
			return i, true
		}
		return 0, false
	}

	ref := candles[0].Open
	trigger := ref * (1 + cfg.InitialDrawdownPct)
	deadline := candles[0].Ts + cfg.MaxWaitMinutes*60
	localLow := math.Inf(1)
	drawdownHit := false

	for i, c := range candles {
		if c.Ts > deadline {
			return 0, false
		}
		if c.Low < localLow {
			localLow = c.Low
		}
		if !drawdownHit && localLow <= trigger {
			drawdownHit = true
		}
		if !drawdownHit || i < cfg.RequiredHistoryCandles {
			continue
		}
		if c.Close >= localLow*(1+cfg.TrailingReboundPct) {
			if e.ex.fillFails() {
				continue
			}
			e.enter(i, c, e.ex.buyPrice(c.Close, c), e.base)
			return i, true
		}
	}
	return 0, false
}

func (e *engine) enter(i int, c *domain.Candle, price, size float64) {
	e.entryPrice = price
	e.openedSize = size
	e.size = size
	e.nextTarget = 0
	e.peak = price
	e.phase = -1
	e.trades++

	if e.trades == 1 {
		e.firstEntryIdx = i
		e.firstEntryTs = c.Ts
	}

	fee := e.ex.tradingFee(price, size) + e.ex.flatFee()
	e.fees += fee
	e.realized -= fee

	typ := domain.EventEntry
	if e.trades > 1 {
		typ = domain.EventReentryFill
	}
	e.emit(typ, c.Ts*1000+int64(e.ex.latencyMs()), price, size, StateInPosition, e.entryIndicators(i))
}

func (e *engine) reenter(i int, c *domain.Candle) {
	e.reentries++
	size := e.base
	if re := e.in.Strategy.Reentry; re != nil {
		size = re.SizeFraction * e.base
	}
	e.enter(i, c, e.ex.buyPrice(c.Close, c), size)
}

// exit closes size units at the given fill price and books the
// realised P&L and fees.
func (e *engine) exit(i int, c *domain.Candle, price, size float64, typ domain.EventType, state string) {
	fee := e.ex.tradingFee(price, size) + e.ex.flatFee()
	e.fees += fee
	e.realized += (price-e.entryPrice)*size - fee
	e.size -= size
	if e.size < 0 {
		e.size = 0
	}

	e.lastExitIdx = i
	e.lastExitTs = c.Ts
	e.finalPrice = price

	e.emit(typ, c.Ts*1000+int64(e.ex.latencyMs()), price, size, state, nil)
}

func (e *engine) emit(typ domain.EventType, eventTime int64, price, size float64, state string, indicators map[string]float64) {
	e.seq++
	e.events = append(e.events, &domain.Event{
		RunID:      e.in.RunID,
		AlertID:    e.in.AlertID,
		Seq:        e.seq,
		EventTime:  eventTime,
		Type:       typ,
		Price:      price,
		Size:       size,
		Remaining:  e.size,
		PnlSoFar:   e.realized,
		Indicators: indicators,
		State:      state,
	})
}

// stopPrice derives the protective exit level from the current anchor.
func (e *engine) stopPrice() float64 {
	s := e.in.Strategy.Stop
	switch s.Mode {
	case domain.StopModeTrailing:
		return e.peak * (1 - s.Pct)
	case domain.StopModePhased:
		if e.phase >= 0 {
			anchor := e.entryPrice * s.PhaseBoundaries[e.phase]
			return anchor * (1 - s.PhasePcts[e.phase])
		}
		return e.entryPrice * (1 - s.Pct)
	default:
		return e.entryPrice * (1 - s.Pct)
	}
}

func (e *engine) advancePhase() {
	s := e.in.Strategy.Stop
	if s.Mode != domain.StopModePhased || e.entryPrice <= 0 {
		return
	}
	multiple := e.peak / e.entryPrice
	for e.phase+1 < len(s.PhaseBoundaries) && multiple >= s.PhaseBoundaries[e.phase+1] {
		e.phase++
	}
}

// reboundPct is the rebound threshold used when armed for re-entry.
// It reuses the entry's trailing rebound; strategies without an entry
// config fall back to the stop percentage.
func (e *engine) reboundPct() float64 {
	if cfg := e.in.Strategy.Entry; cfg != nil {
		return cfg.TrailingReboundPct
	}
	return e.in.Strategy.Stop.Pct
}

// entryIndicators attaches the warm-up SMA when the entry config asked
// for history.
func (e *engine) entryIndicators(i int) map[string]float64 {
	cfg := e.in.Strategy.Entry
	if cfg == nil || cfg.RequiredHistoryCandles < 1 {
		return nil
	}
	sma := indicator.SMA(e.in.Candles[:i+1], cfg.RequiredHistoryCandles)
	if v := sma[i]; v.Valid {
		return map[string]float64{"sma": v.V}
	}
	return nil
}

func (e *engine) summary() domain.MetricsSummary {
	s := domain.MetricsSummary{
		FinalPnl:     e.realized,
		FinalPrice:   e.finalPrice,
		TradeCount:   e.trades,
		ReentryCount: e.reentries,
		Fees:         e.fees,
	}
	if e.trades == 0 {
		return s
	}
	if e.realized > 0 {
		s.WinRate = 1
	}
	s.AvgReturn = e.realized / float64(e.trades)
	s.HoldingMinutes = float64(e.lastExitTs-e.firstEntryTs) / 60
	s.MaxDrawdown = indicator.MaxDrawdown(e.in.Candles[e.firstEntryIdx : e.lastExitIdx+1])
	return s
}

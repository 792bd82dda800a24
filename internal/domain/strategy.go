package domain

import "fmt"

// Stop-loss modes.
const (
	StopModeStatic   = "static"
	StopModeTrailing = "trailing"
	StopModePhased   = "phased"
)

// Re-entry conditions.
const (
	// ReentryRebound arms on a new local low after the stop-out and
	// fills when price rebounds by the entry's trailing rebound pct.
	ReentryRebound = "rebound"
)

// EntryConfig controls how a position is opened. A nil EntryConfig on
// StrategyConfig means immediate entry at the first candle's open.
type EntryConfig struct {
	InitialDrawdownPct     float64 `json:"initial_drawdown_pct"`
	TrailingReboundPct     float64 `json:"trailing_rebound_pct"`
	MaxWaitMinutes         int64   `json:"max_wait_minutes"`
	RequiredHistoryCandles int     `json:"required_history_candles"`
}

// Target is one rung of the profit ladder. SizeFraction is a fraction
// of the original position, not of the remainder.
type Target struct {
	Multiple     float64 `json:"multiple"`
	SizeFraction float64 `json:"size_fraction_of_position"`
}

// StopLoss configures the protective exit.
// PhaseBoundaries (phased mode) are ascending price multiples; crossing
// boundary i switches the stop percentage to PhasePcts[i].
type StopLoss struct {
	Mode            string    `json:"mode"`
	Pct             float64   `json:"pct"`
	PhaseBoundaries []float64 `json:"phase_boundaries,omitempty"`
	PhasePcts       []float64 `json:"phase_pcts,omitempty"`
}

// Reentry configures post-stop re-entries.
type Reentry struct {
	Enabled      bool    `json:"enabled"`
	MaxReentries int     `json:"max_reentries"`
	SizeFraction float64 `json:"size_fraction"`
	Condition    string  `json:"condition"`
}

// PriorityFeeRange bounds the per-fill flat priority fee; the charged
// value is drawn uniformly from [Min, Max] by the seeded RNG.
type PriorityFeeRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Costs is the fee/slippage leg of a strategy config.
type Costs struct {
	BaseFee          float64          `json:"base_fee"`
	PriorityFeeRange PriorityFeeRange `json:"priority_fee_range"`
	TradingFeePct    float64          `json:"trading_fee_pct"`
	SlippageModel    SlippageModel    `json:"slippage_model"`
}

// SlippageModel scales adverse fill adjustment by volume z-score.
type SlippageModel struct {
	Base         float64 `json:"base"`
	VolumeFactor float64 `json:"volume_factor"`
}

// StrategyConfig is the declarative entry/exit/stop/re-entry tree.
// It is content-hashed after canonical serialisation; two semantically
// equal configs must produce the same hash.
type StrategyConfig struct {
	Name    string       `json:"name"`
	Entry   *EntryConfig `json:"entry,omitempty"` // nil = immediate
	Targets []Target     `json:"targets"`
	Stop    StopLoss     `json:"stop_loss"`
	Reentry *Reentry     `json:"reentry,omitempty"`
	Costs   Costs        `json:"costs"`
}

// Validate rejects configs that would make a simulation ill-defined.
// Called before any simulation begins; the engine assumes a valid tree.
func (c *StrategyConfig) Validate() error {
	if c.Entry != nil {
		if c.Entry.InitialDrawdownPct >= 0 {
			return fmt.Errorf("%w: strategy.entry.initial_drawdown_pct: must be negative, got %g", ErrValidation, c.Entry.InitialDrawdownPct)
		}
		if c.Entry.TrailingReboundPct <= 0 {
			return fmt.Errorf("%w: strategy.entry.trailing_rebound_pct: must be positive", ErrValidation)
		}
		if c.Entry.MaxWaitMinutes <= 0 {
			return fmt.Errorf("%w: strategy.entry.max_wait_minutes: must be positive", ErrValidation)
		}
		if c.Entry.RequiredHistoryCandles < 0 {
			return fmt.Errorf("%w: strategy.entry.required_history_candles: negative", ErrValidation)
		}
	}

	var fractions float64
	lastMultiple := 1.0
	for i, t := range c.Targets {
		if t.Multiple <= lastMultiple {
			return fmt.Errorf("%w: strategy.targets[%d].multiple: %g not strictly above %g", ErrValidation, i, t.Multiple, lastMultiple)
		}
		if t.SizeFraction <= 0 || t.SizeFraction > 1 {
			return fmt.Errorf("%w: strategy.targets[%d].size_fraction_of_position: %g outside (0, 1]", ErrValidation, i, t.SizeFraction)
		}
		fractions += t.SizeFraction
		lastMultiple = t.Multiple
	}
	if fractions > 1+1e-9 {
		return fmt.Errorf("%w: strategy.targets: size fractions sum to %g, exceeds 1.0", ErrValidation, fractions)
	}

	switch c.Stop.Mode {
	case StopModeStatic, StopModeTrailing:
		if c.Stop.Pct <= 0 || c.Stop.Pct >= 1 {
			return fmt.Errorf("%w: strategy.stop_loss.pct: %g outside (0, 1)", ErrValidation, c.Stop.Pct)
		}
	case StopModePhased:
		if c.Stop.Pct <= 0 || c.Stop.Pct >= 1 {
			return fmt.Errorf("%w: strategy.stop_loss.pct: %g outside (0, 1)", ErrValidation, c.Stop.Pct)
		}
		if len(c.Stop.PhaseBoundaries) == 0 {
			return fmt.Errorf("%w: strategy.stop_loss.phase_boundaries: required for phased mode", ErrValidation)
		}
		if len(c.Stop.PhasePcts) != len(c.Stop.PhaseBoundaries) {
			return fmt.Errorf("%w: strategy.stop_loss.phase_pcts: want %d entries, got %d", ErrValidation, len(c.Stop.PhaseBoundaries), len(c.Stop.PhasePcts))
		}
		prev := 1.0
		for i, b := range c.Stop.PhaseBoundaries {
			if b <= prev {
				return fmt.Errorf("%w: strategy.stop_loss.phase_boundaries[%d]: %g not ascending above %g", ErrValidation, i, b, prev)
			}
			if p := c.Stop.PhasePcts[i]; p <= 0 || p >= 1 {
				return fmt.Errorf("%w: strategy.stop_loss.phase_pcts[%d]: %g outside (0, 1)", ErrValidation, i, p)
			}
			prev = b
		}
	default:
		return fmt.Errorf("%w: strategy.stop_loss.mode: %q not one of static, trailing, phased", ErrValidation, c.Stop.Mode)
	}

	if c.Reentry != nil && c.Reentry.Enabled {
		if c.Reentry.MaxReentries <= 0 {
			return fmt.Errorf("%w: strategy.reentry.max_reentries: must be positive when enabled", ErrValidation)
		}
		if c.Reentry.SizeFraction <= 0 || c.Reentry.SizeFraction > 1 {
			return fmt.Errorf("%w: strategy.reentry.size_fraction: %g outside (0, 1]", ErrValidation, c.Reentry.SizeFraction)
		}
		if c.Reentry.Condition != ReentryRebound {
			return fmt.Errorf("%w: strategy.reentry.condition: %q unsupported", ErrValidation, c.Reentry.Condition)
		}
	}

	if c.Costs.TradingFeePct < 0 || c.Costs.TradingFeePct >= 1 {
		return fmt.Errorf("%w: strategy.costs.trading_fee_pct: %g outside [0, 1)", ErrValidation, c.Costs.TradingFeePct)
	}
	if c.Costs.BaseFee < 0 {
		return fmt.Errorf("%w: strategy.costs.base_fee: negative", ErrValidation)
	}
	if r := c.Costs.PriorityFeeRange; r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%w: strategy.costs.priority_fee_range: [%g, %g] ill-formed", ErrValidation, r.Min, r.Max)
	}
	if c.Costs.SlippageModel.Base < 0 || c.Costs.SlippageModel.VolumeFactor < 0 {
		return fmt.Errorf("%w: strategy.costs.slippage_model: negative coefficients", ErrValidation)
	}
	return nil
}

// TotalTargetFraction is the sum of ladder size fractions.
func (c *StrategyConfig) TotalTargetFraction() float64 {
	var sum float64
	for _, t := range c.Targets {
		sum += t.SizeFraction
	}
	return sum
}

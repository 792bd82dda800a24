package domain

import "fmt"

// Latency distributions for the execution model.
const (
	LatencyDistNormal = "normal"
	LatencyDistFixed  = "fixed"
)

// Latency is the simulated confirmation delay of a fill.
type Latency struct {
	MeanMs       float64 `json:"mean_ms"`
	StddevMs     float64 `json:"stddev_ms"`
	Distribution string  `json:"distribution"`
}

// ExecutionModel is the simulation-only latency/slippage/failure model.
// SeedNonce is folded into the per-alert sub-seed so two runs sharing a
// seed but different execution models draw independent streams.
type ExecutionModel struct {
	Latency         Latency       `json:"latency"`
	Slippage        SlippageModel `json:"slippage"`
	FailureRate     float64       `json:"failure_rate"`
	PartialFillRate float64       `json:"partial_fill_rate"`
	SeedNonce       int64         `json:"seed_nonce"`
}

// Validate checks model parameter ranges.
func (m *ExecutionModel) Validate() error {
	switch m.Latency.Distribution {
	case LatencyDistNormal, LatencyDistFixed:
	default:
		return fmt.Errorf("%w: exec_model.latency.distribution: %q unsupported", ErrValidation, m.Latency.Distribution)
	}
	if m.Latency.MeanMs < 0 || m.Latency.StddevMs < 0 {
		return fmt.Errorf("%w: exec_model.latency: negative parameters", ErrValidation)
	}
	if m.FailureRate < 0 || m.FailureRate > 1 {
		return fmt.Errorf("%w: exec_model.failure_rate: %g outside [0, 1]", ErrValidation, m.FailureRate)
	}
	if m.PartialFillRate < 0 || m.PartialFillRate > 1 {
		return fmt.Errorf("%w: exec_model.partial_fill_rate: %g outside [0, 1]", ErrValidation, m.PartialFillRate)
	}
	return nil
}

// CostModel carries run-level overrides for flat fees. When present it
// supersedes the strategy's Costs for base and priority fees.
type CostModel struct {
	BaseFee          float64          `json:"base_fee"`
	PriorityFeeRange PriorityFeeRange `json:"priority_fee_range"`
	TradingFeePct    float64          `json:"trading_fee_pct"`
}

// Validate checks fee ranges.
func (m *CostModel) Validate() error {
	if m.BaseFee < 0 {
		return fmt.Errorf("%w: cost_model.base_fee: negative", ErrValidation)
	}
	if m.TradingFeePct < 0 || m.TradingFeePct >= 1 {
		return fmt.Errorf("%w: cost_model.trading_fee_pct: %g outside [0, 1)", ErrValidation, m.TradingFeePct)
	}
	if r := m.PriorityFeeRange; r.Min < 0 || r.Max < r.Min {
		return fmt.Errorf("%w: cost_model.priority_fee_range: [%g, %g] ill-formed", ErrValidation, r.Min, r.Max)
	}
	return nil
}

// RiskModel bounds per-alert exposure within a run.
type RiskModel struct {
	MaxPositionFraction float64 `json:"max_position_fraction"`
	MaxConcurrentAlerts int     `json:"max_concurrent_alerts"`
}

// Validate checks risk bounds.
func (m *RiskModel) Validate() error {
	if m.MaxPositionFraction <= 0 || m.MaxPositionFraction > 1 {
		return fmt.Errorf("%w: risk_model.max_position_fraction: %g outside (0, 1]", ErrValidation, m.MaxPositionFraction)
	}
	if m.MaxConcurrentAlerts < 0 {
		return fmt.Errorf("%w: risk_model.max_concurrent_alerts: negative", ErrValidation)
	}
	return nil
}

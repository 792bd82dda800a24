package experiment

import (
	"fmt"

	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
)

// Run config defaults.
const (
	DefaultIntervalSeconds = 60
	DefaultWorkers         = 4
)

// RunConfig controls the per-alert candle window and scheduling. It is
// recorded in the manifest so a replay uses the same windows.
type RunConfig struct {
	PreMinutes      int64  `json:"pre_minutes"`
	PostMinutes     int64  `json:"post_minutes"`
	IntervalSeconds int64  `json:"interval_seconds"`
	Workers         int    `json:"workers"`
	GapPolicy       string `json:"gap_policy"`
}

func (c RunConfig) withDefaults() RunConfig {
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = DefaultIntervalSeconds
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.GapPolicy == "" {
		c.GapPolicy = string(candles.PolicyBestEffort)
	}
	return c
}

// Validate checks the run config after defaults are applied.
func (c RunConfig) Validate() error {
	if c.PreMinutes < 0 {
		return fmt.Errorf("%w: run.pre_minutes: negative", domain.ErrValidation)
	}
	if c.PostMinutes <= 0 {
		return fmt.Errorf("%w: run.post_minutes: must be positive", domain.ErrValidation)
	}
	switch candles.GapPolicy(c.GapPolicy) {
	case candles.PolicyStrict, candles.PolicyBestEffort:
	default:
		return fmt.Errorf("%w: run.gap_policy: %q not one of strict, best_effort", domain.ErrValidation, c.GapPolicy)
	}
	return nil
}

// Definition names a run's inputs: artifact ids for the snapshot,
// strategy and models, the seed and the run config. Everything the run
// depends on is reachable from here, which is what makes replay exact.
type Definition struct {
	SnapshotID  string    `json:"snapshot_id"`
	StrategyID  string    `json:"strategy_id"`
	ExecModelID string    `json:"exec_model_id,omitempty"`
	CostModelID string    `json:"cost_model_id,omitempty"`
	RiskModelID string    `json:"risk_model_id,omitempty"`
	Seed        int64     `json:"seed"`
	Run         RunConfig `json:"run"`
}

// Validate checks required references and the run config.
func (d *Definition) Validate() error {
	if d.SnapshotID == "" {
		return fmt.Errorf("%w: definition.snapshot_id: empty", domain.ErrValidation)
	}
	if d.StrategyID == "" {
		return fmt.Errorf("%w: definition.strategy_id: empty", domain.ErrValidation)
	}
	return d.Run.withDefaults().Validate()
}

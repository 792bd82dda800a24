package domain

import "time"

// RunStatus is the simulation-run state machine.
type RunStatus string

// Run statuses. Transitions: pending -> running -> completed | failed.
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SimulationRun is one execution of the experiment handler. Runs are
// never deleted; re-running with changed inputs creates a new row.
type SimulationRun struct {
	RunID         string     `json:"run_id"`
	StrategyHash  string     `json:"strategy_hash"`
	SnapshotHash  string     `json:"snapshot_hash"`
	ExecModelHash string     `json:"exec_model_hash"`
	CostModelHash string     `json:"cost_model_hash"`
	RiskModelHash string     `json:"risk_model_hash"`
	Seed          int64      `json:"seed"`
	EngineVersion string     `json:"engine_version"`
	Status        RunStatus  `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	TradesID      string     `json:"trades_id,omitempty"`
	MetricsID     string     `json:"metrics_id,omitempty"`
	EventsID      string     `json:"events_id,omitempty"`
	DiagnosticsID string     `json:"diagnostics_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// CanTransition reports whether the status machine allows from -> to.
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunPending:
		return to == RunRunning || to == RunFailed
	case RunRunning:
		return to == RunCompleted || to == RunFailed
	default:
		return false
	}
}

package domain

// EventType enumerates simulation state transitions.
type EventType string

// Event types, in the order they may legally occur within one alert.
const (
	EventEntry             EventType = "entry"
	EventPartialExitTarget EventType = "partial_exit_target"
	EventStopOut           EventType = "stop_out"
	EventReentryArm        EventType = "reentry_arm"
	EventReentryFill       EventType = "reentry_fill"
	EventFinalClose        EventType = "final_close"
)

// Event is one entry in a run's trace. Seq is strictly increasing per
// (RunID, AlertID) and follows candle order. PnlSoFar is realised P&L
// of completed exits net of all costs to date; open position value is
// not included.
type Event struct {
	RunID      string             `json:"run_id"`
	AlertID    string             `json:"alert_id"`
	Seq        int                `json:"seq"`
	EventTime  int64              `json:"event_time"`
	Type       EventType          `json:"event_type"`
	Price      float64            `json:"price"`
	Size       float64            `json:"size"`
	Remaining  float64            `json:"remaining"`
	PnlSoFar   float64            `json:"pnl_so_far"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
	State      string             `json:"state,omitempty"`
}

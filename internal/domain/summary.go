package domain

// TerminalState classifies how an alert's simulation ended.
type TerminalState string

// Terminal states.
const (
	TerminalNoEntry    TerminalState = "no_entry"
	TerminalStoppedOut TerminalState = "stopped_out"
	TerminalTargetsHit TerminalState = "targets_hit"
	TerminalFinalClose TerminalState = "final_close"
)

// MetricsSummary aggregates outcomes for a run or a single alert.
// FinalPrice is the actual price of the last exit event, never the
// last candle's close unless the position was held to the window end.
type MetricsSummary struct {
	FinalPnl       float64  `json:"final_pnl"`
	FinalPrice     float64  `json:"final_price"`
	MaxDrawdown    float64  `json:"max_drawdown"`
	WinRate        float64  `json:"win_rate"`
	TradeCount     int      `json:"trade_count"`
	AvgReturn      float64  `json:"avg_return"`
	ReentryCount   int      `json:"reentry_count"`
	HoldingMinutes float64  `json:"holding_minutes"`
	Fees           float64  `json:"fees"`
	ProfitFactor   *float64 `json:"profit_factor,omitempty"`
	Sharpe         *float64 `json:"sharpe,omitempty"`
	Sortino        *float64 `json:"sortino,omitempty"`
}

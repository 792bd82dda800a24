package artifact

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"

	"caller-alert-lab/internal/canon"
	"caller-alert-lab/internal/domain"
)

// ManifestInputs references the input artifacts of a run by id.
type ManifestInputs struct {
	Snapshot string `json:"snapshot"`
	Strategy string `json:"strategy"`
	Exec     string `json:"exec,omitempty"`
	Cost     string `json:"cost,omitempty"`
	Risk     string `json:"risk,omitempty"`
}

// ManifestOutputs references the output artifacts of a run by id.
type ManifestOutputs struct {
	TradesID      string `json:"trades_id"`
	MetricsID     string `json:"metrics_id"`
	EventsID      string `json:"events_id"`
	DiagnosticsID string `json:"diagnostics_id,omitempty"`
}

// Manifest pins everything needed to replay a run. Replaying the
// manifest must reproduce the trades and metrics ids recorded in
// Outputs.
type Manifest struct {
	RunID         string          `json:"run_id"`
	EngineVersion string          `json:"engine_version"`
	Inputs        ManifestInputs  `json:"inputs"`
	Seed          int64           `json:"seed"`
	CreatedAt     string          `json:"created_at"`
	RunConfig     json.RawMessage `json:"run_config,omitempty"`
	Outputs       ManifestOutputs `json:"outputs"`
}

// TradeExit is one exit leg of a trade.
type TradeExit struct {
	Ts     int64   `json:"ts"`
	Price  float64 `json:"price"`
	Size   float64 `json:"size"`
	Reason string  `json:"reason"`
}

// Trade is the per-alert record in the trades artifact: one entry and
// its exits collapsed from the event trace.
type Trade struct {
	AlertID         string      `json:"alert_id"`
	EntryTs         int64       `json:"entry_ts"`
	EntryPrice      float64     `json:"entry_price"`
	Exits           []TradeExit `json:"exits"`
	Pnl             float64     `json:"pnl"`
	Fees            float64     `json:"fees"`
	DurationMinutes float64     `json:"duration_minutes"`
	Terminal        string      `json:"terminal"`
}

// Metrics is the metrics artifact: the run aggregate plus per-alert
// summaries keyed by alert id.
type Metrics struct {
	Run      domain.MetricsSummary            `json:"run"`
	PerAlert map[string]domain.MetricsSummary `json:"per_alert"`
}

// GapNote is one skipped gap recorded in diagnostics.
type GapNote struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Diagnostics collects non-fatal observations of a run: gaps skipped
// in best-effort mode, how each alert's market cap was resolved and
// mints whose address is not on the ed25519 curve.
type Diagnostics struct {
	Warnings      []string             `json:"warnings,omitempty"`
	SkippedGaps   map[string][]GapNote `json:"skipped_gaps,omitempty"`
	McapSources   map[string]string    `json:"mcap_sources,omitempty"`
	OffCurveMints []string             `json:"off_curve_mints,omitempty"`
}

// EncodeJSON canonicalises any JSON-serialisable artifact body.
func EncodeJSON(v interface{}) ([]byte, error) {
	data, err := canon.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("artifact: canonicalise: %w", err)
	}
	return data, nil
}

// EncodeEvents emits the events artifact: one canonical JSON object
// per line, in the order given. Callers sort by (alert_id, seq) first
// so the bytes are independent of worker scheduling.
func EncodeEvents(events []*domain.Event) ([]byte, error) {
	var buf bytes.Buffer
	for i, ev := range events {
		line, err := canon.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("artifact: canonicalise event %d: %w", i, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// DecodeEvents parses an events artifact back into its trace.
func DecodeEvents(data []byte) ([]*domain.Event, error) {
	var out []*domain.Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("artifact: decode event line %d: %w", len(out)+1, err)
		}
		out = append(out, &ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("artifact: scan events: %w", err)
	}
	return out, nil
}

// DecodeManifest parses a manifest artifact.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("artifact: decode manifest: %w", err)
	}
	return &m, nil
}

// DecodeMetrics parses a metrics artifact.
func DecodeMetrics(data []byte) (*Metrics, error) {
	var m Metrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("artifact: decode metrics: %w", err)
	}
	return &m, nil
}

// DecodeTrades parses a trades artifact.
func DecodeTrades(data []byte) ([]Trade, error) {
	var out []Trade
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("artifact: decode trades: %w", err)
	}
	return out, nil
}

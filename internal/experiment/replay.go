package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"caller-alert-lab/internal/artifact"
	"caller-alert-lab/internal/domain"
)

// Divergence reports one artifact whose replayed content hash differs
// from the manifest's record.
type Divergence struct {
	Artifact string   `json:"artifact"`
	Want     string   `json:"want"`
	Got      string   `json:"got"`
	Fields   []string `json:"fields,omitempty"`
}

// ReplayReport is the verification outcome of a replay.
type ReplayReport struct {
	ManifestID  string       `json:"manifest_id"`
	RunID       string       `json:"run_id"`
	Match       bool         `json:"match"`
	Divergences []Divergence `json:"divergences,omitempty"`
}

// Replay re-executes the run a manifest describes with identical
// inputs and verifies the trades and metrics content hashes match the
// manifest's record. A mismatch means the engine or the stored data
// drifted since the original run.
func (h *Handler) Replay(ctx context.Context, manifestID string) (*Experiment, *ReplayReport, error) {
	data, err := h.ports.Artifacts.Get(manifestID)
	if err != nil {
		return nil, nil, fmt.Errorf("load manifest: %w", err)
	}
	manifest, err := artifact.DecodeManifest(data)
	if err != nil {
		return nil, nil, err
	}
	if len(manifest.RunConfig) == 0 {
		return nil, nil, fmt.Errorf("%w: manifest %s carries no run config", domain.ErrValidation, manifestID)
	}
	var cfg RunConfig
	if err := json.Unmarshal(manifest.RunConfig, &cfg); err != nil {
		return nil, nil, fmt.Errorf("decode manifest run config: %w", err)
	}

	def := &Definition{
		SnapshotID:  manifest.Inputs.Snapshot,
		StrategyID:  manifest.Inputs.Strategy,
		ExecModelID: manifest.Inputs.Exec,
		CostModelID: manifest.Inputs.Cost,
		RiskModelID: manifest.Inputs.Risk,
		Seed:        manifest.Seed,
		Run:         cfg,
	}
	exp, err := h.Execute(ctx, def)
	if err != nil {
		return nil, nil, fmt.Errorf("replay execute: %w", err)
	}

	report := &ReplayReport{
		ManifestID: manifestID,
		RunID:      exp.Run.RunID,
		Match:      true,
	}
	if got := exp.Manifest.Outputs.TradesID; got != manifest.Outputs.TradesID {
		report.Match = false
		report.Divergences = append(report.Divergences, Divergence{
			Artifact: string(domain.ArtifactTrades),
			Want:     manifest.Outputs.TradesID,
			Got:      got,
		})
	}
	if got := exp.Manifest.Outputs.MetricsID; got != manifest.Outputs.MetricsID {
		d := Divergence{
			Artifact: string(domain.ArtifactMetrics),
			Want:     manifest.Outputs.MetricsID,
			Got:      got,
		}
		d.Fields = h.metricsDiff(manifest.Outputs.MetricsID, got)
		report.Match = false
		report.Divergences = append(report.Divergences, d)
	}
	return exp, report, nil
}

// metricsDiff names the run-level summary fields that changed between
// two metrics artifacts. Best effort; an unreadable side yields nil.
func (h *Handler) metricsDiff(wantID, gotID string) []string {
	want, err1 := h.loadMetrics(wantID)
	got, err2 := h.loadMetrics(gotID)
	if err1 != nil || err2 != nil {
		return nil
	}

	var fields []string
	wv := reflect.ValueOf(want.Run)
	gv := reflect.ValueOf(got.Run)
	for i := 0; i < wv.NumField(); i++ {
		if !reflect.DeepEqual(wv.Field(i).Interface(), gv.Field(i).Interface()) {
			tag := wv.Type().Field(i).Tag.Get("json")
			fields = append(fields, strings.Split(tag, ",")[0])
		}
	}
	return fields
}

func (h *Handler) loadMetrics(id string) (*artifact.Metrics, error) {
	data, err := h.ports.Artifacts.Get(id)
	if err != nil {
		return nil, err
	}
	return artifact.DecodeMetrics(data)
}

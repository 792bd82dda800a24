package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"caller-alert-lab/internal/artifact"
	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/canon"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/sim"
	"caller-alert-lab/internal/workerpool"
)

// Handler executes experiment definitions.
type Handler struct {
	ports Ports
}

// NewHandler wires a handler to its ports.
func NewHandler(ports Ports) (*Handler, error) {
	if err := ports.validate(); err != nil {
		return nil, err
	}
	return &Handler{ports: ports.withDefaults()}, nil
}

// Experiment is the outcome of one executed definition.
type Experiment struct {
	Run        *domain.SimulationRun
	ManifestID string
	Manifest   *artifact.Manifest
	Summary    domain.MetricsSummary
}

// resolved holds the deserialised input artifacts of a run.
type resolved struct {
	snapshot *domain.Snapshot
	strategy *domain.StrategyConfig
	exec     *domain.ExecutionModel
	cost     *domain.CostModel
	risk     *domain.RiskModel
	ids      artifact.ManifestInputs
}

// alertResult is one worker's output.
type alertResult struct {
	alertID    string
	events     []*domain.Event
	summary    domain.MetricsSummary
	terminal   domain.TerminalState
	gaps       []candles.Gap
	mcapSource string
	offCurve   bool
}

// Execute runs the definition end to end: pending run row, input
// resolution, frozen projection, per-alert simulation on the worker
// pool, aggregation, artifact publication, completed run row. Any
// failure before publication marks the run failed and disposes the
// projection.
func (h *Handler) Execute(ctx context.Context, def *Definition) (*Experiment, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: definition required", domain.ErrValidation)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	cfg := def.Run.withDefaults()

	started := h.ports.Clock()
	run := &domain.SimulationRun{
		RunID:         uuid.NewString(),
		StrategyHash:  def.StrategyID,
		SnapshotHash:  def.SnapshotID,
		ExecModelHash: def.ExecModelID,
		CostModelHash: def.CostModelID,
		RiskModelHash: def.RiskModelID,
		Seed:          def.Seed,
		EngineVersion: sim.Version,
		Status:        domain.RunPending,
		CreatedAt:     started.UTC(),
	}
	if err := h.ports.Runs.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run row: %w", err)
	}
	if err := h.ports.Runs.UpdateStatus(ctx, run.RunID, domain.RunRunning, "", nil); err != nil {
		return nil, fmt.Errorf("transition run to running: %w", err)
	}
	run.Status = domain.RunRunning

	exp, err := h.execute(ctx, def, cfg, run)
	if err != nil {
		h.fail(run.RunID, err)
		observability.RecordRun(string(domain.RunFailed), time.Since(started).Seconds())
		return nil, err
	}
	observability.RecordRun(string(domain.RunCompleted), time.Since(started).Seconds())
	return exp, nil
}

func (h *Handler) execute(ctx context.Context, def *Definition, cfg RunConfig, run *domain.SimulationRun) (*Experiment, error) {
	in, err := h.resolveInputs(def)
	if err != nil {
		return nil, err
	}

	proj, err := buildProjection(ctx, in.snapshot, h.ports.Alerts)
	if err != nil {
		return nil, err
	}
	defer proj.Dispose()

	workers := cfg.Workers
	if in.risk != nil && in.risk.MaxConcurrentAlerts > 0 && in.risk.MaxConcurrentAlerts < workers {
		workers = in.risk.MaxConcurrentAlerts
	}

	h.ports.Logger.Printf("run %s: %d alerts, %d workers", run.RunID, len(proj.alerts), workers)

	results, err := workerpool.Map(ctx, workers, len(proj.alerts), func(ctx context.Context, i int) (*alertResult, error) {
		return h.simulateAlert(ctx, cfg, run.RunID, def.Seed, in, proj.alerts[i])
	})
	if err != nil {
		return nil, err
	}

	return h.publish(ctx, def, cfg, run, in, results)
}

func (h *Handler) simulateAlert(ctx context.Context, cfg RunConfig, runID string, seed int64, in *resolved, alert *domain.Alert) (*alertResult, error) {
	from := alert.AlertTs - cfg.PreMinutes*60
	to := alert.AlertTs + cfg.PostMinutes*60

	window, gaps, err := h.ports.Candles.GetCandles(ctx, alert.TokenAddress, alert.Chain, cfg.IntervalSeconds, from, to, candles.GapPolicy(cfg.GapPolicy))
	if err != nil {
		return nil, fmt.Errorf("alert %s: candles: %w", alert.AlertID, err)
	}

	res, err := sim.Simulate(sim.Inputs{
		RunID:    runID,
		AlertID:  alert.AlertID,
		Candles:  window,
		Strategy: in.strategy,
		Exec:     in.exec,
		Cost:     in.cost,
		Risk:     in.risk,
		Seed:     seed,
	})
	if err != nil {
		return nil, fmt.Errorf("alert %s: %w", alert.AlertID, err)
	}

	out := &alertResult{
		alertID:  alert.AlertID,
		events:   res.Events,
		summary:  res.Summary,
		terminal: res.Terminal,
		gaps:     gaps,
		offCurve: alert.Chain.IsSolana() && !domain.MintOnCurve(alert.TokenAddress),
	}
	if h.ports.Mcap != nil {
		_, source := h.ports.Mcap.Resolve(ctx, alert)
		out.mcapSource = string(source)
	}
	return out, nil
}

// publish is steps 7 through 9: aggregate, write artifacts, record ids
// and complete the run. Event order is normalised to (alert_id, seq)
// before serialisation so artifact bytes do not depend on worker
// scheduling.
func (h *Handler) publish(ctx context.Context, def *Definition, cfg RunConfig, run *domain.SimulationRun, in *resolved, results []*alertResult) (*Experiment, error) {
	sort.Slice(results, func(i, j int) bool { return results[i].alertID < results[j].alertID })

	var merged []*domain.Event
	perAlert := make(map[string]domain.MetricsSummary, len(results))
	trades := make([]artifact.Trade, 0, len(results))
	diag := artifact.Diagnostics{}

	for _, r := range results {
		merged = append(merged, r.events...)
		perAlert[r.alertID] = r.summary
		trades = append(trades, tradeFromEvents(r))

		if len(r.gaps) > 0 {
			if diag.SkippedGaps == nil {
				diag.SkippedGaps = make(map[string][]artifact.GapNote)
			}
			for _, g := range r.gaps {
				diag.SkippedGaps[r.alertID] = append(diag.SkippedGaps[r.alertID], artifact.GapNote{From: g.From, To: g.To})
			}
		}
		if r.mcapSource != "" {
			if diag.McapSources == nil {
				diag.McapSources = make(map[string]string)
			}
			diag.McapSources[r.alertID] = r.mcapSource
		}
		if r.offCurve {
			diag.OffCurveMints = append(diag.OffCurveMints, r.alertID)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].AlertID != merged[j].AlertID {
			return merged[i].AlertID < merged[j].AlertID
		}
		return merged[i].Seq < merged[j].Seq
	})

	aggregate := Aggregate(results)

	parents := inputParents(in.ids)

	tradesData, err := artifact.EncodeJSON(trades)
	if err != nil {
		return nil, err
	}
	tradesID, err := h.ports.Artifacts.Put(domain.ArtifactTrades, tradesData, parents...)
	if err != nil {
		return nil, err
	}

	metricsData, err := artifact.EncodeJSON(artifact.Metrics{Run: aggregate, PerAlert: perAlert})
	if err != nil {
		return nil, err
	}
	metricsID, err := h.ports.Artifacts.Put(domain.ArtifactMetrics, metricsData, parents...)
	if err != nil {
		return nil, err
	}

	eventsData, err := artifact.EncodeEvents(merged)
	if err != nil {
		return nil, err
	}
	eventsID, err := h.ports.Artifacts.Put(domain.ArtifactEvents, eventsData, parents...)
	if err != nil {
		return nil, err
	}

	var diagID string
	if len(diag.SkippedGaps) > 0 || len(diag.McapSources) > 0 || len(diag.OffCurveMints) > 0 || len(diag.Warnings) > 0 {
		diagData, err := artifact.EncodeJSON(diag)
		if err != nil {
			return nil, err
		}
		diagID, err = h.ports.Artifacts.Put(domain.ArtifactDiagnostics, diagData, parents...)
		if err != nil {
			return nil, err
		}
	}

	if err := h.ports.Runs.RecordArtifacts(ctx, run.RunID, tradesID, metricsID, eventsID, diagID); err != nil {
		return nil, fmt.Errorf("record artifacts: %w", err)
	}
	if err := h.ports.Summaries.Upsert(ctx, run.RunID, &aggregate); err != nil {
		return nil, fmt.Errorf("upsert summary: %w", err)
	}
	completed := h.ports.Clock().UTC()
	if err := h.ports.Runs.UpdateStatus(ctx, run.RunID, domain.RunCompleted, "", &completed); err != nil {
		return nil, fmt.Errorf("transition run to completed: %w", err)
	}
	run.Status = domain.RunCompleted
	run.CompletedAt = &completed
	run.TradesID = tradesID
	run.MetricsID = metricsID
	run.EventsID = eventsID
	run.DiagnosticsID = diagID

	rcRaw, err := canon.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("canonicalise run config: %w", err)
	}
	manifest := &artifact.Manifest{
		RunID:         run.RunID,
		EngineVersion: run.EngineVersion,
		Inputs:        in.ids,
		Seed:          def.Seed,
		CreatedAt:     run.CreatedAt.Format(time.RFC3339Nano),
		RunConfig:     rcRaw,
		Outputs: artifact.ManifestOutputs{
			TradesID:      tradesID,
			MetricsID:     metricsID,
			EventsID:      eventsID,
			DiagnosticsID: diagID,
		},
	}
	manifestData, err := artifact.EncodeJSON(manifest)
	if err != nil {
		return nil, err
	}
	manifestID, err := h.ports.Artifacts.Put(domain.ArtifactManifest, manifestData, tradesID, metricsID, eventsID)
	if err != nil {
		return nil, err
	}

	return &Experiment{
		Run:        run,
		ManifestID: manifestID,
		Manifest:   manifest,
		Summary:    aggregate,
	}, nil
}

// resolveInputs loads and validates every referenced artifact. All
// referenced artifacts must exist and be active.
func (h *Handler) resolveInputs(def *Definition) (*resolved, error) {
	in := &resolved{
		snapshot: &domain.Snapshot{},
		strategy: &domain.StrategyConfig{},
	}
	in.ids.Snapshot = def.SnapshotID
	in.ids.Strategy = def.StrategyID
	in.ids.Exec = def.ExecModelID
	in.ids.Cost = def.CostModelID
	in.ids.Risk = def.RiskModelID

	if err := h.loadInput(def.SnapshotID, in.snapshot); err != nil {
		return nil, err
	}
	if err := in.snapshot.Validate(); err != nil {
		return nil, err
	}
	if err := h.loadInput(def.StrategyID, in.strategy); err != nil {
		return nil, err
	}
	if err := in.strategy.Validate(); err != nil {
		return nil, err
	}
	if def.ExecModelID != "" {
		in.exec = &domain.ExecutionModel{}
		if err := h.loadInput(def.ExecModelID, in.exec); err != nil {
			return nil, err
		}
		if err := in.exec.Validate(); err != nil {
			return nil, err
		}
	}
	if def.CostModelID != "" {
		in.cost = &domain.CostModel{}
		if err := h.loadInput(def.CostModelID, in.cost); err != nil {
			return nil, err
		}
		if err := in.cost.Validate(); err != nil {
			return nil, err
		}
	}
	if def.RiskModelID != "" {
		in.risk = &domain.RiskModel{}
		if err := h.loadInput(def.RiskModelID, in.risk); err != nil {
			return nil, err
		}
		if err := in.risk.Validate(); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func (h *Handler) loadInput(id string, dst interface{}) error {
	desc, err := h.ports.Artifacts.GetDescriptor(id)
	if err != nil {
		return fmt.Errorf("resolve input %s: %w", id, err)
	}
	if desc.Status != domain.ArtifactActive {
		return fmt.Errorf("input artifact %s is %s, want active", id, desc.Status)
	}
	data, err := h.ports.Artifacts.Get(id)
	if err != nil {
		return fmt.Errorf("load input %s: %w", id, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode input %s: %w", id, err)
	}
	return nil
}

// fail marks the run failed. The original error wins; a failure while
// recording the failure is only logged.
func (h *Handler) fail(runID string, cause error) {
	completed := h.ports.Clock().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.ports.Runs.UpdateStatus(ctx, runID, domain.RunFailed, cause.Error(), &completed); err != nil {
		h.ports.Logger.Printf("run %s: recording failure: %v (cause: %v)", runID, err, cause)
	}
}

// tradeFromEvents collapses one alert's trace into a trade record.
func tradeFromEvents(r *alertResult) artifact.Trade {
	t := artifact.Trade{
		AlertID:         r.alertID,
		Exits:           []artifact.TradeExit{},
		Pnl:             r.summary.FinalPnl,
		Fees:            r.summary.Fees,
		DurationMinutes: r.summary.HoldingMinutes,
		Terminal:        string(r.terminal),
	}
	for _, ev := range r.events {
		switch ev.Type {
		case domain.EventEntry:
			t.EntryTs = ev.EventTime / 1000
			t.EntryPrice = ev.Price
		case domain.EventPartialExitTarget, domain.EventStopOut, domain.EventFinalClose:
			t.Exits = append(t.Exits, artifact.TradeExit{
				Ts:     ev.EventTime / 1000,
				Price:  ev.Price,
				Size:   ev.Size,
				Reason: string(ev.Type),
			})
		}
	}
	return t
}

func inputParents(ids artifact.ManifestInputs) []string {
	parents := []string{ids.Snapshot, ids.Strategy}
	for _, id := range []string{ids.Exec, ids.Cost, ids.Risk} {
		if id != "" {
			parents = append(parents, id)
		}
	}
	return parents
}

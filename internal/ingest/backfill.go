package ingest

import (
	"context"
	"log"
	"os"

	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/observability"
	"caller-alert-lab/internal/storage"
	"caller-alert-lab/internal/workerpool"
)

// BackfillOptions bounds one backfill sweep.
type BackfillOptions struct {
	From            int64
	To              int64
	PreMinutes      int64
	PostMinutes     int64
	IntervalSeconds int64
	Workers         int
}

func (o *BackfillOptions) withDefaults() {
	if o.IntervalSeconds == 0 {
		o.IntervalSeconds = 60
	}
	if o.PostMinutes == 0 {
		o.PostMinutes = 240
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// BackfillReport counts the outcome per alert window.
type BackfillReport struct {
	Alerts   int
	Complete int
	Gapped   int
	Failed   int
}

// Backfiller pre-fetches the candle windows experiments will read, so
// later runs hit storage instead of the paid API.
type Backfiller struct {
	alerts   storage.AlertStore
	provider *candles.Provider
	logger   *log.Logger
}

func NewBackfiller(alerts storage.AlertStore, provider *candles.Provider, logger *log.Logger) *Backfiller {
	if logger == nil {
		logger = log.New(os.Stderr, "[backfill] ", log.LstdFlags)
	}
	return &Backfiller{alerts: alerts, provider: provider, logger: logger}
}

// Run fetches the window around every alert in [From, To]. Windows are
// fetched best-effort: a gap or an API failure on one alert does not
// stop the sweep.
func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (*BackfillReport, error) {
	opts.withDefaults()

	alerts, err := b.alerts.GetByTimeRange(ctx, opts.From, opts.To, domain.SnapshotFilters{})
	if err != nil {
		return nil, err
	}

	type outcome struct {
		gapped bool
		failed bool
	}
	outcomes, err := workerpool.Map(ctx, opts.Workers, len(alerts), func(ctx context.Context, i int) (outcome, error) {
		a := alerts[i]
		from := a.AlertTs - opts.PreMinutes*60
		to := a.AlertTs + opts.PostMinutes*60
		_, gaps, err := b.provider.GetCandles(ctx, a.TokenAddress, a.Chain, opts.IntervalSeconds, from, to, candles.PolicyBestEffort)
		if err != nil {
			b.logger.Printf("alert %s: window fetch failed: %v", a.AlertID, err)
			return outcome{failed: true}, nil
		}
		observability.DefaultMetrics.CandlesBackfills.Inc()
		return outcome{gapped: len(gaps) > 0}, nil
	})
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{Alerts: len(alerts)}
	for _, o := range outcomes {
		switch {
		case o.failed:
			report.Failed++
		case o.gapped:
			report.Gapped++
		default:
			report.Complete++
		}
	}
	b.logger.Printf("backfill: %d alerts, %d complete, %d gapped, %d failed",
		report.Alerts, report.Complete, report.Gapped, report.Failed)
	return report, nil
}

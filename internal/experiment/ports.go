// Package experiment orchestrates simulation runs: it resolves input
// artifacts, freezes a projection of the snapshot, fans alerts out over
// the worker pool, aggregates results and publishes content-addressed
// outputs. Handlers receive everything through the Ports struct and
// never read the environment.
package experiment

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"caller-alert-lab/internal/artifact"
	"caller-alert-lab/internal/candles"
	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// ArtifactStore is the slice of the artifact store the handler needs.
type ArtifactStore interface {
	Put(kind domain.ArtifactKind, content []byte, parents ...string) (string, error)
	Get(id string) ([]byte, error)
	GetDescriptor(id string) (*domain.ArtifactDescriptor, error)
}

// CandleProvider resolves per-alert candle windows.
type CandleProvider interface {
	GetCandles(ctx context.Context, mint string, chain domain.Chain, intervalSeconds, from, to int64, policy candles.GapPolicy) (domain.CandleSlice, []candles.Gap, error)
}

// Clock supplies run timestamps; injected so tests freeze time.
type Clock func() time.Time

// Ports wires the handler to its collaborators.
type Ports struct {
	Artifacts ArtifactStore
	Candles   CandleProvider
	Alerts    storage.AlertStore
	Runs      storage.RunStore
	Summaries storage.SummaryStore

	// Mcap is optional; when present each alert's market-cap source is
	// tagged in diagnostics.
	Mcap *candles.McapResolver

	Clock  Clock
	Logger *log.Logger
}

func (p *Ports) validate() error {
	switch {
	case p.Artifacts == nil:
		return fmt.Errorf("experiment: artifact store port required")
	case p.Candles == nil:
		return fmt.Errorf("experiment: candle provider port required")
	case p.Alerts == nil:
		return fmt.Errorf("experiment: alert store port required")
	case p.Runs == nil:
		return fmt.Errorf("experiment: run store port required")
	case p.Summaries == nil:
		return fmt.Errorf("experiment: summary store port required")
	}
	return nil
}

func (p *Ports) withDefaults() Ports {
	out := *p
	if out.Clock == nil {
		out.Clock = time.Now
	}
	if out.Logger == nil {
		out.Logger = log.New(os.Stderr, "[experiment] ", log.LstdFlags)
	}
	return out
}

var _ ArtifactStore = (*artifact.Store)(nil)
var _ CandleProvider = (*candles.Provider)(nil)

package experiment

import (
	"context"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// projection is the frozen per-run working view: the snapshot's alerts
// resolved once, in (alert_ts, alert_id) order. Workers read it but
// never mutate it; Dispose releases it when the run ends either way.
type projection struct {
	alerts []*domain.Alert
}

func buildProjection(ctx context.Context, snap *domain.Snapshot, alerts storage.AlertStore) (*projection, error) {
	list, err := alerts.GetByTimeRange(ctx, snap.TimeRange.From, snap.TimeRange.To, snap.Filters)
	if err != nil {
		return nil, fmt.Errorf("load snapshot alerts: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: snapshot %s matches no alerts", domain.ErrValidation, snap.SnapshotID)
	}
	return &projection{alerts: list}, nil
}

func (p *projection) Dispose() {
	p.alerts = nil
}

package domain

import "fmt"

// TimeRange is an inclusive unix-seconds interval.
type TimeRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// SnapshotFilters narrow the alert set a snapshot pins.
type SnapshotFilters struct {
	Callers   []string `json:"callers,omitempty"`
	Mints     []string `json:"mints,omitempty"`
	MinVolume float64  `json:"min_volume,omitempty"`
}

// Snapshot is a frozen pointer to a set of candle ranges and alerts.
// Immutable once sealed; referenced by content hash.
type Snapshot struct {
	SnapshotID  string          `json:"snapshot_id"`
	TimeRange   TimeRange       `json:"time_range"`
	Sources     []string        `json:"sources"`
	Filters     SnapshotFilters `json:"filters"`
	ContentHash string          `json:"content_hash"`
}

// Validate checks the snapshot's structural invariants.
func (s *Snapshot) Validate() error {
	if s.SnapshotID == "" {
		return fmt.Errorf("%w: snapshot.snapshot_id: empty", ErrValidation)
	}
	if s.TimeRange.From <= 0 || s.TimeRange.To < s.TimeRange.From {
		return fmt.Errorf("%w: snapshot.time_range: [%d, %d] ill-formed", ErrValidation, s.TimeRange.From, s.TimeRange.To)
	}
	return nil
}

package experiment

import (
	"context"
	"errors"
	"fmt"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// RunDetail is a run row joined with its summary, if one exists.
type RunDetail struct {
	Run     *domain.SimulationRun  `json:"run"`
	Summary *domain.MetricsSummary `json:"summary,omitempty"`
}

// List returns runs ordered newest first, optionally filtered by
// status.
func (h *Handler) List(ctx context.Context, status domain.RunStatus, limit, offset int) ([]*domain.SimulationRun, error) {
	return h.ports.Runs.List(ctx, status, limit, offset)
}

// Show returns one run and its summary. Completed runs without a
// summary row are surfaced with a nil summary rather than an error.
func (h *Handler) Show(ctx context.Context, runID string) (*RunDetail, error) {
	run, err := h.ports.Runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	summary, err := h.ports.Summaries.GetByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &RunDetail{Run: run}, nil
		}
		return nil, fmt.Errorf("summary for run %s: %w", runID, err)
	}
	return &RunDetail{Run: run, Summary: summary}, nil
}

// Leaderboard ranks completed runs by the closed criteria set.
func (h *Handler) Leaderboard(ctx context.Context, q storage.LeaderboardQuery) ([]*storage.SummaryRow, error) {
	return h.ports.Summaries.Leaderboard(ctx, q)
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]*domain.Token // (chain|address) -> token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{nextID: 1, byKey: make(map[string]*domain.Token)}
}

func tokenKey(chain domain.Chain, address string) string {
	return fmt.Sprintf("%s|%s", chain, address)
}

// Ensure inserts the token if absent and returns its row id.
func (s *TokenStore) Ensure(_ context.Context, t *domain.Token) (int64, error) {
	if t == nil || t.Address == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := tokenKey(t.Chain, t.Address)
	if existing, ok := s.byKey[key]; ok {
		return existing.TokenID, nil
	}
	cp := *t
	cp.TokenID = s.nextID
	s.nextID++
	s.byKey[key] = &cp
	return cp.TokenID, nil
}

// GetByAddress retrieves a token. Returns ErrNotFound if absent.
func (s *TokenStore) GetByAddress(_ context.Context, chain domain.Chain, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byKey[tokenKey(chain, address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)

// CallerStore is an in-memory implementation of storage.CallerStore.
type CallerStore struct {
	mu     sync.RWMutex
	nextID int64
	byKey  map[string]*domain.Caller
}

// NewCallerStore creates a new in-memory caller store.
func NewCallerStore() *CallerStore {
	return &CallerStore{nextID: 1, byKey: make(map[string]*domain.Caller)}
}

// Ensure inserts the caller if absent and returns its row id.
func (s *CallerStore) Ensure(_ context.Context, c *domain.Caller) (int64, error) {
	if c == nil || c.Handle == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := c.Source + "|" + c.Handle
	if existing, ok := s.byKey[key]; ok {
		return existing.CallerID, nil
	}
	cp := *c
	cp.CallerID = s.nextID
	s.nextID++
	s.byKey[key] = &cp
	return cp.CallerID, nil
}

// GetByHandle retrieves a caller. Returns ErrNotFound if absent.
func (s *CallerStore) GetByHandle(_ context.Context, source, handle string) (*domain.Caller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byKey[source+"|"+handle]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

var _ storage.CallerStore = (*CallerStore)(nil)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu   sync.RWMutex
	rows map[string]strategyRow // (name|version)
}

type strategyRow struct {
	name    string
	version int
	cfg     domain.StrategyConfig
	active  bool
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{rows: make(map[string]strategyRow)}
}

// Insert adds a strategy version.
func (s *StrategyStore) Insert(_ context.Context, name string, version int, cfg *domain.StrategyConfig, active bool) error {
	if name == "" || cfg == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%d", name, version)
	if _, exists := s.rows[key]; exists {
		return storage.ErrDuplicateKey
	}
	s.rows[key] = strategyRow{name: name, version: version, cfg: *cfg, active: active}
	return nil
}

// GetActive retrieves the highest active version for a name.
func (s *StrategyStore) GetActive(_ context.Context, name string) (*domain.StrategyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *strategyRow
	for _, row := range s.rows {
		if row.name != name || !row.active {
			continue
		}
		r := row
		if best == nil || r.version > best.version {
			best = &r
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}
	cfg := best.cfg
	return &cfg, nil
}

var _ storage.StrategyStore = (*StrategyStore)(nil)

// RunStore is an in-memory implementation of storage.RunStore.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*domain.SimulationRun
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*domain.SimulationRun)}
}

// Insert adds a new run row.
func (s *RunStore) Insert(_ context.Context, r *domain.SimulationRun) error {
	if r == nil || r.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[r.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *r
	s.runs[r.RunID] = &cp
	return nil
}

// GetByID retrieves a run. Returns ErrNotFound if absent.
func (s *RunStore) GetByID(_ context.Context, runID string) (*domain.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateStatus transitions the run through the status machine.
func (s *RunStore) UpdateStatus(_ context.Context, runID string, status domain.RunStatus, errorMessage string, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	if !domain.CanTransition(r.Status, status) {
		return storage.ErrBadTransition
	}
	r.Status = status
	r.ErrorMessage = errorMessage
	r.CompletedAt = completedAt
	return nil
}

// RecordArtifacts attaches output artifact ids.
func (s *RunStore) RecordArtifacts(_ context.Context, runID, tradesID, metricsID, eventsID, diagnosticsID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[runID]
	if !ok {
		return storage.ErrNotFound
	}
	r.TradesID = tradesID
	r.MetricsID = metricsID
	r.EventsID = eventsID
	r.DiagnosticsID = diagnosticsID
	return nil
}

// List retrieves runs ordered by created_at DESC, then run_id.
func (s *RunStore) List(_ context.Context, status domain.RunStatus, limit, offset int) ([]*domain.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SimulationRun
	for _, r := range s.runs {
		if status != "" && r.Status != status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RunID < out[j].RunID
	})

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

var _ storage.RunStore = (*RunStore)(nil)

// SummaryStore is an in-memory implementation of storage.SummaryStore.
type SummaryStore struct {
	mu   sync.RWMutex
	rows map[string]*domain.MetricsSummary
}

// NewSummaryStore creates a new in-memory summary store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{rows: make(map[string]*domain.MetricsSummary)}
}

// Upsert writes the run-level summary.
func (s *SummaryStore) Upsert(_ context.Context, runID string, sum *domain.MetricsSummary) error {
	if runID == "" || sum == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sum
	s.rows[runID] = &cp
	return nil
}

// GetByRunID retrieves a summary. Returns ErrNotFound if absent.
func (s *SummaryStore) GetByRunID(_ context.Context, runID string) (*domain.MetricsSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum, ok := s.rows[runID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *sum
	return &cp, nil
}

// Leaderboard ranks runs by the query criteria.
func (s *SummaryStore) Leaderboard(_ context.Context, q storage.LeaderboardQuery) ([]*storage.SummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []*storage.SummaryRow
	for runID, sum := range s.rows {
		if sum.TradeCount < q.MinTrades || sum.WinRate < q.MinWinRate {
			continue
		}
		rows = append(rows, &storage.SummaryRow{RunID: runID, Summary: *sum})
	}

	key, err := leaderboardKey(q.Criteria)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := key(&rows[i].Summary), key(&rows[j].Summary)
		if a != b {
			if q.Descending {
				return a > b
			}
			return a < b
		}
		return rows[i].RunID < rows[j].RunID
	})

	if q.Limit > 0 && q.Limit < len(rows) {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

// leaderboardKey maps a criteria name to its summary column.
// The criteria set is closed; unknown names are invalid input.
func leaderboardKey(criteria string) (func(*domain.MetricsSummary) float64, error) {
	switch criteria {
	case "return":
		return func(s *domain.MetricsSummary) float64 { return s.FinalPnl }, nil
	case "win_rate":
		return func(s *domain.MetricsSummary) float64 { return s.WinRate }, nil
	case "profit_factor":
		return func(s *domain.MetricsSummary) float64 {
			if s.ProfitFactor == nil {
				return 0
			}
			return *s.ProfitFactor
		}, nil
	case "sharpe":
		return func(s *domain.MetricsSummary) float64 {
			if s.Sharpe == nil {
				return 0
			}
			return *s.Sharpe
		}, nil
	case "max_drawdown":
		return func(s *domain.MetricsSummary) float64 { return s.MaxDrawdown }, nil
	default:
		return nil, fmt.Errorf("%w: leaderboard criteria %q", storage.ErrInvalidInput, criteria)
	}
}

var _ storage.SummaryStore = (*SummaryStore)(nil)

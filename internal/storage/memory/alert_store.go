package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"caller-alert-lab/internal/domain"
	"caller-alert-lab/internal/storage"
)

// AlertStore is an in-memory implementation of storage.AlertStore.
type AlertStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.Alert
	identity map[string]string // (chat_id|message_id) -> alert_id
}

// NewAlertStore creates a new in-memory alert store.
func NewAlertStore() *AlertStore {
	return &AlertStore{
		byID:     make(map[string]*domain.Alert),
		identity: make(map[string]string),
	}
}

func identityKey(chatID, messageID int64) string {
	return fmt.Sprintf("%d|%d", chatID, messageID)
}

// InsertIdempotent inserts unless (chat_id, message_id) exists.
func (s *AlertStore) InsertIdempotent(_ context.Context, a *domain.Alert) (bool, error) {
	if a == nil || a.AlertID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(a.ChatID, a.MessageID)
	if _, exists := s.identity[key]; exists {
		return false, nil
	}
	cp := *a
	s.byID[a.AlertID] = &cp
	s.identity[key] = a.AlertID
	return true, nil
}

// GetByID retrieves an alert. Returns ErrNotFound if absent.
func (s *AlertStore) GetByID(_ context.Context, alertID string) (*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[alertID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// GetByTimeRange retrieves filtered alerts ordered by (alert_ts, alert_id).
func (s *AlertStore) GetByTimeRange(_ context.Context, from, to int64, filters domain.SnapshotFilters) ([]*domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	callerSet := toSet(filters.Callers)
	mintSet := toSet(filters.Mints)

	var out []*domain.Alert
	for _, a := range s.byID {
		if a.AlertTs < from || a.AlertTs > to {
			continue
		}
		if len(callerSet) > 0 {
			if _, ok := callerSet[a.CallerID]; !ok {
				continue
			}
		}
		if len(mintSet) > 0 {
			if _, ok := mintSet[a.TokenAddress]; !ok {
				continue
			}
		}
		cp := *a
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AlertTs != out[j].AlertTs {
			return out[i].AlertTs < out[j].AlertTs
		}
		return out[i].AlertID < out[j].AlertID
	})
	return out, nil
}

// Count returns the number of stored alerts.
func (s *AlertStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		set[v] = struct{}{}
	}
	return set
}

var _ storage.AlertStore = (*AlertStore)(nil)

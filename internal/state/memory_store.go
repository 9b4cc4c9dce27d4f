package state

import (
	"context"
	"sync"
	"time"

	"alerteval/internal/domain"
)

// MemoryStore keeps alert histories and state in process memory.
// Params: in-memory maps for histories, checkpoint markers, and alert state.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu          sync.RWMutex
	histories   map[string][]domain.AlertHistory
	checkpoints map[string]time.Time
	states      map[string]domain.AlertState
}

// NewMemoryStore creates an empty in-memory store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		histories:   make(map[string][]domain.AlertHistory),
		checkpoints: make(map[string]time.Time),
		states:      make(map[string]domain.AlertState),
	}
}

// FindLatestHistories returns the newest non-future row per alert id.
// Params: alert ids and the asOf upper bound.
// Returns: max-CreatedAt row across groups per id; absent ids omitted.
func (s *MemoryStore) FindLatestHistories(_ context.Context, alertIDs []string, asOf time.Time) (map[string]domain.AlertHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]domain.AlertHistory)
	for _, alertID := range alertIDs {
		for _, row := range s.histories[alertID] {
			if row.CreatedAt.After(asOf) {
				continue
			}
			best, ok := out[alertID]
			if !ok || row.CreatedAt.After(best.CreatedAt) {
				out[alertID] = row
			}
		}
	}
	return out, nil
}

// FindGroupHistories returns the newest non-future row per group for one alert.
// Params: alert id and the asOf upper bound.
// Returns: latest row keyed by group; empty map when no rows qualify.
func (s *MemoryStore) FindGroupHistories(_ context.Context, alertID string, asOf time.Time) (map[domain.GroupKey]domain.AlertHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.GroupKey]domain.AlertHistory)
	for _, row := range s.histories[alertID] {
		if row.CreatedAt.After(asOf) {
			continue
		}
		best, ok := out[row.Group]
		if !ok || row.CreatedAt.After(best.CreatedAt) {
			out[row.Group] = row
		}
	}
	return out, nil
}

// InsertHistory appends one history row.
// Params: validated history row.
// Returns: nil (in-memory append).
func (s *MemoryStore) InsertHistory(_ context.Context, row domain.AlertHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.histories[row.AlertID] = append(s.histories[row.AlertID], row)
	return nil
}

// Checkpoint reads the checkpoint marker for one alert.
// Params: alert id.
// Returns: stored marker, or the zero time when no marker exists.
func (s *MemoryStore) Checkpoint(_ context.Context, alertID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[alertID], nil
}

// AdvanceCheckpoint moves the checkpoint marker with compare-and-set semantics.
// Params: alert id, expected current marker (zero when absent), and new marker.
// Returns: ErrConflict when the stored marker differs from prev.
func (s *MemoryStore) AdvanceCheckpoint(_ context.Context, alertID string, prev, next time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.checkpoints[alertID]
	if !current.Equal(prev) {
		return ErrConflict
	}
	s.checkpoints[alertID] = next
	return nil
}

// UpdateAlertState writes the cached overall state.
// Params: alert id and overall state.
// Returns: nil (in-memory update).
func (s *MemoryStore) UpdateAlertState(_ context.Context, alertID string, alertState domain.AlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[alertID] = alertState
	return nil
}

// Close releases resources (none for the memory backend).
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}

// Histories returns a copy of all stored rows for one alert, insertion-ordered.
// Params: alert id.
// Returns: detached history slice for assertions.
func (s *MemoryStore) Histories(alertID string) []domain.AlertHistory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AlertHistory(nil), s.histories[alertID]...)
}

// AlertState returns the cached overall state for one alert.
// Params: alert id.
// Returns: stored state and existence flag.
func (s *MemoryStore) AlertState(alertID string) (domain.AlertState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alertState, ok := s.states[alertID]
	return alertState, ok
}

package state

import (
	"context"
	"errors"
	"time"

	"alerteval/internal/domain"
)

var (
	// ErrNotFound indicates an absent alert or history row.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates the checkpoint marker moved since it was read.
	ErrConflict = errors.New("checkpoint conflict")
)

// Store provides alert history and state persistence.
// Params: append-only history rows, per-alert checkpoint markers, and the
// cached overall alert state.
// Returns: backend persistence behavior; histories are never mutated.
type Store interface {
	// FindLatestHistories returns, per alert id, the newest history row with
	// CreatedAt <= asOf across all groups. Ids with no qualifying row are
	// omitted from the result.
	FindLatestHistories(ctx context.Context, alertIDs []string, asOf time.Time) (map[string]domain.AlertHistory, error)
	// FindGroupHistories returns the newest history row per group for one
	// alert, limited to rows with CreatedAt <= asOf.
	FindGroupHistories(ctx context.Context, alertID string, asOf time.Time) (map[domain.GroupKey]domain.AlertHistory, error)
	// InsertHistory appends one history row.
	InsertHistory(ctx context.Context, row domain.AlertHistory) error
	// Checkpoint reads the per-alert checkpoint marker. The marker may sit
	// ahead of the newest history row when a run failed between its claim and
	// its writes; the zero time means no marker exists yet.
	Checkpoint(ctx context.Context, alertID string) (time.Time, error)
	// AdvanceCheckpoint moves the per-alert checkpoint marker from prev to
	// next, failing with ErrConflict when the stored marker differs from prev.
	// A zero prev means the marker must not exist yet.
	AdvanceCheckpoint(ctx context.Context, alertID string, prev, next time.Time) error
	// UpdateAlertState writes the cached overall alert state.
	UpdateAlertState(ctx context.Context, alertID string, alertState domain.AlertState) error
	Close() error
}

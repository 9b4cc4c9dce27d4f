package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"alerteval/internal/domain"
)

type recordingFinder struct {
	mu      sync.Mutex
	batches [][]string
	rows    map[string]domain.AlertHistory
	err     error
}

func (f *recordingFinder) FindLatestHistories(_ context.Context, alertIDs []string, _ time.Time) (map[string]domain.AlertHistory, error) {
	f.mu.Lock()
	f.batches = append(f.batches, alertIDs)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	out := make(map[string]domain.AlertHistory)
	for _, alertID := range alertIDs {
		if row, ok := f.rows[alertID]; ok {
			out[alertID] = row
		}
	}
	return out, nil
}

func TestLatestCheckpointsEmptyInput(t *testing.T) {
	t.Parallel()

	finder := &recordingFinder{}
	lookup := NewLookup(finder)
	rows, err := lookup.LatestCheckpoints(context.Background(), nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(rows) != 0 || len(finder.batches) != 0 {
		t.Fatalf("expected no queries for empty input, got %+v", finder.batches)
	}
}

func TestLatestCheckpointsSmallSetSingleQuery(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	finder := &recordingFinder{rows: map[string]domain.AlertHistory{
		"a": {AlertID: "a", CreatedAt: now},
	}}
	lookup := NewLookup(finder)

	rows, err := lookup.LatestCheckpoints(context.Background(), []string{"a", "b"}, now)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(finder.batches) != 1 {
		t.Fatalf("expected one batch under the size limit, got %d", len(finder.batches))
	}
	if len(rows) != 1 || rows["a"].AlertID != "a" {
		t.Fatalf("expected only present ids in result, got %+v", rows)
	}
	if _, ok := rows["b"]; ok {
		t.Fatalf("expected absent id omitted, got %+v", rows)
	}
}

func TestLatestCheckpointsPartitionsLargeSet(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	rows := make(map[string]domain.AlertHistory)
	ids := make([]string, 0, 2*BatchSize+7)
	for i := 0; i < 2*BatchSize+7; i++ {
		id := fmt.Sprintf("alert-%03d", i)
		ids = append(ids, id)
		rows[id] = domain.AlertHistory{AlertID: id, CreatedAt: now.Add(-time.Duration(i) * time.Minute)}
	}
	finder := &recordingFinder{rows: rows}
	lookup := NewLookup(finder)

	merged, err := lookup.LatestCheckpoints(context.Background(), ids, now)
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
	if len(merged) != len(ids) {
		t.Fatalf("expected a row per id, got %d of %d", len(merged), len(ids))
	}
	if len(finder.batches) != 3 {
		t.Fatalf("expected three batches, got %d", len(finder.batches))
	}
	for _, batch := range finder.batches {
		if len(batch) > BatchSize {
			t.Fatalf("expected batches capped at %d ids, got %d", BatchSize, len(batch))
		}
	}
}

func TestLatestCheckpointsPropagatesBatchError(t *testing.T) {
	t.Parallel()

	ids := make([]string, BatchSize+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("alert-%03d", i)
	}
	finder := &recordingFinder{err: errors.New("store down")}
	lookup := NewLookup(finder)

	if _, err := lookup.LatestCheckpoints(context.Background(), ids, time.Now()); err == nil {
		t.Fatalf("expected batch error to surface")
	}
}

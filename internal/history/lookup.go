package history

import (
	"context"
	"sync"
	"time"

	"alerteval/internal/domain"
)

// BatchSize bounds one store query issued by the lookup.
const BatchSize = 50

// Finder runs one bounded latest-history query against the store.
// Params: one id batch and the asOf upper bound.
// Returns: newest non-future row per id, absent ids omitted.
type Finder interface {
	FindLatestHistories(ctx context.Context, alertIDs []string, asOf time.Time) (map[string]domain.AlertHistory, error)
}

// Lookup retrieves latest checkpoints for large alert id sets.
// Params: store-backed finder.
// Returns: batching read helper for the evaluator and sweep.
type Lookup struct {
	finder Finder
}

// NewLookup builds the checkpoint lookup.
// Params: finder implementation (usually the state store).
// Returns: initialized lookup.
func NewLookup(finder Finder) *Lookup {
	return &Lookup{finder: finder}
}

// LatestCheckpoints returns the newest non-future row per alert id.
// Params: alert ids (any size) and the asOf upper bound.
// Returns: merged result identical to one unbounded query; ids are partitioned
// into batches of BatchSize issued concurrently since the reads are independent.
func (l *Lookup) LatestCheckpoints(ctx context.Context, alertIDs []string, asOf time.Time) (map[string]domain.AlertHistory, error) {
	if len(alertIDs) == 0 {
		return map[string]domain.AlertHistory{}, nil
	}
	if len(alertIDs) <= BatchSize {
		return l.finder.FindLatestHistories(ctx, alertIDs, asOf)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		merged   = make(map[string]domain.AlertHistory, len(alertIDs))
		firstErr error
	)
	for start := 0; start < len(alertIDs); start += BatchSize {
		end := start + BatchSize
		if end > len(alertIDs) {
			end = len(alertIDs)
		}
		batch := alertIDs[start:end]

		wg.Add(1)
		go func() {
			defer wg.Done()
			rows, err := l.finder.FindLatestHistories(ctx, batch, asOf)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			for alertID, row := range rows {
				merged[alertID] = row
			}
		}()
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return merged, nil
}

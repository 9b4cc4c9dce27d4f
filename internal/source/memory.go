package source

import (
	"context"
	"sync"
	"time"

	"alerteval/internal/domain"
)

// MemoryEvent is one raw seeded event for the in-memory source.
// Params: event timestamp, positional group values, and aggregation weight.
// Returns: one countable data point.
type MemoryEvent struct {
	At          time.Time
	GroupValues []string
	Weight      float64
}

// Memory aggregates seeded events in process memory.
// Params: seeded events and optional forced error.
// Returns: DataSource used by tests and single-process setups.
type Memory struct {
	mu     sync.RWMutex
	events []MemoryEvent
	err    error
}

// NewMemory creates an empty in-memory data source.
// Params: none.
// Returns: initialized source.
func NewMemory() *Memory {
	return &Memory{}
}

// AddEvent seeds one event.
// Params: timestamp, group values positionally matched to group-by dimensions,
// and weight (0 counts as 1).
// Returns: event appended to the source.
func (m *Memory) AddEvent(at time.Time, groupValues []string, weight float64) {
	if weight == 0 {
		weight = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, MemoryEvent{At: at, GroupValues: groupValues, Weight: weight})
}

// SetError forces all subsequent queries to fail.
// Params: error to return, nil clears the failure.
// Returns: error injection side effect.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Query sums event weights per group inside the half-open bucket range.
// Params: query descriptor (unused filter), bucket range, and group-by dimensions.
// Returns: one row per group with matching events; groups without events are omitted.
func (m *Memory) Query(ctx context.Context, _ domain.QueryDescriptor, bucket TimeRange, groupBy []string) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, m.err
	}

	totals := make(map[domain.GroupKey]float64)
	for _, event := range m.events {
		if !bucket.Contains(event.At) {
			continue
		}
		totals[domain.BuildGroupKey(groupBy, event.GroupValues)] += event.Weight
	}

	rows := make([]Row, 0, len(totals))
	for group, value := range totals {
		rows = append(rows, Row{BucketStart: bucket.Start, Group: group, Value: value})
	}
	return rows, nil
}

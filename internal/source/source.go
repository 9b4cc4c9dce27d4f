package source

import (
	"context"
	"time"

	"alerteval/internal/domain"
)

// TimeRange is one half-open [Start, End) interval.
// Params: bucket boundaries aligned to the alert interval.
// Returns: query range passed to the data source and notification payloads.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether ts falls inside the half-open range.
// Params: timestamp to test.
// Returns: true when Start <= ts < End.
func (r TimeRange) Contains(ts time.Time) bool {
	return !ts.Before(r.Start) && ts.Before(r.End)
}

// Row is one aggregated observation returned by the data source.
// Params: bucket start, canonical group key, and aggregated value.
// Returns: one (bucket, group) data point; absent pairs mean value 0.
type Row struct {
	BucketStart time.Time       `json:"bucket_start"`
	Group       domain.GroupKey `json:"group"`
	Value       float64         `json:"value"`
}

// DataSource runs one aggregation query against the analytical store.
// Params: query descriptor, bucket range, and group-by dimensions.
// Returns: zero or more rows; a missing (bucket, group) pair is "no matching
// data", never an error. Implementations must honor ctx deadlines.
type DataSource interface {
	Query(ctx context.Context, query domain.QueryDescriptor, bucket TimeRange, groupBy []string) ([]Row, error)
}

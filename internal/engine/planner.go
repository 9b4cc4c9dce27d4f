package engine

import "time"

// DefaultBackfillDepth caps the trailing buckets evaluated per run.
const DefaultBackfillDepth = 3

// PlanBuckets computes the bucket start times one invocation must evaluate.
// Params: alert interval, previous checkpoint (zero when none exists), current
// time, and the backfill cap.
// Returns: bucket starts oldest to newest; empty when less than one whole
// interval elapsed since the checkpoint. The newest bucket's end becomes the
// next checkpoint timestamp.
func PlanBuckets(interval time.Duration, checkpoint, now time.Time, backfillDepth int) []time.Time {
	if interval <= 0 {
		return nil
	}
	if backfillDepth < 1 {
		backfillDepth = 1
	}

	if checkpoint.IsZero() {
		end := now.Truncate(interval)
		return []time.Time{end.Add(-interval)}
	}

	whole := int(now.Sub(checkpoint) / interval)
	if whole < 1 {
		return nil
	}
	if whole > backfillDepth {
		whole = backfillDepth
	}

	// Newest bucket ends at checkpoint + n*interval; walk back from there so
	// the cap always keeps the most recent buckets.
	newestEnd := checkpoint.Add(time.Duration(int(now.Sub(checkpoint)/interval)) * interval)
	starts := make([]time.Time, 0, whole)
	for i := whole; i >= 1; i-- {
		starts = append(starts, newestEnd.Add(-time.Duration(i)*interval))
	}
	return starts
}

// BucketEnd returns the half-open end of the bucket starting at start.
// Params: bucket start and alert interval.
// Returns: exclusive bucket end time.
func BucketEnd(start time.Time, interval time.Duration) time.Time {
	return start.Add(interval)
}

package engine

import (
	"time"

	"alerteval/internal/domain"
)

// BucketValues maps group key to the observed value of one planned bucket.
// Params: absent keys mean no matching data for that group in that bucket.
// Returns: per-bucket fetch result consumed by ResolveGroups.
type BucketValues map[domain.GroupKey]float64

// GroupResult is the finalized evaluation outcome for one group.
// Params: group identity, resulting state, breach count, and ordered trailing
// observations with zero-filled gaps.
// Returns: immutable per-group result passed to history writes and notifications.
type GroupResult struct {
	Group       domain.GroupKey
	State       domain.AlertState
	BreachCount int
	LastValues  []domain.BucketObservation
}

// ResolveGroups computes the new state for every observed-or-previously-known group.
// Params: alert threshold settings, planned bucket starts (oldest to newest),
// per-bucket observed values positionally matched to the starts, and the set of
// groups known from earlier history rows.
// Returns: one result per group; buckets where a group produced no rows are
// zero-filled, so a disappeared group naturally resolves when nothing breaches.
func ResolveGroups(
	alert domain.Alert,
	buckets []time.Time,
	observed []BucketValues,
	known map[domain.GroupKey]domain.AlertState,
) map[domain.GroupKey]GroupResult {
	groups := make(map[domain.GroupKey]struct{})
	for _, bucket := range observed {
		for group := range bucket {
			groups[group] = struct{}{}
		}
	}
	for group := range known {
		groups[group] = struct{}{}
	}
	if !alert.Grouped() {
		groups[domain.SyntheticGroup] = struct{}{}
	}

	results := make(map[domain.GroupKey]GroupResult, len(groups))
	for group := range groups {
		values := make([]domain.BucketObservation, 0, len(buckets))
		breaches := 0
		for i, start := range buckets {
			value := 0.0
			if i < len(observed) {
				value = observed[i][group]
			}
			values = append(values, domain.BucketObservation{BucketStart: start, Value: value})
			if Breaches(alert.Mode, alert.Threshold, value) {
				breaches++
			}
		}

		state := domain.AlertStateOK
		if breaches > 0 {
			state = domain.AlertStateAlert
		}
		results[group] = GroupResult{
			Group:       group,
			State:       state,
			BreachCount: breaches,
			LastValues:  values,
		}
	}
	return results
}

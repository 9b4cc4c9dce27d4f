package domain

import (
	"errors"
	"strings"
	"time"
)

// GroupKey is the stable string form of one group-by value tuple.
// Params: "dim:value" pairs joined by commas; empty for the synthetic group.
// Returns: map key used across resolver, store, and notifications.
type GroupKey string

// SyntheticGroup is the single implicit group of an ungrouped alert.
const SyntheticGroup GroupKey = ""

// BuildGroupKey builds the canonical group key from dimension/value pairs.
// Params: group-by dimensions and the observed values, positionally matched.
// Returns: stable "dim:value" key; SyntheticGroup when no dimensions are set.
func BuildGroupKey(dims, values []string) GroupKey {
	if len(dims) == 0 {
		return SyntheticGroup
	}
	parts := make([]string, 0, len(dims))
	for i, dim := range dims {
		value := ""
		if i < len(values) {
			value = values[i]
		}
		parts = append(parts, dim+":"+value)
	}
	return GroupKey(strings.Join(parts, ","))
}

// Label renders the group key for human-readable output.
// Params: none.
// Returns: group key text or empty string for the synthetic group.
func (g GroupKey) Label() string {
	return string(g)
}

// BucketObservation is one evaluated bucket's observed value.
// Params: bucket start time and aggregated value (0 when no data matched).
// Returns: one entry of a history row's trailing-window evidence.
type BucketObservation struct {
	BucketStart time.Time `json:"bucket_start"`
	Value       float64   `json:"value"`
}

// AlertHistory is one immutable evaluation checkpoint for one alert and group.
// Params: owning alert, bucket-end timestamp, outcome, and per-bucket evidence.
// Returns: append-only row; CreatedAt is always a bucket end, never wall clock.
type AlertHistory struct {
	ID          string              `json:"id"`
	AlertID     string              `json:"alert_id"`
	CreatedAt   time.Time           `json:"created_at"`
	State       AlertState          `json:"state"`
	BreachCount int                 `json:"breach_count"`
	LastValues  []BucketObservation `json:"last_values"`
	Group       GroupKey            `json:"group,omitempty"`
}

// Validate validates one history row before it is persisted.
// Params: row fields assembled by the evaluator.
// Returns: validation error when the row violates the append-only contract.
func (h AlertHistory) Validate() error {
	if strings.TrimSpace(h.AlertID) == "" {
		return errors.New("alert_id is required")
	}
	if h.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}
	switch h.State {
	case AlertStateOK, AlertStateAlert:
	default:
		return errors.New("state must be OK or ALERT")
	}
	if h.BreachCount < 0 {
		return errors.New("breach_count must be >=0")
	}
	if len(h.LastValues) == 0 {
		return errors.New("last_values must cover at least one bucket")
	}
	for i := 1; i < len(h.LastValues); i++ {
		if !h.LastValues[i-1].BucketStart.Before(h.LastValues[i].BucketStart) {
			return errors.New("last_values must be ordered oldest to newest")
		}
	}
	return nil
}

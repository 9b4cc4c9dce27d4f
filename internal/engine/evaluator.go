package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"alerteval/internal/domain"
	"alerteval/internal/history"
	"alerteval/internal/metrics"
	"alerteval/internal/source"
	"alerteval/internal/state"

	"github.com/google/uuid"
)

// ErrInvalidAlert marks a malformed alert configuration; the run is aborted
// before any fetch and other alerts in the sweep are unaffected.
var ErrInvalidAlert = errors.New("invalid alert configuration")

// Outcome summarizes one evaluation run.
// Params: resulting overall state and side-effect counters.
// Returns: entry-point result; Skipped marks the idempotent no-op path.
type Outcome struct {
	State             domain.AlertState
	HistoriesWritten  int
	NotificationsSent int
	Skipped           bool
}

// Notice is one outbound notification request for one group result.
// Params: alert snapshot, finalized group result, resolution flag, and the
// evaluated time range.
// Returns: dispatcher input; Resolved marks an ALERT-to-OK transition notice.
type Notice struct {
	Alert    domain.Alert
	Result   GroupResult
	Resolved bool
	Range    source.TimeRange
}

// Notifier delivers one notice to all resolved channels.
// Params: context and assembled notice.
// Returns: number of successful channel sends; dispatch failures are handled
// locally and never affect the history write.
type Notifier interface {
	Notify(ctx context.Context, notice Notice) int
}

// Evaluator runs the fetch/resolve/write/notify pipeline for one alert.
// Params: store, checkpoint lookup, data source, and notifier collaborators.
// Returns: the engine's single entry point.
type Evaluator struct {
	store         state.Store
	lookup        *history.Lookup
	source        source.DataSource
	notifier      Notifier
	logger        *slog.Logger
	backfillDepth int
}

// NewEvaluator builds the evaluator.
// Params: store, data source, notifier (may be nil), logger, and backfill
// depth (values below 1 fall back to DefaultBackfillDepth).
// Returns: initialized evaluator.
func NewEvaluator(store state.Store, src source.DataSource, notifier Notifier, logger *slog.Logger, backfillDepth int) *Evaluator {
	if backfillDepth < 1 {
		backfillDepth = DefaultBackfillDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		store:         store,
		lookup:        history.NewLookup(store),
		source:        src,
		notifier:      notifier,
		logger:        logger,
		backfillDepth: backfillDepth,
	}
}

// EvaluateAlert evaluates one alert at one point in time.
// Params: context for fetch deadlines, alert definition, and current time.
// Returns: run outcome; an idempotent no-op when the skip-guard fires, an
// error with no partial writes when the fetch or a write fails.
func (e *Evaluator) EvaluateAlert(ctx context.Context, alert domain.Alert, now time.Time) (Outcome, error) {
	started := time.Now()
	defer func() {
		metrics.EvaluationDuration.Observe(time.Since(started).Seconds())
	}()

	if err := alert.Validate(); err != nil {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultInvalid).Inc()
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidAlert, err)
	}

	checkpoints, err := e.lookup.LatestCheckpoints(ctx, []string{alert.ID}, now)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
		return Outcome{}, fmt.Errorf("lookup checkpoint: %w", err)
	}

	// Alert-wide skip-guard: the newest checkpoint across all groups inside the
	// current bucket window means this window was already evaluated.
	var checkpoint time.Time
	if row, ok := checkpoints[alert.ID]; ok {
		checkpoint = row.CreatedAt
		if now.Sub(checkpoint) < alert.Interval {
			metrics.EvaluationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
			return Outcome{State: alert.State, Skipped: true}, nil
		}
	}

	plan := PlanBuckets(alert.Interval, checkpoint, now, e.backfillDepth)
	if len(plan) == 0 {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
		return Outcome{State: alert.State, Skipped: true}, nil
	}

	known, err := e.store.FindGroupHistories(ctx, alert.ID, now)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
		return Outcome{}, fmt.Errorf("lookup group histories: %w", err)
	}
	knownStates := make(map[domain.GroupKey]domain.AlertState, len(known))
	for group, row := range known {
		knownStates[group] = row.State
	}

	observed, err := e.fetch(ctx, alert, plan)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
		metrics.FetchErrorsTotal.Inc()
		return Outcome{}, err
	}

	results := ResolveGroups(alert, plan, observed, knownStates)

	// The CAS expectation comes from the marker itself, not the newest history
	// row. A run that failed between its claim and its writes leaves the marker
	// ahead of history; planning from history then replays the lost window and
	// the marker value still matches, so the rerun repairs it instead of
	// conflicting forever.
	marker, err := e.store.Checkpoint(ctx, alert.ID)
	if err != nil {
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
		return Outcome{}, fmt.Errorf("read checkpoint marker: %w", err)
	}

	newestEnd := BucketEnd(plan[len(plan)-1], alert.Interval)
	if err := e.store.AdvanceCheckpoint(ctx, alert.ID, marker, newestEnd); err != nil {
		if errors.Is(err, state.ErrConflict) {
			// Another evaluator claimed this window; back off without writes.
			e.logger.Warn("checkpoint conflict, skipping run", "alert_id", alert.ID, "window_end", newestEnd)
			metrics.EvaluationsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
			return Outcome{State: alert.State, Skipped: true}, nil
		}
		metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
		return Outcome{}, fmt.Errorf("advance checkpoint: %w", err)
	}

	outcome := Outcome{State: domain.AlertStateOK}
	for _, group := range sortedGroups(results) {
		result := results[group]
		row := domain.AlertHistory{
			ID:          uuid.NewString(),
			AlertID:     alert.ID,
			CreatedAt:   newestEnd,
			State:       result.State,
			BreachCount: result.BreachCount,
			LastValues:  result.LastValues,
			Group:       group,
		}
		if err := e.store.InsertHistory(ctx, row); err != nil {
			metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
			return Outcome{}, fmt.Errorf("insert history for group %q: %w", group, err)
		}
		outcome.HistoriesWritten++
		metrics.HistoriesWrittenTotal.Inc()

		if result.State == domain.AlertStateAlert {
			outcome.State = domain.AlertStateAlert
		}
	}

	if outcome.State != alert.State {
		if err := e.store.UpdateAlertState(ctx, alert.ID, outcome.State); err != nil {
			metrics.EvaluationsTotal.WithLabelValues(metrics.ResultError).Inc()
			return Outcome{}, fmt.Errorf("update alert state: %w", err)
		}
	}

	evaluated := source.TimeRange{Start: plan[0], End: newestEnd}
	outcome.NotificationsSent = e.notifyResults(ctx, alert, results, knownStates, evaluated)

	metrics.EvaluationsTotal.WithLabelValues(metrics.ResultEvaluated).Inc()
	e.logger.Debug("alert evaluated",
		"alert_id", alert.ID,
		"state", outcome.State,
		"buckets", len(plan),
		"histories", outcome.HistoriesWritten,
		"notifications", outcome.NotificationsSent,
	)
	return outcome, nil
}

// fetch queries the data source for every planned bucket.
// Params: alert and planned bucket starts.
// Returns: per-bucket group values positionally matched to the plan; any
// failed bucket aborts the run so no partial state is written.
func (e *Evaluator) fetch(ctx context.Context, alert domain.Alert, plan []time.Time) ([]BucketValues, error) {
	observed := make([]BucketValues, len(plan))
	for i, start := range plan {
		bucket := source.TimeRange{Start: start, End: BucketEnd(start, alert.Interval)}
		rows, err := e.source.Query(ctx, alert.Query, bucket, alert.GroupBy)
		if err != nil {
			return nil, fmt.Errorf("fetch bucket %s: %w", start.Format(time.RFC3339), err)
		}
		values := make(BucketValues, len(rows))
		for _, row := range rows {
			values[row.Group] += row.Value
		}
		observed[i] = values
	}
	return observed, nil
}

// notifyResults emits group notifications for one finished run.
// Params: alert, finalized group results, prior group states, and the
// evaluated range.
// Returns: total successful channel sends; every ALERT result emits, an OK
// result emits a resolution notice only when the group's latest prior row was
// ALERT.
func (e *Evaluator) notifyResults(
	ctx context.Context,
	alert domain.Alert,
	results map[domain.GroupKey]GroupResult,
	knownStates map[domain.GroupKey]domain.AlertState,
	evaluated source.TimeRange,
) int {
	if e.notifier == nil {
		return 0
	}

	sent := 0
	for _, group := range sortedGroups(results) {
		result := results[group]
		switch {
		case result.State == domain.AlertStateAlert:
			sent += e.notifier.Notify(ctx, Notice{Alert: alert, Result: result, Range: evaluated})
		case knownStates[group] == domain.AlertStateAlert:
			sent += e.notifier.Notify(ctx, Notice{Alert: alert, Result: result, Resolved: true, Range: evaluated})
		}
	}
	return sent
}

// sortedGroups returns result group keys in deterministic order.
// Params: per-group result map.
// Returns: sorted key slice.
func sortedGroups(results map[domain.GroupKey]GroupResult) []domain.GroupKey {
	groups := make([]domain.GroupKey, 0, len(results))
	for group := range results {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

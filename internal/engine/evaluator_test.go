package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"alerteval/internal/domain"
	"alerteval/internal/source"
	"alerteval/internal/state"
)

type captureNotifier struct {
	notices []Notice
}

func (n *captureNotifier) Notify(_ context.Context, notice Notice) int {
	n.notices = append(n.notices, notice)
	return 1
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func evalAlert(groupBy []string) domain.Alert {
	return domain.Alert{
		ID:        "alert-e2e",
		Name:      "error spike",
		Mode:      domain.ComparisonAbove,
		Threshold: 1,
		Interval:  5 * time.Minute,
		GroupBy:   groupBy,
		Query:     domain.QueryDescriptor{SourceID: "src-1", Query: "level:error"},
		Details: domain.AlertDetails{
			Kind:        domain.DetailKindSavedSearch,
			SavedSearch: &domain.SavedSearchDetails{SearchID: "search-1", Query: "level:error"},
		},
		State: domain.AlertStateOK,
	}
}

func TestEvaluateAlertLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	notifier := &captureNotifier{}
	evaluator := NewEvaluator(store, src, notifier, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	src.AddEvent(time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC), nil, 1)

	// First run at 22:12 evaluates the 22:05-22:10 bucket and fires.
	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("first run failed: %+v", err)
	}
	if outcome.Skipped || outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected ALERT outcome, got %+v", outcome)
	}
	if outcome.HistoriesWritten != 1 {
		t.Fatalf("expected one history row, got %d", outcome.HistoriesWritten)
	}
	if len(notifier.notices) != 1 || notifier.notices[0].Resolved {
		t.Fatalf("expected one alert notice, got %+v", notifier.notices)
	}
	rows := store.Histories(alert.ID)
	if len(rows) != 1 || !rows[0].CreatedAt.Equal(time.Date(2026, 8, 31, 22, 10, 0, 0, time.UTC)) {
		t.Fatalf("expected checkpoint at bucket end 22:10, got %+v", rows)
	}
	alert.State = outcome.State

	// A repeat inside the same interval is an idempotent no-op.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 14, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("repeat run failed: %+v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("expected skip within the interval, got %+v", outcome)
	}
	if len(store.Histories(alert.ID)) != 1 {
		t.Fatalf("expected no extra history rows after skip")
	}

	// 22:16 evaluates the silent 22:10-22:15 bucket and resolves.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("resolve run failed: %+v", err)
	}
	if outcome.State != domain.AlertStateOK || outcome.HistoriesWritten != 1 {
		t.Fatalf("expected OK with one history row, got %+v", outcome)
	}
	if len(notifier.notices) != 2 || !notifier.notices[1].Resolved {
		t.Fatalf("expected resolution notice, got %+v", notifier.notices)
	}
	if stored, ok := store.AlertState(alert.ID); !ok || stored != domain.AlertStateOK {
		t.Fatalf("expected stored alert state OK, got %q (found=%v)", stored, ok)
	}
	alert.State = outcome.State

	// 22:20 stays OK and emits no further notice.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 20, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("steady run failed: %+v", err)
	}
	if outcome.Skipped || outcome.State != domain.AlertStateOK {
		t.Fatalf("expected OK outcome, got %+v", outcome)
	}
	if len(notifier.notices) != 2 {
		t.Fatalf("expected no notice for a steady OK group, got %+v", notifier.notices)
	}
}

func TestEvaluateAlertStaysFiringAcrossWindows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	notifier := &captureNotifier{}
	evaluator := NewEvaluator(store, src, notifier, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	for _, at := range []time.Time{
		time.Date(2026, 8, 31, 22, 6, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC),
		time.Date(2026, 8, 31, 22, 8, 0, 0, time.UTC),
	} {
		src.AddEvent(at, nil, 1)
	}
	src.AddEvent(time.Date(2026, 8, 31, 22, 11, 0, 0, time.UTC), nil, 1)

	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("first run failed: %+v", err)
	}
	if outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected ALERT from the 22:05 bucket, got %+v", outcome)
	}
	alert.State = outcome.State

	// The 22:10 bucket still carries one matching event, so the second
	// window keeps the alert firing.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second run failed: %+v", err)
	}
	if outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected ALERT to persist, got %+v", outcome)
	}
	rows := store.Histories(alert.ID)
	latest := rows[len(rows)-1]
	if latest.BreachCount != 1 || !latest.CreatedAt.Equal(time.Date(2026, 8, 31, 22, 15, 0, 0, time.UTC)) {
		t.Fatalf("expected one breach checkpointed at 22:15, got %+v", latest)
	}

	// The silent 22:15 bucket resolves the alert.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 20, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("third run failed: %+v", err)
	}
	if outcome.State != domain.AlertStateOK {
		t.Fatalf("expected OK after a silent bucket, got %+v", outcome)
	}
	last := notifier.notices[len(notifier.notices)-1]
	if !last.Resolved || last.Result.BreachCount != 0 {
		t.Fatalf("expected a zero-breach resolution notice, got %+v", last)
	}
}

func TestEvaluateAlertBackfillsMissedBuckets(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	notifier := &captureNotifier{}
	evaluator := NewEvaluator(store, src, notifier, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	src.AddEvent(time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC), nil, 1)

	if _, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC)); err != nil {
		t.Fatalf("seed run failed: %+v", err)
	}
	alert.State = domain.AlertStateAlert

	// The evaluator was down for three intervals; the next event lands in
	// the middle missed bucket.
	src.AddEvent(time.Date(2026, 8, 31, 22, 17, 0, 0, time.UTC), nil, 2)

	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 26, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("backfill run failed: %+v", err)
	}
	if outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected ALERT from a missed-bucket breach, got %+v", outcome)
	}

	rows := store.Histories(alert.ID)
	latest := rows[len(rows)-1]
	if len(latest.LastValues) != 3 {
		t.Fatalf("expected three trailing observations, got %+v", latest.LastValues)
	}
	if latest.LastValues[0].Value != 0 || latest.LastValues[1].Value != 2 || latest.LastValues[2].Value != 0 {
		t.Fatalf("expected trailing values [0 2 0], got %+v", latest.LastValues)
	}
	if latest.BreachCount != 1 {
		t.Fatalf("expected one breached bucket, got %d", latest.BreachCount)
	}
	if !latest.CreatedAt.Equal(time.Date(2026, 8, 31, 22, 25, 0, 0, time.UTC)) {
		t.Fatalf("expected checkpoint at 22:25, got %s", latest.CreatedAt)
	}
}

func TestEvaluateAlertGroupDisappearanceResolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	notifier := &captureNotifier{}
	evaluator := NewEvaluator(store, src, notifier, testLogger(), DefaultBackfillDepth)

	alert := evalAlert([]string{"host"})
	src.AddEvent(time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC), []string{"a"}, 1)
	src.AddEvent(time.Date(2026, 8, 31, 22, 8, 0, 0, time.UTC), []string{"b"}, 1)

	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("first run failed: %+v", err)
	}
	if outcome.HistoriesWritten != 2 || outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected two firing group rows, got %+v", outcome)
	}
	alert.State = outcome.State

	// Only host a keeps producing; host b goes silent and must resolve.
	src.AddEvent(time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC), []string{"a"}, 1)

	notifier.notices = nil
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 17, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("second run failed: %+v", err)
	}
	if outcome.HistoriesWritten != 2 {
		t.Fatalf("expected a row for both known groups, got %+v", outcome)
	}
	if outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected overall ALERT while host a still breaches, got %+v", outcome)
	}

	groups, err := store.FindGroupHistories(ctx, alert.ID, time.Date(2026, 8, 31, 22, 17, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("group lookup failed: %+v", err)
	}
	if groups["host:a"].State != domain.AlertStateAlert {
		t.Fatalf("expected host:a still ALERT, got %+v", groups["host:a"])
	}
	if groups["host:b"].State != domain.AlertStateOK {
		t.Fatalf("expected host:b resolved, got %+v", groups["host:b"])
	}

	if len(notifier.notices) != 2 {
		t.Fatalf("expected one alert and one resolution notice, got %+v", notifier.notices)
	}
	sawResolved := false
	for _, notice := range notifier.notices {
		if notice.Resolved {
			sawResolved = true
			if notice.Result.Group != domain.GroupKey("host:b") {
				t.Fatalf("expected resolution notice for host:b, got %+v", notice)
			}
		}
	}
	if !sawResolved {
		t.Fatalf("expected a resolution notice for the disappeared group")
	}
}

func TestEvaluateAlertFetchErrorWritesNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	evaluator := NewEvaluator(store, src, nil, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	src.SetError(errors.New("source unavailable"))

	if _, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected fetch error to surface")
	}
	if len(store.Histories(alert.ID)) != 0 {
		t.Fatalf("expected no history writes after a failed fetch")
	}

	// The window stays claimable: clearing the failure evaluates it in full.
	src.SetError(nil)
	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("retry after fetch error failed: %+v", err)
	}
	if outcome.Skipped || outcome.HistoriesWritten != 1 {
		t.Fatalf("expected full evaluation after retry, got %+v", outcome)
	}
}

// flakyStore fails a fixed number of history inserts before delegating.
type flakyStore struct {
	*state.MemoryStore
	insertFailures int
}

func (s *flakyStore) InsertHistory(ctx context.Context, row domain.AlertHistory) error {
	if s.insertFailures > 0 {
		s.insertFailures--
		return errors.New("transient write failure")
	}
	return s.MemoryStore.InsertHistory(ctx, row)
}

func TestEvaluateAlertRecoversFromFailedHistoryWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mem := state.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem, insertFailures: 1}
	src := source.NewMemory()
	evaluator := NewEvaluator(store, src, nil, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	src.AddEvent(time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC), nil, 1)

	// The first run claims the window but the history write fails, leaving
	// the checkpoint marker ahead of the newest history row.
	if _, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC)); err == nil {
		t.Fatalf("expected the failed history write to surface")
	}
	if len(mem.Histories(alert.ID)) != 0 {
		t.Fatalf("expected no rows after the failed write")
	}

	// The rerun must repair the stranded window, not conflict on it.
	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("rerun after failed write failed: %+v", err)
	}
	if outcome.Skipped || outcome.HistoriesWritten != 1 {
		t.Fatalf("expected the rerun to evaluate the window, got %+v", outcome)
	}
	rows := mem.Histories(alert.ID)
	if len(rows) != 1 || !rows[0].CreatedAt.Equal(time.Date(2026, 8, 31, 22, 10, 0, 0, time.UTC)) {
		t.Fatalf("expected the repaired row checkpointed at 22:10, got %+v", rows)
	}
	alert.State = outcome.State

	// Later windows proceed normally instead of skipping forever.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("follow-up run failed: %+v", err)
	}
	if outcome.Skipped || outcome.HistoriesWritten != 1 {
		t.Fatalf("expected the next window to evaluate, got %+v", outcome)
	}
	if len(mem.Histories(alert.ID)) != 2 {
		t.Fatalf("expected two rows after the follow-up window, got %+v", mem.Histories(alert.ID))
	}
}

func TestEvaluateAlertSkipGuardIsAlertWide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := state.NewMemoryStore()
	src := source.NewMemory()
	evaluator := NewEvaluator(store, src, nil, testLogger(), DefaultBackfillDepth)

	alert := evalAlert([]string{"host"})
	src.AddEvent(time.Date(2026, 8, 31, 22, 7, 0, 0, time.UTC), []string{"a"}, 1)

	outcome, err := evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 12, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("first run failed: %+v", err)
	}
	if outcome.HistoriesWritten != 1 {
		t.Fatalf("expected one row for host a, got %+v", outcome)
	}
	alert.State = outcome.State

	// A new group starts breaching inside the current window. The checkpoint
	// is fresh for the whole alert, so nothing is evaluated for host b yet.
	src.AddEvent(time.Date(2026, 8, 31, 22, 11, 0, 0, time.UTC), []string{"b"}, 1)

	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 14, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("within-window run failed: %+v", err)
	}
	if !outcome.Skipped {
		t.Fatalf("expected the fresh checkpoint to skip every group, got %+v", outcome)
	}
	if len(store.Histories(alert.ID)) != 1 {
		t.Fatalf("expected no new rows while skipped, got %+v", store.Histories(alert.ID))
	}

	// Once the window closes, the new group is picked up.
	outcome, err = evaluator.EvaluateAlert(ctx, alert, time.Date(2026, 8, 31, 22, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("next-window run failed: %+v", err)
	}
	if outcome.Skipped || outcome.State != domain.AlertStateAlert {
		t.Fatalf("expected host b to fire in the next window, got %+v", outcome)
	}
	groups, err := store.FindGroupHistories(ctx, alert.ID, time.Date(2026, 8, 31, 22, 16, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("group lookup failed: %+v", err)
	}
	if groups["host:b"].State != domain.AlertStateAlert {
		t.Fatalf("expected host:b ALERT after the window closed, got %+v", groups["host:b"])
	}
}

func TestEvaluateAlertInvalidConfiguration(t *testing.T) {
	t.Parallel()

	store := state.NewMemoryStore()
	evaluator := NewEvaluator(store, source.NewMemory(), nil, testLogger(), DefaultBackfillDepth)

	alert := evalAlert(nil)
	alert.Interval = 0

	_, err := evaluator.EvaluateAlert(context.Background(), alert, time.Now().UTC())
	if !errors.Is(err, ErrInvalidAlert) {
		t.Fatalf("expected ErrInvalidAlert, got %+v", err)
	}
	if len(store.Histories(alert.ID)) != 0 {
		t.Fatalf("expected no writes for an invalid alert")
	}
}

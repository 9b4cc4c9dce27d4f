package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"alerteval/internal/clock"
	"alerteval/internal/domain"
	"alerteval/internal/engine"
)

// Sweeper runs one evaluation pass over all configured alerts.
// Params: alert definitions, evaluator, clock, and concurrency cap.
// Returns: periodic sweep driver; alerts are independent and evaluated
// concurrently with no shared mutable state beyond the store.
type Sweeper struct {
	mu            sync.Mutex
	alerts        []domain.Alert
	evaluator     *engine.Evaluator
	clk           clock.Clock
	logger        *slog.Logger
	maxConcurrent int
}

// NewSweeper builds the sweeper.
// Params: alerts in config order, evaluator, clock, logger, and concurrency
// cap (values below 1 run sequentially).
// Returns: initialized sweeper.
func NewSweeper(alerts []domain.Alert, evaluator *engine.Evaluator, clk clock.Clock, logger *slog.Logger, maxConcurrent int) *Sweeper {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		alerts:        alerts,
		evaluator:     evaluator,
		clk:           clk,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// Sweep evaluates every alert once at the current clock time.
// Params: context for fetch deadlines and shutdown.
// Returns: whole pass finished; per-alert failures are logged and never stop
// the sweep, a fetch failure leaves that alert's checkpoint un-advanced so the
// next sweep retries the same windows.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clk.Now()
	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup

	for index := range s.alerts {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer func() { <-sem }()
			s.evaluateOne(ctx, index, now)
		}(index)
	}
	wg.Wait()
}

// evaluateOne evaluates one alert and records its new overall state.
// Params: alert index in the sweep set and sweep timestamp.
// Returns: cached alert state updated on successful runs.
func (s *Sweeper) evaluateOne(ctx context.Context, index int, now time.Time) {
	s.mu.Lock()
	alert := s.alerts[index]
	s.mu.Unlock()

	outcome, err := s.evaluator.EvaluateAlert(ctx, alert, now)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidAlert) {
			s.logger.Warn("alert configuration is invalid", "alert_id", alert.ID, "error", err.Error())
			return
		}
		s.logger.Error("alert evaluation failed", "alert_id", alert.ID, "error", err.Error())
		return
	}
	if outcome.Skipped {
		return
	}

	s.mu.Lock()
	s.alerts[index].State = outcome.State
	s.mu.Unlock()
}

// AlertState reads the cached overall state of one alert.
// Params: alert id.
// Returns: cached state and existence flag.
func (s *Sweeper) AlertState(alertID string) (domain.AlertState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, alert := range s.alerts {
		if alert.ID == alertID {
			return alert.State, true
		}
	}
	return "", false
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alerteval/internal/clock"
	"alerteval/internal/config"
	"alerteval/internal/engine"
	"alerteval/internal/logging"
	"alerteval/internal/notify"
	"alerteval/internal/source"
	"alerteval/internal/state"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable evaluation service.
type Service struct {
	cfg       config.Config
	logger    *slog.Logger
	closeLog  func()
	store     state.Store
	sweeper   *Sweeper
	httpSrv   *http.Server
	readyFlag atomic.Bool
	clock     clock.Clock
}

// NewService builds the service instance from a validated config.
// Params: config snapshot and clock implementation.
// Returns: initialized service or setup error.
func NewService(cfg config.Config, clk clock.Clock) (*Service, error) {
	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	src, err := buildSource(cfg)
	if err != nil {
		closeLog()
		_ = store.Close()
		return nil, err
	}

	alerts, err := cfg.Alerts()
	if err != nil {
		closeLog()
		_ = store.Close()
		return nil, err
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, cfg.Service.BaseURL, logger)
	evaluator := engine.NewEvaluator(store, src, dispatcher, logger, cfg.Service.BackfillDepth)
	sweeper := NewSweeper(alerts, evaluator, clk, logger, cfg.Service.MaxConcurrent)

	service := &Service{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		store:    store,
		sweeper:  sweeper,
		clock:    clk,
	}
	service.buildHTTPServer()
	return service, nil
}

// buildStore builds the configured state backend.
// Params: config snapshot.
// Returns: store implementation or setup error.
func buildStore(cfg config.Config) (state.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		return state.NewMemoryStore(), nil
	case config.StoreBackendNATS:
		return state.NewNATSStore(cfg.Store.NATS)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

// buildSource builds the configured data source.
// Params: config snapshot.
// Returns: data source implementation or setup error.
func buildSource(cfg config.Config) (source.DataSource, error) {
	switch cfg.Source.Kind {
	case config.SourceKindMemory:
		return source.NewMemory(), nil
	case config.SourceKindHTTP:
		return source.NewHTTPSource(cfg.Source.Endpoint, cfg.Source.Token, time.Duration(cfg.Source.TimeoutSec)*time.Second), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

// buildHTTPServer wires health/ready/metrics endpoints.
// Params: none.
// Returns: http server stored on the service.
func (s *Service) buildHTTPServer() {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Service.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Service.ReadyPath, func(w http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle(s.cfg.Service.MetricsPath, promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Service.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the sweep loop and blocks until shutdown.
// Params: root context for service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	shutdownCtx, shutdownCancel := context.WithCancel(ctx)
	defer shutdownCancel()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", "listen", s.cfg.Service.Listen)
		err := s.httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	sweepInterval := time.Duration(s.cfg.Service.SweepIntervalSec) * time.Second
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	go func() {
		// First pass immediately so a fresh start does not wait a full interval.
		s.sweeper.Sweep(shutdownCtx)
		for {
			select {
			case <-shutdownCtx.Done():
				return
			case <-ticker.C:
				s.sweeper.Sweep(shutdownCtx)
			}
		}
	}()

	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("http server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
		markErr(fmt.Errorf("http shutdown: %w", err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

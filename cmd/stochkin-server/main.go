package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/daniacca/stochkin/internal/logging"
	"github.com/daniacca/stochkin/internal/observability"
	"github.com/daniacca/stochkin/internal/storage"
)

func main() {
	cfg, err := loadServerConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stochkin-server: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fmt.Fprintf(os.Stderr, "stochkin-server: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

func run(ctx context.Context, cfg ServerConfig, logger *zap.SugaredLogger) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, logger)
	if err != nil {
		return fmt.Errorf("initialising tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	if cfg.Store == storage.BackendSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("creating sqlite directory: %w", err)
		}
	}
	store, err := storage.NewStore(cfg.Store, cfg.SQLitePath)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("initialising %s store: %w", cfg.Store, err)
	}
	defer func() {
		if err := storage.CloseIfSupported(store); err != nil {
			logger.Warnf("closing store: %v", err)
		}
	}()

	manager := kinetics.NewManager(kinetics.ManagerOptions{
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		Logger:            logger,
		Metrics:           metrics,
		Notifications:     kinetics.NewNotificationManager(cfg.NotifyWorkers, logger),
		Store:             store,
	})
	defer func() {
		if err := manager.Close(); err != nil {
			logger.Warnf("closing run manager: %v", err)
		}
	}()

	if cfg.ModelFile != "" {
		model, err := applyModelFile(manager, cfg.ModelFile, cfg.ModelID)
		if err != nil {
			return fmt.Errorf("loading model file %s: %w", cfg.ModelFile, err)
		}
		logger.Infof("model loaded from file: id=%s name=%s species=%d reactions=%d",
			cfg.ModelID, model.Name(), model.NumSpecies(), model.NumReactions())
	}

	srv := NewServer(manager, metrics, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("stochkin-server listening on %s (store=%s, max_concurrent_runs=%d)",
			cfg.Addr, cfg.Store, cfg.MaxConcurrentRuns)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Infof("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// cmd/passport-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"passport-tracker/internal/access"
	"passport-tracker/internal/api"
	"passport-tracker/internal/common/auth"
	"passport-tracker/internal/common/config"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/observability"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/lifecycle"
	"passport-tracker/internal/notification"
	"passport-tracker/internal/workflow"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	if err := run(cfg, zapLog); err != nil {
		zapLog.Fatal("passport manager stopped with error", zap.Error(err))
	}
	zapLog.Info("passport manager stopped")
}

func run(cfg *config.Config, zapLog *zap.Logger) error {
	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("starting passport manager",
		zap.String("version", version),
		zap.String("environment", cfg.App.Environment),
		zap.String("storeDriver", cfg.Database.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	b, err := openBackends(ctx, cfg, zapLog, log)
	if err != nil {
		return err
	}
	defer b.Close()

	// --- Domain services ---
	gate := access.NewGate(cfg.Workflow.EnforceOfficerScope)
	dispatcher := notification.NewDispatcher(b.store, b.email, b.sms, log)

	var indexer workflow.Indexer
	var searcher lifecycle.Searcher
	if b.index != nil {
		indexer = b.index
		searcher = b.index
	}
	engine := workflow.NewEngine(b.store, gate, dispatcher, indexer, obs, log)

	workload := estimation.NewWorkloadCounter(
		b.store,
		b.cache,
		config.GetDuration(cfg.Estimation.WorkloadCacheTTL),
		cfg.Estimation.DefaultWorkload,
		log,
	)
	estimator := estimation.NewService(newEstimator(cfg), cfg.Estimation.MinimumDays, log)

	svc := lifecycle.NewService(lifecycle.Dependencies{
		Store:          b.store,
		Gate:           gate,
		Engine:         engine,
		Estimator:      estimator,
		Workload:       workload,
		Notifier:       dispatcher,
		Inbox:          dispatcher,
		Searcher:       searcher,
		Indexer:        indexer,
		NumberAttempts: cfg.Workflow.NumberAttempts,
	}, log)

	// --- Job workers ---
	if cfg.Camunda.Enabled {
		workers := startWorkers(cfg, b.zeebe.GetClient(), workerDeps{
			service:    svc,
			store:      b.store,
			engine:     engine,
			dispatcher: dispatcher,
			estimator:  estimator,
			workload:   workload,
		}, obs, zapLog, log)
		defer func() {
			for _, w := range workers {
				w.Stop()
			}
		}()
	} else {
		zapLog.Info("camunda disabled, job workers not started")
	}

	// --- HTTP API ---
	tokens := auth.NewTokenService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Audience)
	router := api.NewRouter(svc, tokens, api.Options{
		Version:        version,
		Checks:         b.readyChecks(),
		RequestTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}, log)

	server := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           router,
		ReadTimeout:       config.GetDuration(cfg.HTTP.ReadTimeout),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      config.GetDuration(cfg.HTTP.WriteTimeout) + time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zapLog.Info("http server listening", zap.String("address", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("shutdown signal received, draining http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newEstimator returns nil when no artifact is configured so every estimate
// goes straight to the fallback table.
func newEstimator(cfg *config.Config) estimation.Estimator {
	if cfg.Estimation.ArtifactLocation == "" {
		return nil
	}
	return estimation.NewArtifactEstimator(
		cfg.Estimation.ArtifactLocation,
		newFetcher(config.GetDuration(cfg.Estimation.ArtifactTimeout)),
	)
}

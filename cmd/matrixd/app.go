package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-matrix/internal/matrix/common/clock"
	"github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/config"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/gateways/httpapi"
	"github.com/haukened/rr-matrix/internal/matrix/infra/metrics"
	"github.com/haukened/rr-matrix/internal/matrix/repos/decisioncache"
	"github.com/haukened/rr-matrix/internal/matrix/repos/pagestore"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules/bloom"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules/bolt"
	"github.com/haukened/rr-matrix/internal/matrix/services/evaluator"
	"github.com/haukened/rr-matrix/internal/matrix/services/policy"
)

const defaultShutdownTimeout = 10 * time.Second

// Application holds all the components of the daemon
type Application struct {
	config   *config.AppConfig
	service  *policy.Service
	registry *prometheus.Registry
	server   *http.Server
}

// loadConfig reads the configuration and configures global logging.
func loadConfig(path string) (*config.AppConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("logging configuration error: %w", err)
	}
	return cfg, nil
}

// buildApplication constructs all components, loads the permanent layer and
// wires the control API.
func buildApplication(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	logger := log.GetLogger()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)

	store, err := bolt.New(cfg.Matrix.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	svc, err := buildService(cfg, store, m, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := svc.Load(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	log.Info(map[string]any{
		"db":          cfg.Matrix.DB,
		"scope_level": cfg.Matrix.ScopeLevel,
		"rules":       svc.Stats().PermanentRules,
	}, "Policy service ready")

	router := httpapi.NewRouter(httpapi.Options{
		Policy:  svc,
		Logger:  logger,
		Metrics: m.Handler(registry),
	})
	return &Application{
		config:   cfg,
		service:  svc,
		registry: registry,
		server: &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}, nil
}

// buildService wires the evaluator, caches and store into a policy service.
func buildService(cfg *config.AppConfig, store rules.Store, m policy.Metrics, logger log.Logger) (*policy.Service, error) {
	defaults, err := evaluator.ParseDefaults(cfg.Matrix.Defaults)
	if err != nil {
		return nil, fmt.Errorf("invalid column defaults: %w", err)
	}
	level, err := domain.ParseScopeLevel(cfg.Matrix.ScopeLevel)
	if err != nil {
		return nil, err
	}

	pages, err := pagestore.New(pagestore.Options{Capacity: cfg.Pages.Capacity})
	if err != nil {
		return nil, fmt.Errorf("failed to create page store: %w", err)
	}
	decisions, err := decisioncache.New(cfg.Decisions.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}

	var seed string
	if cfg.Matrix.RulesFile != "" {
		b, err := os.ReadFile(cfg.Matrix.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		seed = string(b)
	}

	opts := policy.Options{
		Evaluator: evaluator.New(evaluator.Options{
			Defaults:     defaults,
			FilteringOff: !cfg.Matrix.GlobalSwitch,
		}),
		Store:      store,
		Pages:      pages,
		Decisions:  decisions,
		Metrics:    m,
		Logger:     logger,
		Clock:      clock.RealClock{},
		ScopeLevel: level,
		SeedRules:  seed,
		AppName:    appName,
		Version:    version,
	}
	if cfg.Matrix.BloomFPRate > 0 {
		opts.Bloom = bloom.NewFactory()
		opts.BloomFPRate = cfg.Matrix.BloomFPRate
	}
	return policy.New(opts)
}

// openService builds a service for one-shot commands. Callers close it.
func openService(ctx context.Context, configPath string) (*policy.Service, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	store, err := bolt.New(cfg.Matrix.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}
	svc, err := buildService(cfg, store, nil, log.GetLogger())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if err := svc.Load(ctx); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return svc, nil
}

// Run serves the control API and blocks until ctx is cancelled.
func (app *Application) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.server.ListenAndServe()
	}()

	log.Info(map[string]any{
		"address": app.server.Addr,
	}, "Control API started")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.service.Close()
			return fmt.Errorf("failed to serve control API: %w", err)
		}
	}

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error during server shutdown")
	}
	if err := app.service.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error closing rule store")
		return err
	}
	log.Info(nil, "Graceful shutdown completed")
	return nil
}

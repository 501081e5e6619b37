// Marquee - Multi-Source Recommendation Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/marquee/internal/api"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/supervisor"
	"github.com/tomtom215/marquee/internal/supervisor/services"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logger := logging.Logger()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Bool("ai", cfg.AI.Enabled).
		Bool("catalog", cfg.Catalog.Enabled).
		Bool("trending", cfg.Catalog.TrendingEnabled).
		Bool("collaborative", cfg.Collaborative.Enabled).
		Str("event_store", cfg.Events.Store).
		Str("event_publish", cfg.Events.Publish).
		Msg("Starting Marquee")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := buildEventPipeline(ctx, cfg, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event pipeline")
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event pipeline")
		}
	}()

	srcs, err := buildSources(cfg, pipeline.peers, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize providers")
	}

	orch, resultCache, err := buildOrchestrator(cfg, srcs, pipeline.recorder, logger)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize orchestrator")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS allows any origin (CORS_ORIGINS=*); set explicit origins in production")
			break
		}
	}

	mwCfg := api.DefaultMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled

	handler := api.NewHandler(api.HandlerConfig{
		Recommender:    orch,
		Recorder:       pipeline.recorder,
		Analyzer:       pipeline.analyzer,
		Checks:         readinessChecks(pipeline),
		RequestTimeout: cfg.Server.Timeout,
	})
	router := api.NewRouter(handler, api.NewMiddleware(mwCfg))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: cfg.Supervisor.FailureThreshold,
		FailureDecay:     cfg.Supervisor.FailureDecay,
		FailureBackoff:   cfg.Supervisor.FailureBackoff,
		ShutdownTimeout:  cfg.Supervisor.ShutdownTimeout,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	if pipeline.badger != nil {
		tree.AddStorageService(pipeline.badger)
	}
	tree.AddStorageService(pipeline.peers)
	tree.AddPipelineService(pipeline.recorder)
	if pipeline.follower != nil {
		tree.AddPipelineService(pipeline.follower)
	}
	tree.AddServingService(resultCache)
	tree.AddServingService(services.NewHTTPServerService(server, services.HTTPOptions{
		Addr:            server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		DrainDelay:      cfg.Server.DrainDelay,
		OnDrain:         handler.BeginDrain,
	}))

	logging.Info().Int("providers", len(srcs)).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
		err = <-errCh
	case err = <-errCh:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	stats := pipeline.recorder.Stats()
	logging.Info().
		Int64("events_written", stats.Written).
		Int64("events_dropped", stats.Dropped).
		Msg("Marquee stopped")
}

// Mediacache - Playback-Aware Media Cache Staging for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediacache

// Package main is the entry point for the Mediacache server.
//
// Mediacache stages media content from bulk storage onto a fast cache
// device based on Plex playback activity. Plex webhooks drive staging:
// when playback starts, the played content is queued for transfer to the
// cache; when the cache budget fills, the eviction planner frees space by
// removing content that is watched-out or long untouched, never touching
// content protected by an active session.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Store: Open the SQLite database and run migrations
//  3. Session tracker, eviction planner, transfer executor, cache engine
//  4. HTTP Server: webhook ingestion and operational REST API (Chi)
//  5. Supervisor tree: engine layer (worker + pruner) and API layer
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (see the mapping table in internal/config)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Stops the staging worker; an interrupted transfer is resumed from
//     the persistent queue on the next start
//   - Closes the database connection
//
// # Example Usage
//
//	export CACHE_ROOT=/mnt/nvme/plex-cache
//	export ORIGIN_ROOT=/mnt/tank/media
//	export MAX_CACHE_SIZE=400GB
//	./mediacache
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

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/mediacache/internal/api"
	"github.com/tomtom215/mediacache/internal/config"
	"github.com/tomtom215/mediacache/internal/engine"
	"github.com/tomtom215/mediacache/internal/logging"
	"github.com/tomtom215/mediacache/internal/planner"
	"github.com/tomtom215/mediacache/internal/sessions"
	"github.com/tomtom215/mediacache/internal/store"
	"github.com/tomtom215/mediacache/internal/supervisor"
	"github.com/tomtom215/mediacache/internal/supervisor/services"
	"github.com/tomtom215/mediacache/internal/transfer"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Mediacache with supervisor tree")
	logging.Info().
		Str("cache_root", cfg.Cache.Root).
		Str("origin_root", cfg.Cache.OriginRoot).
		Str("max_size", humanize.IBytes(uint64(cfg.Cache.MaxSizeBytes))).
		Str("buffer", humanize.IBytes(uint64(cfg.Cache.BufferBytes))).
		Int("protect_window_minutes", cfg.Cache.ProtectWindowMinutes).
		Str("db_path", cfg.Database.Path).
		Msg("Configuration loaded")

	// Open the persistent store and run migrations
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()
	logging.Info().Msg("Store initialized successfully")

	// Create context for coordinated shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the staging pipeline: tracker -> planner -> executor -> engine
	tracker := sessions.NewTracker(st, cfg.Cache.ProtectWindow())
	pl := planner.New(st, cfg.Cache.Root, cfg.Cache.MaxSizeBytes, cfg.Cache.BufferBytes, cfg.Cache.ProtectWindow())

	// The rsync transport sits behind a circuit breaker so a dead origin
	// mount fails fast instead of piling up hour-long timeouts.
	tr := transfer.NewBreakerTransfer(transfer.NewRsyncTransfer(cfg.Transfer.Tool))
	ex := transfer.NewExecutor(transfer.ExecutorOptions{
		Store:      st,
		Planner:    pl,
		Transfer:   tr,
		CacheRoot:  cfg.Cache.Root,
		OriginRoot: cfg.Cache.OriginRoot,
		Timeout:    cfg.Transfer.Timeout,
		OwnerUID:   cfg.Transfer.OwnerUID,
		OwnerGID:   cfg.Transfer.OwnerGID,
	})
	eng := engine.New(st, ex, cfg.Engine.PollInterval)

	// Prime the cache-size gauge before serving /status
	if _, err := pl.CacheSize(); err != nil {
		logging.Warn().Err(err).Msg("Failed to measure initial cache size")
	}

	// Create supervisor tree with slog adapter for suture logging
	slogLogger := logging.NewSlogLogger()
	tree := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())

	handler := api.NewHandler(cfg, st, tracker, pl, eng)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, cfg.Server.WebhookRateLimit),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Engine layer services
	tree.AddEngineService(services.NewEngineService(eng))
	tree.AddEngineService(services.NewPrunerService(tracker, 15*time.Minute))
	logging.Info().Msg("Cache engine and session pruner added to supervisor tree")

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

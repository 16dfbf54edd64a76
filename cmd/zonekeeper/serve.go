// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

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

	"github.com/spf13/cobra"

	"github.com/tomtom215/zonekeeper/internal/api"
	"github.com/tomtom215/zonekeeper/internal/config"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/supervisor"
	"github.com/tomtom215/zonekeeper/internal/supervisor/services"
	"github.com/tomtom215/zonekeeper/internal/telemetry"
	ws "github.com/tomtom215/zonekeeper/internal/websocket"
	"github.com/tomtom215/zonekeeper/internal/zonefile"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the zone daemon",
		Long:  "serve runs the zone manager on the simulated platform under a supervisor tree, with the admin API when enabled.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logging.Init(cfg.Logging.ToLogging())

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
					cancel()
				case <-ctx.Done():
				}
			}()

			return runServe(ctx, cfg)
		},
	}
}

// runServe runs the daemon until ctx ends.
func runServe(ctx context.Context, cfg *config.Config) error {
	logging.Info().Str("version", version).Msg("Starting ZoneKeeper")

	tracingCfg := cfg.Tracing
	tracingCfg.ServiceVersion = version
	tracer, err := telemetry.NewProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	// Data layer
	tree.AddDataService(services.NewPruneService(eng.events, cfg.Storage.PruneInterval))

	// Engine layer
	if cfg.Zones.Path != "" && cfg.Zones.Watch {
		tree.AddEngineService(zonefile.NewWatcher(cfg.Zones.Path, eng.store, cfg.Zones.Debounce))
		logging.Info().Str("path", cfg.Zones.Path).Msg("Zones file watcher added")
	}

	// API layer
	if cfg.Server.Enabled {
		server, err := newAdminServer(cfg, eng, tree)
		if err != nil {
			return err
		}
		tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	} else {
		logging.Info().Msg("Admin API disabled")
	}

	logging.Info().Int("desired_regions", len(eng.manager.DesiredRegions())).Msg("Starting supervisor tree")
	treeErr := tree.Serve(ctx)
	if errors.Is(treeErr, context.Canceled) {
		treeErr = nil
	}
	if treeErr != nil {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	logging.Info().Msg("ZoneKeeper stopped")
	return treeErr
}

// newAdminServer builds the admin API server and adds its event stream
// services to the api layer.
func newAdminServer(cfg *config.Config, eng *engine, tree *supervisor.SupervisorTree) (*http.Server, error) {
	hub := ws.NewHub()
	tree.AddAPIService(hub)
	tree.AddAPIService(ws.NewRelay(hub, eng.events, eng.store))

	router, err := api.NewRouter(api.Dependencies{
		Zones:         eng.store,
		Engine:        eng.manager,
		Events:        eng.events,
		Platform:      eng.sim,
		Hub:           hub,
		ReporterState: eng.reporterState,
		Version:       version,
	}, api.Config{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		Tracing:           cfg.Tracing.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create admin API: %w", err)
	}

	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}, nil
}

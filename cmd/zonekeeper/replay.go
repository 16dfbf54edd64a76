// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/zonekeeper/internal/config"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/replay"
)

type replayOptions struct {
	zonesPath  string
	scriptPath string
	webhook    bool
	lat, lon   float64
	ssid       string
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a platform callback script against a zones file",
		Long: "replay loads a zones file into in-memory storage, feeds a JSON-lines callback script through " +
			"the simulated platform and prints every request the reporter would send. With --webhook the " +
			"requests go to the configured webhook instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			logging.Init(cfg.Logging.ToLogging())

			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon must be given together")
			}
			if cmd.Flags().Changed("lat") {
				cfg.Platform.Located = true
				cfg.Platform.Latitude = opts.lat
				cfg.Platform.Longitude = opts.lon
			}
			return runReplay(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.zonesPath, "zones", "", "Path to the zones file")
	f.StringVar(&opts.scriptPath, "script", "", "Path to the JSON-lines callback script")
	f.BoolVar(&opts.webhook, "webhook", false, "Send requests to the configured webhook instead of printing them")
	f.Float64Var(&opts.lat, "lat", 0, "Initial device latitude")
	f.Float64Var(&opts.lon, "lon", 0, "Initial device longitude")
	f.StringVar(&opts.ssid, "ssid", "", "Initial Wi-Fi network")
	_ = cmd.MarkFlagRequired("zones")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

// runReplay plays the script on a fresh in-memory engine. In dry-run mode
// each reporter request is written to w as one JSON line.
func runReplay(ctx context.Context, w io.Writer, cfg *config.Config, opts replayOptions) error {
	steps, err := replay.Load(opts.scriptPath)
	if err != nil {
		return err
	}

	cfg.Storage.InMemory = true
	cfg.Zones.Path = opts.zonesPath
	cfg.Zones.Watch = false
	if opts.ssid != "" {
		cfg.Platform.SSID = opts.ssid
	}
	if !opts.webhook {
		cfg.Reporter.DryRun = true
	} else if cfg.Reporter.URL == "" {
		return errors.New("--webhook needs reporter.url or WEBHOOK_URL")
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	// Let the initial sync's state callbacks settle before the first step.
	eng.manager.Wait()

	runErr := replay.NewPlayer(eng.sim, eng.manager.Wait).Run(ctx, steps)

	if eng.dryRun != nil {
		enc := json.NewEncoder(w)
		for _, req := range eng.dryRun.Requests() {
			if err := enc.Encode(req); err != nil {
				return err
			}
		}
	}
	if runErr != nil {
		return fmt.Errorf("replay %s: %w", opts.scriptPath, runErr)
	}
	return nil
}

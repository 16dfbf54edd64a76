// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package logging provides the zerolog-based structured logging used across
// ZoneKeeper.
//
// # Overview
//
// The package provides:
//   - A global zerolog logger configured once with [Init]
//   - JSON output for daemons, console output for the CLI
//   - Context-aware logging with correlation ID propagation
//   - An slog adapter so suture's supervisor events land in zerolog
//   - [EngineLogger], which gives the geofencing pipeline consistent field names
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("zone", key).Msg("Zone imported")
//	logging.Err(err).Msg("Webhook failed")
//
//	ctx = logging.ContextWithNewCorrelationID(ctx)
//	logging.Ctx(ctx).Info().Msg("Processing event")
//
// # Field Conventions
//
// Engine components log with a component field (collector, processor,
// manager, zonestore, reporter, platform). Zone keys are logged under zone,
// region identifiers under region, and trigger descriptions under trigger.
//
// # Thread Safety
//
// The global logger is guarded by a RWMutex and may be reconfigured at any
// time. zerolog.Logger values are safe to copy and share.
package logging

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package logging

import (
	"github.com/rs/zerolog"
)

// EngineLogger gives the geofencing pipeline consistent field names for the
// outcomes it logs over and over: ignored events, submissions, failures and
// monitoring changes.
type EngineLogger struct {
	logger zerolog.Logger
}

// NewEngineLogger creates an EngineLogger for a pipeline component.
func NewEngineLogger(component string) *EngineLogger {
	return &EngineLogger{logger: WithComponent(component)}
}

// NewEngineLoggerWithLogger creates an EngineLogger on top of logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEngineLoggerWithLogger(logger zerolog.Logger, component string) *EngineLogger {
	return &EngineLogger{logger: logger.With().Str("component", component).Logger()}
}

// Logger returns the underlying logger.
func (l *EngineLogger) Logger() *zerolog.Logger {
	return &l.logger
}

// Ignored logs an event the engine decided not to act on.
func (l *EngineLogger) Ignored(trigger, reason, ssid string) {
	l.logger.Info().
		Str("trigger", trigger).
		Str("reason", reason).
		Str("ssid", ssidOrNone(ssid)).
		Msg("Ignoring event")
}

// Received logs an event that passed evaluation.
func (l *EngineLogger) Received(trigger, zone, ssid string) {
	l.logger.Info().
		Str("trigger", trigger).
		Str("zone", zone).
		Str("ssid", ssidOrNone(ssid)).
		Msg("Received event")
}

// Membership logs a zone membership transition.
func (l *EngineLogger) Membership(zone string, before, after bool) {
	l.logger.Debug().
		Str("zone", zone).
		Bool("before", before).
		Bool("after", after).
		Msg("Zone membership updated")
}

// Failed logs a hard failure for an event.
func (l *EngineLogger) Failed(trigger string, err error) {
	l.logger.Error().
		Err(err).
		Str("trigger", trigger).
		Msg("Event processing failed")
}

// Monitoring logs a start or stop of region monitoring.
func (l *EngineLogger) Monitoring(action, region string) {
	l.logger.Info().
		Str("action", action).
		Str("region", region).
		Msg("Region monitoring changed")
}

func ssidOrNone(ssid string) string {
	if ssid == "" {
		return "none"
	}
	return ssid
}

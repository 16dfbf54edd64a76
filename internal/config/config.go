// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package config loads ZoneKeeper configuration with koanf. Values are
// layered defaults, then an optional YAML file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/processor"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/supervisor"
	"github.com/tomtom215/zonekeeper/internal/telemetry"
	"github.com/tomtom215/zonekeeper/internal/validation"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete daemon configuration.
type Config struct {
	Server          ServerConfig            `koanf:"server"`
	Logging         LoggingConfig           `koanf:"logging"`
	Engine          EngineConfig            `koanf:"engine"`
	LocationSources manager.LocationSources `koanf:"location_sources"`
	Storage         StorageConfig           `koanf:"storage"`
	Zones           ZonesConfig             `koanf:"zones"`
	Reporter        reporter.Config         `koanf:"reporter"`
	Platform        platform.Config         `koanf:"platform"`
	Tracing         telemetry.Config        `koanf:"tracing"`
	Supervisor      supervisor.TreeConfig   `koanf:"supervisor"`
}

// ServerConfig holds admin HTTP API settings.
type ServerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"gte=0,lte=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	CORSOrigins []string `koanf:"cors_origins"`

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ToLogging converts to the logging package's configuration.
func (l LoggingConfig) ToLogging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = l.Level
	cfg.Format = l.Format
	cfg.Caller = l.Caller
	return cfg
}

// EngineConfig tunes event processing and region selection.
type EngineConfig struct {
	FreshnessThreshold time.Duration       `koanf:"freshness_threshold" validate:"gt=0"`
	Catalyst           bool                `koanf:"catalyst"`
	MaxOneShot         time.Duration       `koanf:"max_one_shot" validate:"gte=0"`
	Limits             regionfilter.Limits `koanf:"limits"`
}

// Processor returns the processor configuration.
func (e EngineConfig) Processor() processor.Config {
	return processor.Config{
		FreshnessThreshold: e.FreshnessThreshold,
		Catalyst:           e.Catalyst,
		MaxOneShot:         e.MaxOneShot,
	}
}

// StorageConfig holds badger and event log settings.
type StorageConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// EventRetention drops client events older than this. Zero keeps them.
	EventRetention time.Duration `koanf:"event_retention" validate:"gte=0"`
	MaxEvents      int           `koanf:"max_events" validate:"gte=0"`
	PruneInterval  time.Duration `koanf:"prune_interval" validate:"gt=0"`
}

// ZonesConfig locates the zones file. Watch has no effect without a Path.
type ZonesConfig struct {
	Path     string        `koanf:"path"`
	Watch    bool          `koanf:"watch"`
	Debounce time.Duration `koanf:"debounce" validate:"gte=0"`
}

// Validate checks field rules and the few cross-field constraints.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, verr)
	}
	if !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("%w: storage.path is required unless storage.in_memory is set", ErrInvalidConfig)
	}
	if c.Tracing.Enabled && c.Tracing.Exporter == "http" && c.Tracing.Endpoint == "" {
		return fmt.Errorf("%w: tracing.endpoint is required for the http exporter", ErrInvalidConfig)
	}
	if c.Server.Enabled && c.Server.Port == 0 {
		return fmt.Errorf("%w: server.port is required when the admin API is enabled", ErrInvalidConfig)
	}
	return nil
}

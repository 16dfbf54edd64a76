// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/processor"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/reporter"
	"github.com/tomtom215/zonekeeper/internal/supervisor"
	"github.com/tomtom215/zonekeeper/internal/telemetry"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"zonekeeper.yaml",
	"zonekeeper.yml",
	"/etc/zonekeeper/config.yaml",
	"/etc/zonekeeper/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	engine := processor.DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8765,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			RateLimitRequests: 120,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			FreshnessThreshold: engine.FreshnessThreshold,
			MaxOneShot:         engine.MaxOneShot,
			Limits:             regionfilter.DefaultLimits(),
		},
		LocationSources: manager.DefaultLocationSources(),
		Storage: StorageConfig{
			Path:           "/var/lib/zonekeeper",
			EventRetention: 7 * 24 * time.Hour,
			MaxEvents:      10000,
			PruneInterval:  time.Hour,
		},
		Zones: ZonesConfig{
			Watch:    true,
			Debounce: 500 * time.Millisecond,
		},
		Reporter: reporter.DefaultConfig(),
		Platform: platform.DefaultConfig(),
		Tracing: telemetry.Config{
			ServiceName: "zonekeeper",
			Exporter:    "http",
			SampleRatio: 1,
		},
		Supervisor: supervisor.DefaultTreeConfig(),
	}
}

// Load builds the configuration from defaults, the YAML file at path (or
// the first one found when path is empty) and the environment, then
// validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless named explicitly)
	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, the YAML file already yields slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unlisted variables are ignored so unrelated environment cannot leak in.
var envMappings = map[string]string{
	// Admin API
	"http_enabled":          "server.enabled",
	"http_host":             "server.host",
	"http_port":             "server.port",
	"cors_origins":          "server.cors_origins",
	"rate_limit_requests":   "server.rate_limit_requests",
	"rate_limit_window":     "server.rate_limit_window",
	"http_shutdown_timeout": "server.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Engine
	"freshness_threshold": "engine.freshness_threshold",
	"catalyst":            "engine.catalyst",
	"max_one_shot":        "engine.max_one_shot",
	"beacon_region_limit": "engine.limits.beacon",
	"circle_region_limit": "engine.limits.circular",

	// Location sources
	"location_source_zone":               "location_sources.zone",
	"location_source_significant_change": "location_sources.significant_location_change",

	// Storage
	"data_dir":          "storage.path",
	"storage_in_memory": "storage.in_memory",
	"event_retention":   "storage.event_retention",
	"max_events":        "storage.max_events",

	// Zones file
	"zones_file":     "zones.path",
	"zones_watch":    "zones.watch",
	"zones_debounce": "zones.debounce",

	// Reporter
	"webhook_url":        "reporter.url",
	"webhook_timeout":    "reporter.timeout",
	"webhook_rate_limit": "reporter.rate_limit",
	"webhook_burst":      "reporter.burst",
	"webhook_dry_run":    "reporter.dry_run",
	"device_id":          "reporter.device_id",
	"device_name":        "reporter.device_name",

	// Simulated platform
	"platform_ssid":      "platform.ssid",
	"platform_located":   "platform.located",
	"platform_latitude":  "platform.latitude",
	"platform_longitude": "platform.longitude",

	// Tracing
	"tracing_enabled":             "tracing.enabled",
	"tracing_exporter":            "tracing.exporter",
	"otel_exporter_otlp_endpoint": "tracing.endpoint",
	"tracing_sample_ratio":        "tracing.sample_ratio",
	"environment":                 "tracing.environment",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - WEBHOOK_URL -> reporter.url
//   - ZONES_FILE -> zones.path
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

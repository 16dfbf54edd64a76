// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package main is the zonekeeper command.
//
// ZoneKeeper watches a set of zones, decides which regions the platform
// should monitor, and reports zone entries, exits and significant location
// changes to a remote service.
//
// # Commands
//
//	zonekeeper serve     run the supervised daemon with the admin API
//	zonekeeper regions   print the regions a zones file would monitor
//	zonekeeper replay    run a callback script against a zones file
//
// # Configuration
//
// serve loads configuration via Koanf v2 (highest priority wins):
//   - Environment variables (HTTP_PORT, LOG_LEVEL, ZONES_FILE, WEBHOOK_URL, ...)
//   - Config file (--config, CONFIG_PATH, zonekeeper.yaml, /etc/zonekeeper/config.yaml)
//   - Built-in defaults
//
// # Signal Handling
//
// serve shuts down on SIGINT and SIGTERM:
//   - The supervisor tree stops the admin API, zone file watcher and pruner
//   - The zone manager finishes in-flight events
//   - The event log and badger database are closed
//
// # Example Usage
//
//	export ZONES_FILE=/etc/zonekeeper/zones.yaml
//	export WEBHOOK_URL=https://ha.example/api/webhook/abc123
//	zonekeeper serve
//
//	zonekeeper regions --zones zones.yaml --lat 37.33 --lon -122.03
//	zonekeeper replay --zones zones.yaml --script commute.jsonl
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

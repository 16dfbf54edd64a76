// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

/*
Package supervisor runs ZoneKeeper's long-lived services under suture v4.

The tree isolates failures per layer:

	RootSupervisor ("zonekeeper")
	├── DataSupervisor ("data-layer")
	│   └── PruneService (event log retention)
	├── EngineSupervisor ("engine-layer")
	│   └── zonefile.Watcher (if zones.watch)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (if server.enabled)

The zone manager itself is not a supervised service. It is created before the
tree starts and closed after the tree returns, so a restarting service never
races the manager's delegate wiring.

Supervisor events are logged through sutureslog, backed by the zerolog slog
adapter in the logging package:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg.Supervisor)
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewPruneService(events, cfg.Storage.PruneInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	err = tree.Serve(ctx)
*/
package supervisor

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zonekeeper",
		Short:         "Zone geofencing and presence reporting",
		Long:          "zonekeeper monitors zones and reports entries, exits and significant location changes.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "Path to the configuration file")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRegionsCmd())
	root.AddCommand(newReplayCmd())
	return root
}

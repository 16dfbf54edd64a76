// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/regionfilter"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonefile"
)

type regionsOptions struct {
	zonesPath string
	lat, lon  float64
	accuracy  float64
	limits    regionfilter.Limits
	asJSON    bool
}

func newRegionsCmd() *cobra.Command {
	opts := regionsOptions{limits: regionfilter.DefaultLimits()}

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "Print the regions a zones file would monitor",
		Long: "regions applies region selection to the tracking-enabled zones of a zones file and prints " +
			"the result. With --lat and --lon the nearest zones win when there are more than the limits allow.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var loc *geo.Location
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon must be given together")
			}
			if cmd.Flags().Changed("lat") {
				l := geo.NewLocation(opts.lat, opts.lon, time.Now())
				l.HorizontalAccuracy = opts.accuracy
				loc = &l
			}
			return runRegions(cmd.OutOrStdout(), opts, loc)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.zonesPath, "zones", "", "Path to the zones file")
	f.Float64Var(&opts.lat, "lat", 0, "Device latitude")
	f.Float64Var(&opts.lon, "lon", 0, "Device longitude")
	f.Float64Var(&opts.accuracy, "accuracy", 0, "Horizontal accuracy of the device location in meters")
	f.IntVar(&opts.limits.Beacon, "beacon-limit", opts.limits.Beacon, "Maximum monitored beacon regions")
	f.IntVar(&opts.limits.Circular, "circular-limit", opts.limits.Circular, "Maximum monitored circular regions")
	f.BoolVar(&opts.asJSON, "json", false, "Print regions as JSON")
	_ = cmd.MarkFlagRequired("zones")
	return cmd
}

func runRegions(w io.Writer, opts regionsOptions, loc *geo.Location) error {
	file, err := zonefile.Load(opts.zonesPath)
	if err != nil {
		return err
	}

	var enabled []*zone.Zone
	for _, z := range file.ToZones() {
		if z.TrackingEnabled {
			enabled = append(enabled, z)
		}
	}
	regions := regionfilter.New(opts.limits).Regions(enabled, nil, loc)

	if opts.asJSON {
		if regions == nil {
			regions = []zone.Region{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(regions)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tIDENTIFIER\tDETAIL")
	for _, r := range regions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Kind, r.Identifier, regionDetail(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d of %d tracking-enabled zones monitored\n", countZones(regions), len(enabled))
	return err
}

func regionDetail(r zone.Region) string {
	if r.Kind == zone.KindBeacon {
		detail := r.UUID.String()
		if r.Major != nil {
			detail += " major=" + strconv.Itoa(int(*r.Major))
		}
		if r.Minor != nil {
			detail += " minor=" + strconv.Itoa(int(*r.Minor))
		}
		return detail
	}
	return fmt.Sprintf("%.6f,%.6f r=%.0fm", r.Center.Latitude, r.Center.Longitude, r.Radius)
}

// countZones counts distinct zones; a large zone is monitored as several
// regions.
func countZones(regions []zone.Region) int {
	seen := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		seen[r.ZoneKey()] = struct{}{}
	}
	return len(seen)
}

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package event

import (
	"fmt"

	"github.com/tomtom215/zonekeeper/internal/zone"
)

// DiagnosticKind enumerates the pipeline states worth logging.
type DiagnosticKind int

const (
	// DiagnosticError is a platform location error.
	DiagnosticError DiagnosticKind = iota
	// DiagnosticFailedMonitoring is a platform refusal to monitor a region.
	DiagnosticFailedMonitoring
	// DiagnosticStartedMonitoring confirms that monitoring began.
	DiagnosticStartedMonitoring
	// DiagnosticReceived is an event that was accepted.
	DiagnosticReceived
	// DiagnosticIgnored is an event that was classified as not actionable.
	DiagnosticIgnored
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagnosticError:
		return "didError"
	case DiagnosticFailedMonitoring:
		return "didFailMonitoring"
	case DiagnosticStartedMonitoring:
		return "didStartMonitoring"
	case DiagnosticReceived:
		return "didReceive"
	case DiagnosticIgnored:
		return "didIgnore"
	default:
		return "unknown"
	}
}

// Diagnostic is a log-only observation from the collector or processor.
type Diagnostic struct {
	Kind   DiagnosticKind
	Region *zone.Region
	Event  *Event
	Err    error
}

// Errored reports a platform error.
func Errored(err error) Diagnostic {
	return Diagnostic{Kind: DiagnosticError, Err: err}
}

// FailedMonitoring reports that monitoring a region failed.
func FailedMonitoring(region zone.Region, err error) Diagnostic {
	return Diagnostic{Kind: DiagnosticFailedMonitoring, Region: &region, Err: err}
}

// StartedMonitoring reports that monitoring a region began.
func StartedMonitoring(region zone.Region) Diagnostic {
	return Diagnostic{Kind: DiagnosticStartedMonitoring, Region: &region}
}

// Received reports an accepted event.
func Received(e Event) Diagnostic {
	return Diagnostic{Kind: DiagnosticReceived, Event: &e}
}

// Ignored reports an event that was not acted on and why.
func Ignored(e Event, reason error) Diagnostic {
	return Diagnostic{Kind: DiagnosticIgnored, Event: &e, Err: reason}
}

func (d Diagnostic) String() string {
	switch {
	case d.Event != nil && d.Err != nil:
		return fmt.Sprintf("%s(%s, %v)", d.Kind, d.Event, d.Err)
	case d.Event != nil:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Event)
	case d.Region != nil && d.Err != nil:
		return fmt.Sprintf("%s(%s, %v)", d.Kind, d.Region, d.Err)
	case d.Region != nil:
		return fmt.Sprintf("%s(%s)", d.Kind, d.Region)
	case d.Err != nil:
		return fmt.Sprintf("%s(%v)", d.Kind, d.Err)
	default:
		return d.Kind.String()
	}
}

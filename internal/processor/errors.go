// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package processor

import (
	"errors"
	"fmt"
)

// IgnoreReason names why an event was not acted on.
type IgnoreReason string

const (
	ReasonDuringOneShot          IgnoreReason = "duringOneShot"
	ReasonLocationMissingEntries IgnoreReason = "locationMissingEntries"
	ReasonLocationUpdateTooOld   IgnoreReason = "locationUpdateTooOld"
	ReasonUnknownRegionState     IgnoreReason = "unknownRegionState"
	ReasonUnknownRegion          IgnoreReason = "unknownRegion"
	ReasonZoneDisabled           IgnoreReason = "zoneDisabled"
	ReasonIgnoredSSID            IgnoreReason = "ignoredSSID"
	ReasonBeaconExitIgnored      IgnoreReason = "beaconExitIgnored"
)

// IgnoreError is returned by Perform for expected, non-actionable events.
// It is not a failure and is never retried.
type IgnoreError struct {
	Reason IgnoreReason

	// SSID is the network that matched the zone's deny-list, set only for
	// ReasonIgnoredSSID.
	SSID string
}

func (e *IgnoreError) Error() string {
	if e.Reason == ReasonIgnoredSSID {
		return fmt.Sprintf("%s(%s)", e.Reason, e.SSID)
	}
	return string(e.Reason)
}

// Is matches another IgnoreError with the same reason. A target with an
// empty SSID matches any SSID.
func (e *IgnoreError) Is(target error) bool {
	t, ok := target.(*IgnoreError)
	if !ok {
		return false
	}
	if e.Reason != t.Reason {
		return false
	}
	return t.SSID == "" || t.SSID == e.SSID
}

// Sentinel ignore outcomes for use with errors.Is.
var (
	ErrDuringOneShot          = &IgnoreError{Reason: ReasonDuringOneShot}
	ErrLocationMissingEntries = &IgnoreError{Reason: ReasonLocationMissingEntries}
	ErrLocationUpdateTooOld   = &IgnoreError{Reason: ReasonLocationUpdateTooOld}
	ErrUnknownRegionState     = &IgnoreError{Reason: ReasonUnknownRegionState}
	ErrUnknownRegion          = &IgnoreError{Reason: ReasonUnknownRegion}
	ErrZoneDisabled           = &IgnoreError{Reason: ReasonZoneDisabled}
	ErrIgnoredSSID            = &IgnoreError{Reason: ReasonIgnoredSSID}
	ErrBeaconExitIgnored      = &IgnoreError{Reason: ReasonBeaconExitIgnored}
)

// IgnoredSSID returns the ignore outcome for a deny-listed network.
func IgnoredSSID(name string) *IgnoreError {
	return &IgnoreError{Reason: ReasonIgnoredSSID, SSID: name}
}

// IsIgnore reports whether err is an ignore outcome rather than a failure.
func IsIgnore(err error) bool {
	var ie *IgnoreError
	return errors.As(err, &ie)
}

// ReasonOf extracts the ignore reason from err.
func ReasonOf(err error) (IgnoreReason, bool) {
	var ie *IgnoreError
	if errors.As(err, &ie) {
		return ie.Reason, true
	}
	return "", false
}

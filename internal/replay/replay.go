// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package replay feeds scripted platform callbacks through the simulated
// platform. A script is JSON lines, one step per line:
//
//	{"type":"ssid","ssid":"home_wifi"}
//	{"type":"locations","locations":[{"latitude":37.1,"longitude":-122.4,"accuracy":10}]}
//	{"type":"state","region":"zone.work","state":"inside"}
//	{"type":"fix","location":{"latitude":37.1,"longitude":-122.4,"age":"2m"}}
//	{"type":"fail","error":"kCLErrorDomain 0"}
//	{"type":"wait","duration":"500ms"}
//
// Blank lines and lines starting with # are skipped.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/validation"
)

// Step types.
const (
	StepState     = "state"
	StepLocations = "locations"
	StepSSID      = "ssid"
	StepFix       = "fix"
	StepFail      = "fail"
	StepWait      = "wait"
)

// ErrEmptyScript is returned for a script with no steps.
var ErrEmptyScript = errors.New("replay script has no steps")

// Step is one scripted callback.
type Step struct {
	Type      string           `json:"type" validate:"required,oneof=state locations ssid fix fail wait"`
	Region    string           `json:"region,omitempty" validate:"required_if=Type state"`
	State     string           `json:"state,omitempty" validate:"omitempty,oneof=inside outside unknown enter exit"`
	Locations []LocationRecord `json:"locations,omitempty" validate:"required_if=Type locations,dive"`
	SSID      string           `json:"ssid,omitempty" validate:"omitempty,ssid"`
	Location  *LocationRecord  `json:"location,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  string           `json:"duration,omitempty" validate:"required_if=Type wait"`

	line int
}

// Line returns the script line the step was read from.
func (s Step) Line() int {
	return s.line
}

// LocationRecord is a scripted fix. Age is subtracted from the replay time
// to produce the timestamp, so scripts can express stale fixes. Altitude
// only counts when VerticalAccuracy is also given.
type LocationRecord struct {
	Latitude         float64  `json:"latitude" validate:"latitude"`
	Longitude        float64  `json:"longitude" validate:"longitude"`
	Accuracy         float64  `json:"accuracy" validate:"gte=0"`
	Altitude         *float64 `json:"altitude,omitempty"`
	VerticalAccuracy *float64 `json:"vertical_accuracy,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	Course           *float64 `json:"course,omitempty"`
	Age              string   `json:"age,omitempty"`
}

// Location converts the record relative to now.
func (r LocationRecord) Location(now time.Time) (geo.Location, error) {
	ts := now
	if r.Age != "" {
		age, err := time.ParseDuration(r.Age)
		if err != nil {
			return geo.Location{}, fmt.Errorf("age: %w", err)
		}
		ts = now.Add(-age)
	}

	loc := geo.NewLocation(r.Latitude, r.Longitude, ts)
	loc.HorizontalAccuracy = r.Accuracy
	if r.Altitude != nil {
		loc.Altitude = *r.Altitude
	}
	if r.VerticalAccuracy != nil {
		loc.VerticalAccuracy = *r.VerticalAccuracy
	}
	if r.Speed != nil {
		loc.Speed = *r.Speed
	}
	if r.Course != nil {
		loc.Course = *r.Course
	}
	return loc, nil
}

// Parse reads a script.
func Parse(r io.Reader) ([]Step, error) {
	var steps []Step
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var step Step
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&step); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if verr := validation.ValidateStruct(step); verr != nil {
			return nil, fmt.Errorf("line %d: %w", line, verr)
		}
		if _, err := event.ParseRegionState(step.State); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if step.Duration != "" {
			if _, err := time.ParseDuration(step.Duration); err != nil {
				return nil, fmt.Errorf("line %d: duration: %w", line, err)
			}
		}
		step.line = line
		steps = append(steps, step)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	if len(steps) == 0 {
		return nil, ErrEmptyScript
	}
	return steps, nil
}

// Load reads the script at path.
func Load(path string) ([]Step, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay script: %w", err)
	}
	defer f.Close()

	steps, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return steps, nil
}

// Platform is the simulated platform surface a replay drives.
type Platform interface {
	UpdateLocations(locations []geo.Location)
	DetermineState(identifier string, state event.RegionState) error
	SetSSID(ssid string)
	SetNextFix(loc *geo.Location, err error)
	Fail(err error)
}

// Player runs scripts against a platform.
type Player struct {
	platform Platform
	settle   func()
	now      func() time.Time
}

// NewPlayer creates a Player. settle is called after every step and should
// block until the engine has finished reacting, typically the zone
// manager's Wait. It may be nil.
func NewPlayer(p Platform, settle func()) *Player {
	return &Player{platform: p, settle: settle, now: time.Now}
}

// Run applies steps in order. It stops at the first step the platform
// rejects, or when ctx ends.
func (p *Player) Run(ctx context.Context, steps []Step) error {
	logger := logging.Ctx(ctx).With().Str("component", "replay").Logger()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Debug().Int("step", i+1).Int("line", step.line).Str("type", step.Type).Msg("Replaying step")

		if err := p.apply(ctx, step); err != nil {
			return fmt.Errorf("step %d (line %d, %s): %w", i+1, step.line, step.Type, err)
		}
		if p.settle != nil {
			p.settle()
		}
	}

	logger.Info().Int("steps", len(steps)).Msg("Replay finished")
	return nil
}

func (p *Player) apply(ctx context.Context, step Step) error {
	switch step.Type {
	case StepState:
		state, err := event.ParseRegionState(step.State)
		if err != nil {
			return err
		}
		return p.platform.DetermineState(step.Region, state)

	case StepLocations:
		locations := make([]geo.Location, 0, len(step.Locations))
		for _, r := range step.Locations {
			loc, err := r.Location(p.now())
			if err != nil {
				return err
			}
			locations = append(locations, loc)
		}
		p.platform.UpdateLocations(locations)

	case StepSSID:
		p.platform.SetSSID(step.SSID)

	case StepFix:
		var fixErr error
		if step.Error != "" {
			fixErr = errors.New(step.Error)
		}
		if step.Location == nil {
			p.platform.SetNextFix(nil, fixErr)
			return nil
		}
		loc, err := step.Location.Location(p.now())
		if err != nil {
			return err
		}
		p.platform.SetNextFix(&loc, fixErr)

	case StepFail:
		msg := step.Error
		if msg == "" {
			msg = "location unavailable"
		}
		p.platform.Fail(errors.New(msg))

	case StepWait:
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return err
		}
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}

	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}
	return nil
}

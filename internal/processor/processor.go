// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package processor decides whether a collected event is a real zone
// transition and, when it is, reports it.
//
// Evaluation short-circuits on the first matching rule:
//
//  1. a one-shot location request is already in flight
//  2. a location change with no entries, or whose newest fix is stale
//  3. a region event with an unknown state
//  4. a region event with no resolvable zone
//  5. a zone with tracking disabled
//  6. a zone whose SSID deny-list contains the current network
//  7. a beacon exit not preceded by a confirmed enter
//  8. a zone whose membership already matches the event
//
// Rules 1 through 7 produce an [*IgnoreError]. Rule 8 is a successful no-op.
// Anything else is actionable: membership has already been flipped in the
// zone store, a fresh fix is acquired when the trigger needs one, the fix is
// sanitized against the zone geometry and handed to the [Reporter].
//
// [Processor.Evaluate] runs the rules and the membership write without
// blocking; [Submitter] does the slow part. An event that needs a
// one-shot fix takes the one-shot guard before its membership is written.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/metrics"
	"github.com/tomtom215/zonekeeper/internal/telemetry"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// LocationProvider acquires fresh position fixes.
type LocationProvider interface {
	OneShotLocation(ctx context.Context, timeout time.Duration) (geo.Location, error)
}

// Connectivity reports the current Wi-Fi network. An empty string means
// unknown or not connected.
type Connectivity interface {
	CurrentSSID() string
}

// Reporter submits a transition to the remote service. Location and zone
// may each be nil.
type Reporter interface {
	SubmitLocation(ctx context.Context, trigger event.Trigger, location *geo.Location, z *zone.Zone) error
}

// MembershipStore flips a zone's membership flag atomically.
type MembershipStore interface {
	SwapMembership(ctx context.Context, key string, inRegion bool) (bool, error)
}

// Delegate receives a diagnostic for every evaluated event.
type Delegate interface {
	ProcessorDidLog(d event.Diagnostic)
}

// Config tunes evaluation.
type Config struct {
	// FreshnessThreshold is the maximum age of the newest fix in a location
	// change event.
	FreshnessThreshold time.Duration `koanf:"freshness_threshold" validate:"gt=0"`

	// Catalyst disables the freshness check, for hosts where region
	// monitoring is unreliable and location changes drive reporting.
	Catalyst bool `koanf:"catalyst"`

	// MaxOneShot caps every trigger's one-shot timeout.
	MaxOneShot time.Duration `koanf:"max_one_shot" validate:"gte=0"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FreshnessThreshold: 60 * time.Second,
		MaxOneShot:         30 * time.Second,
	}
}

var oneShotInFlight atomic.Bool

// OneShotInFlight reports whether any processor is waiting on a one-shot fix.
func OneShotInFlight() bool {
	return oneShotInFlight.Load()
}

// Result describes a successful Perform.
type Result struct {
	Trigger event.Trigger

	// Submitted is false for an idempotent no-op.
	Submitted bool

	// Location is the sanitized fix that was submitted, if any.
	Location *geo.Location

	// Before and After are the zone membership around the transition.
	Before bool
	After  bool
}

// Processor evaluates events. It is safe for concurrent use.
type Processor struct {
	cfg          Config
	store        MembershipStore
	reporter     Reporter
	locations    LocationProvider
	connectivity Connectivity
	logger       *logging.EngineLogger
	tracer       trace.Tracer
	now          func() time.Time

	mu       sync.RWMutex
	delegate Delegate
}

// New creates a Processor. connectivity may be nil.
func New(cfg Config, store MembershipStore, reporter Reporter, locations LocationProvider, connectivity Connectivity) *Processor {
	return &Processor{
		cfg:          cfg,
		store:        store,
		reporter:     reporter,
		locations:    locations,
		connectivity: connectivity,
		logger:       logging.NewEngineLogger("processor"),
		tracer:       telemetry.Tracer("github.com/tomtom215/zonekeeper/internal/processor"),
		now:          time.Now,
	}
}

// SetDelegate sets the receiver of diagnostics.
func (p *Processor) SetDelegate(d Delegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

// SetCatalyst toggles the freshness exemption at runtime.
func (p *Processor) SetCatalyst(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.Catalyst = enabled
}

func (p *Processor) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

func (p *Processor) report(d event.Diagnostic) {
	p.mu.RLock()
	del := p.delegate
	p.mu.RUnlock()
	if del != nil {
		del.ProcessorDidLog(d)
	}
}

// CurrentSSID returns the network consulted for filtering, or "".
func (p *Processor) CurrentSSID() string {
	if p.connectivity == nil {
		return ""
	}
	return p.connectivity.CurrentSSID()
}

// Submitter finishes an evaluated event.
type Submitter interface {
	Submit(ctx context.Context) (Result, error)
}

// transition is an evaluated event. Membership has been written; what is
// left is acquiring a fix and submitting it. A transition that needs a
// one-shot fix holds the global one-shot guard until Submit returns.
type transition struct {
	p          *Processor
	event      event.Event
	ssid       string
	result     Result
	actionable bool
	guarded    bool
}

// Evaluate applies the decision rules and writes the zone membership. It
// never waits on a fix or the network, so callers can run it on the
// callback path and keep callbacks for one zone in order. A nil error means
// the returned Submitter must be called exactly once.
func (p *Processor) Evaluate(ctx context.Context, e event.Event) (Submitter, error) {
	t, err := p.evaluateTransition(ctx, e)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (p *Processor) evaluateTransition(ctx context.Context, e event.Event) (*transition, error) {
	trigger := e.Trigger()
	ssid := p.CurrentSSID()
	t := &transition{p: p, event: e, ssid: ssid, result: Result{Trigger: trigger}}

	ctx, span := p.tracer.Start(ctx, "processor.Evaluate", trace.WithAttributes(
		attribute.String("zonekeeper.trigger", string(trigger)),
		attribute.String("zonekeeper.ssid", ssid),
	))
	defer span.End()
	zoneKey := ""
	if e.Zone != nil {
		zoneKey = e.Zone.Key()
		span.SetAttributes(attribute.String("zonekeeper.zone", zoneKey))
	}

	if err := p.evaluate(ctx, t); err != nil {
		t.release()
		if IsIgnore(err) {
			p.report(event.Ignored(e, err))
			return t, p.ignore(span, trigger, ssid, err)
		}
		return t, p.fail(span, trigger, err)
	}

	p.logger.Received(string(trigger), zoneKey, ssid)
	p.report(event.Received(e))

	if !t.actionable {
		t.release()
		p.logger.Logger().Debug().
			Str("trigger", string(trigger)).
			Str("zone", zoneKey).
			Bool("in_region", t.result.After).
			Msg("Membership unchanged, nothing to submit")
		metrics.RecordProcessed(string(trigger), metrics.OutcomeNoop)
	}
	return t, nil
}

// Submit acquires a fix when the trigger needs one and reports the
// transition. It is a no-op for an idempotent event.
func (t *transition) Submit(ctx context.Context) (Result, error) {
	defer t.release()
	if !t.actionable {
		return t.result, nil
	}

	p := t.p
	trigger := t.result.Trigger
	ctx, span := p.tracer.Start(ctx, "processor.Submit",
		trace.WithAttributes(attribute.String("zonekeeper.trigger", string(trigger))))
	defer span.End()

	location, err := p.acquire(ctx, t)
	if err != nil {
		return t.result, p.fail(span, trigger, err)
	}
	if location != nil {
		sanitized := sanitize(*location, t.event)
		location = &sanitized
	}

	if err := p.reporter.SubmitLocation(ctx, trigger, location, t.event.Zone); err != nil {
		return t.result, p.fail(span, trigger, fmt.Errorf("submit location: %w", err))
	}

	t.result.Submitted = true
	t.result.Location = location
	metrics.RecordProcessed(string(trigger), metrics.OutcomeSubmitted)
	return t.result, nil
}

func (t *transition) release() {
	if t.guarded {
		t.guarded = false
		oneShotInFlight.Store(false)
	}
}

// Perform evaluates e and submits it when actionable. Ignored events return
// an [*IgnoreError]; anything else non-nil is a hard failure.
func (p *Processor) Perform(ctx context.Context, e event.Event) (Result, error) {
	t, err := p.evaluateTransition(ctx, e)
	if err != nil {
		return t.result, err
	}
	return t.Submit(ctx)
}

func (p *Processor) ignore(span trace.Span, trigger event.Trigger, ssid string, err error) error {
	reason, _ := ReasonOf(err)
	span.SetAttributes(attribute.String("zonekeeper.ignore_reason", string(reason)))
	p.logger.Ignored(string(trigger), err.Error(), ssid)
	metrics.RecordIgnored(string(reason))
	metrics.RecordProcessed(string(trigger), metrics.OutcomeIgnored)
	return err
}

func (p *Processor) fail(span trace.Span, trigger event.Trigger, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.logger.Failed(string(trigger), err)
	metrics.RecordProcessed(string(trigger), metrics.OutcomeFailed)
	return err
}

// evaluate applies the decision rules and records on t whether a
// submission is needed. The one-shot guard is taken before membership is
// written, so an event that loses the race leaves membership untouched and a
// redelivered callback is still a transition.
func (p *Processor) evaluate(ctx context.Context, t *transition) error {
	if oneShotInFlight.Load() {
		return ErrDuringOneShot
	}

	e := t.event
	if e.Kind == event.KindLocationChange {
		if err := p.evaluateLocationChange(e.Locations); err != nil {
			return err
		}
		if err := t.guard(); err != nil {
			return err
		}
		t.actionable = true
		return nil
	}
	return p.evaluateRegion(ctx, t)
}

func (p *Processor) evaluateLocationChange(locations []geo.Location) error {
	if len(locations) == 0 {
		return ErrLocationMissingEntries
	}

	cfg := p.config()
	newest := locations[len(locations)-1]
	if newest.Age(p.now()) > cfg.FreshnessThreshold && !cfg.Catalyst {
		return ErrLocationUpdateTooOld
	}
	return nil
}

func (p *Processor) evaluateRegion(ctx context.Context, t *transition) error {
	e := t.event
	if e.State == event.StateUnknown {
		return ErrUnknownRegionState
	}

	z := e.Zone
	if z == nil {
		return ErrUnknownRegion
	}
	if !z.TrackingEnabled {
		return ErrZoneDisabled
	}
	if z.FiltersSSID(t.ssid) {
		return IgnoredSSID(t.ssid)
	}

	if e.ShouldOneShotLocation() {
		if err := t.guard(); err != nil {
			return err
		}
	}

	inside := e.State == event.StateInside
	previous, err := p.store.SwapMembership(ctx, z.Key(), inside)
	if err != nil {
		return fmt.Errorf("update membership of %s: %w", z.Key(), err)
	}
	t.result.Before = previous
	t.result.After = inside
	if previous != inside {
		p.logger.Membership(z.Key(), previous, inside)
	}

	if e.Region.Kind == zone.KindBeacon && !inside && !previous {
		return ErrBeaconExitIgnored
	}

	t.actionable = previous != inside
	return nil
}

// guard takes the global one-shot guard for t.
func (t *transition) guard() error {
	if !oneShotInFlight.CompareAndSwap(false, true) {
		return ErrDuringOneShot
	}
	t.guarded = true
	return nil
}

// acquire returns the fix to submit: a fresh one-shot fix when the trigger
// calls for it, otherwise the event's own newest location.
func (p *Processor) acquire(ctx context.Context, t *transition) (*geo.Location, error) {
	e := t.event
	if !e.ShouldOneShotLocation() {
		return e.AssociatedLocation(), nil
	}

	timeout := e.Trigger().OneShotTimeout(p.config().MaxOneShot)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := p.tracer.Start(ctx, "processor.OneShotLocation",
		trace.WithAttributes(attribute.String("zonekeeper.timeout", timeout.String())))
	defer span.End()

	start := time.Now()
	loc, err := p.locations.OneShotLocation(ctx, timeout)
	metrics.RecordOneShot(time.Since(start), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("one-shot location timed out after %s: %w", timeout, err)
		} else {
			err = fmt.Errorf("one-shot location: %w", err)
		}
		span.RecordError(err)
		return nil, err
	}
	return &loc, nil
}

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package api serves the admin HTTP API with chi.
//
// Routes:
//
//	GET    /api/v1/health
//	GET    /api/v1/zones
//	GET    /api/v1/zones/{server}/{entity}
//	PUT    /api/v1/zones/{server}/{entity}
//	DELETE /api/v1/zones/{server}/{entity}
//	GET    /api/v1/regions
//	GET    /api/v1/events
//	GET    /api/v1/events/ws
//	GET    /api/v1/platform
//	POST   /api/v1/platform/state
//	POST   /api/v1/platform/locations
//	PUT    /api/v1/platform/ssid
//	GET    /api/v1/location-sources
//	PUT    /api/v1/location-sources
//	GET    /metrics
//
// A zone key is "<server>/<entity>", so the zone routes take it as two
// path segments.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/middleware"
	ws "github.com/tomtom215/zonekeeper/internal/websocket"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// ErrMissingDependency is returned when a required dependency is nil.
var ErrMissingDependency = errors.New("api dependency is required")

// ZoneStore is the zone persistence the API edits.
type ZoneStore interface {
	List(ctx context.Context) ([]*zone.Zone, error)
	Get(ctx context.Context, key string) (*zone.Zone, error)
	Put(ctx context.Context, z *zone.Zone) error
	Delete(ctx context.Context, key string) error
}

// Engine is the zone manager surface the API reads and configures.
type Engine interface {
	MonitoredRegions() []zone.Region
	DesiredRegions() []zone.Region
	LocationSources() manager.LocationSources
	SetLocationSources(ctx context.Context, sources manager.LocationSources) error
	LastLocation() *geo.Location
}

// EventLog lists client events.
type EventLog interface {
	List(ctx context.Context, q eventlog.Query) ([]eventlog.ClientEvent, error)
}

// Platform accepts injected callbacks. Satisfied by *platform.Simulator.
type Platform interface {
	UpdateLocations(locations []geo.Location)
	DetermineState(identifier string, state event.RegionState) error
	SetSSID(ssid string)
	CurrentSSID() string
	MonitoringSignificantLocationChanges() bool
}

// Dependencies wires the API to the engine. Hub and ReporterState are
// optional; without a hub the event stream answers 503.
type Dependencies struct {
	Zones         ZoneStore
	Engine        Engine
	Events        EventLog
	Platform      Platform
	Hub           *ws.Hub
	ReporterState func() string
	Version       string
}

func (d Dependencies) validate() error {
	switch {
	case d.Zones == nil:
		return fmt.Errorf("%w: zones", ErrMissingDependency)
	case d.Engine == nil:
		return fmt.Errorf("%w: engine", ErrMissingDependency)
	case d.Events == nil:
		return fmt.Errorf("%w: events", ErrMissingDependency)
	case d.Platform == nil:
		return fmt.Errorf("%w: platform", ErrMissingDependency)
	}
	return nil
}

// Config holds HTTP concerns of the API.
type Config struct {
	CORSOrigins []string

	// RateLimitRequests per RateLimitWindow per client IP. Zero disables.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Tracing wraps the router with otelhttp.
	Tracing bool
}

// Handler serves the admin API.
type Handler struct {
	deps    Dependencies
	cfg     Config
	started time.Time
}

// NewRouter builds the admin API.
func NewRouter(deps Dependencies, cfg Config) (http.Handler, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	h := &Handler{deps: deps, cfg: cfg, started: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.AccessLog)
	r.Use(middleware.PrometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
		ExposedHeaders: []string{middleware.RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeNotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 && cfg.RateLimitWindow > 0 {
			r.Use(httprate.Limit(cfg.RateLimitRequests, cfg.RateLimitWindow,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, r, http.StatusTooManyRequests, ErrCodeTooManyRequests, "rate limit exceeded", nil)
				}),
			))
		}

		r.Get("/health", h.Health)

		r.Get("/zones", h.ListZones)
		r.Route("/zones/{server}/{entity}", func(r chi.Router) {
			r.Get("/", h.GetZone)
			r.Put("/", h.PutZone)
			r.Delete("/", h.DeleteZone)
		})

		r.Get("/regions", h.Regions)

		r.Get("/events", h.ListEvents)
		r.Get("/events/ws", h.StreamEvents)

		r.Route("/platform", func(r chi.Router) {
			r.Get("/", h.PlatformStatus)
			r.Post("/state", h.InjectState)
			r.Post("/locations", h.InjectLocations)
			r.Put("/ssid", h.SetSSID)
		})

		r.Get("/location-sources", h.GetLocationSources)
		r.Put("/location-sources", h.PutLocationSources)
	})

	if cfg.Tracing {
		return otelhttp.NewHandler(r, "admin-api"), nil
	}
	return r, nil
}

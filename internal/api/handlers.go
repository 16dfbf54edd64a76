// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/manager"
	"github.com/tomtom215/zonekeeper/internal/platform"
	"github.com/tomtom215/zonekeeper/internal/replay"
	"github.com/tomtom215/zonekeeper/internal/validation"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version,omitempty"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	MonitoredRegions int     `json:"monitored_regions"`
	DesiredRegions   int     `json:"desired_regions"`
	Reporter         string  `json:"reporter,omitempty"`
	StreamClients    int     `json:"stream_clients"`
}

// Health reports liveness. The status is "degraded" while the reporter's
// circuit breaker is open.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		Version:          h.deps.Version,
		UptimeSeconds:    time.Since(h.started).Seconds(),
		MonitoredRegions: len(h.deps.Engine.MonitoredRegions()),
		DesiredRegions:   len(h.deps.Engine.DesiredRegions()),
	}
	if h.deps.ReporterState != nil {
		resp.Reporter = h.deps.ReporterState()
		if resp.Reporter == "open" {
			resp.Status = "degraded"
		}
	}
	if h.deps.Hub != nil {
		resp.StreamClients = h.deps.Hub.GetClientCount()
	}
	writeSuccess(w, r, resp)
}

// ListZones returns every stored zone.
func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.deps.Zones.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeList(w, r, zones)
}

func zoneKeyParam(r *http.Request) (serverID, entityID string) {
	return chi.URLParam(r, "server"), chi.URLParam(r, "entity")
}

// GetZone returns one zone.
func (h *Handler) GetZone(w http.ResponseWriter, r *http.Request) {
	z, err := h.deps.Zones.Get(r.Context(), zone.Key(zoneKeyParam(r)))
	switch {
	case errors.Is(err, zonestore.ErrZoneNotFound):
		writeNotFound(w, r, "zone not found")
	case err != nil:
		writeInternalError(w, r, err)
	default:
		writeSuccess(w, r, z)
	}
}

// PutZone creates or replaces a zone definition. The path names the zone;
// an entity_id in the body must agree with it. Membership in the body is
// ignored since only the engine changes it.
func (h *Handler) PutZone(w http.ResponseWriter, r *http.Request) {
	serverID, entityID := zoneKeyParam(r)

	var z zone.Zone
	if !decodeBody(w, r, &z) {
		return
	}
	if z.EntityID != "" && z.EntityID != entityID {
		writeBadRequest(w, r, "entity_id does not match the path")
		return
	}
	z.ServerID = serverID
	z.EntityID = entityID
	z.InRegion = false

	if verr := validation.ValidateZone(&z); verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	if err := h.deps.Zones.Put(r.Context(), &z); err != nil {
		writeInternalError(w, r, err)
		return
	}

	stored, err := h.deps.Zones.Get(r.Context(), z.Key())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("zone", z.Key()).Msg("Zone saved via admin API")
	writeSuccess(w, r, stored)
}

// DeleteZone removes a zone.
func (h *Handler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	key := zone.Key(zoneKeyParam(r))
	err := h.deps.Zones.Delete(r.Context(), key)
	switch {
	case errors.Is(err, zonestore.ErrZoneNotFound):
		writeNotFound(w, r, "zone not found")
	case err != nil:
		writeInternalError(w, r, err)
	default:
		logging.Ctx(r.Context()).Info().Str("zone", key).Msg("Zone deleted via admin API")
		w.WriteHeader(http.StatusNoContent)
	}
}

// RegionsResponse compares what the platform monitors with what the engine
// wants it to monitor.
type RegionsResponse struct {
	Monitored []zone.Region `json:"monitored"`
	Desired   []zone.Region `json:"desired"`
}

// Regions returns the monitored and desired region sets.
func (h *Handler) Regions(w http.ResponseWriter, r *http.Request) {
	resp := RegionsResponse{
		Monitored: h.deps.Engine.MonitoredRegions(),
		Desired:   h.deps.Engine.DesiredRegions(),
	}
	if resp.Monitored == nil {
		resp.Monitored = []zone.Region{}
	}
	if resp.Desired == nil {
		resp.Desired = []zone.Region{}
	}
	writeSuccess(w, r, resp)
}

var eventTypes = map[eventlog.EventType]bool{
	eventlog.TypeLocationUpdate:      true,
	eventlog.TypeNetworkRequest:      true,
	eventlog.TypeServiceCall:         true,
	eventlog.TypeSettings:            true,
	eventlog.TypeBackgroundOperation: true,
	eventlog.TypeUnknown:             true,
}

func parseEventQuery(values url.Values) (eventlog.Query, error) {
	q := eventlog.Query{
		Type:   eventlog.EventType(values.Get("type")),
		Search: values.Get("search"),
		Limit:  defaultEventLimit,
	}
	if q.Type != "" && !eventTypes[q.Type] {
		return q, errors.New("unknown event type " + strconv.Quote(string(q.Type)))
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			return q, errors.New("limit must be between 1 and " + strconv.Itoa(maxEventLimit))
		}
		q.Limit = n
	}
	return q, nil
}

// ListEvents returns client events, newest first. Query parameters: type,
// search and limit.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r.URL.Query())
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	events, err := h.deps.Events.List(r.Context(), q)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeList(w, r, events)
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts configured CORS origins and the API's own
// host. Requests without an Origin header come from non-browser clients and
// are accepted.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	logging.Ctx(r.Context()).Warn().Str("origin", strconv.Quote(origin)).Msg("Event stream rejected from unauthorized origin")
	return false
}

// StreamEvents upgrades to a websocket that receives client events and zone
// changes as they happen.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		writeError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "event stream unavailable", nil)
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Event stream upgrade failed")
		return
	}
	h.deps.Hub.Attach(conn)
}

// PlatformStatus describes the platform's current view.
type PlatformStatus struct {
	SSID                      string        `json:"ssid"`
	SignificantLocationChange bool          `json:"significant_location_change"`
	LastLocation              *geo.Location `json:"last_location,omitempty"`
}

// PlatformStatus returns the connected network, whether significant
// location changes are on and the last location the engine saw.
func (h *Handler) PlatformStatus(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, PlatformStatus{
		SSID:                      h.deps.Platform.CurrentSSID(),
		SignificantLocationChange: h.deps.Platform.MonitoringSignificantLocationChanges(),
		LastLocation:              h.deps.Engine.LastLocation(),
	})
}

// StateRequest injects a region state determination.
type StateRequest struct {
	Region string `json:"region" validate:"required"`
	State  string `json:"state" validate:"required,oneof=inside outside unknown enter exit"`
}

// InjectState delivers a region state as if the platform had determined it.
func (h *Handler) InjectState(w http.ResponseWriter, r *http.Request) {
	var req StateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	state, err := event.ParseRegionState(req.State)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}

	err = h.deps.Platform.DetermineState(req.Region, state)
	switch {
	case errors.Is(err, platform.ErrNotMonitored):
		writeError(w, r, http.StatusConflict, ErrCodeConflict, "region is not monitored", map[string]string{"region": req.Region})
		return
	case err != nil:
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"region": req.Region, "state": state.String()},
		Meta:    newMeta(r),
	})
}

// LocationsRequest injects a batch of location fixes.
type LocationsRequest struct {
	Locations []replay.LocationRecord `json:"locations" validate:"required,min=1,max=100,dive"`
}

// InjectLocations delivers location fixes as if the platform had reported
// them.
func (h *Handler) InjectLocations(w http.ResponseWriter, r *http.Request) {
	var req LocationsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		writeValidationError(w, r, verr)
		return
	}

	now := time.Now()
	locations := make([]geo.Location, 0, len(req.Locations))
	for i, rec := range req.Locations {
		loc, err := rec.Location(now)
		if err != nil {
			writeBadRequest(w, r, "locations["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		locations = append(locations, loc)
	}

	h.deps.Platform.UpdateLocations(locations)
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]int{"accepted": len(locations)},
		Meta:    newMeta(r),
	})
}

// SSIDRequest sets the connected network. An empty SSID disconnects.
type SSIDRequest struct {
	SSID string `json:"ssid" validate:"omitempty,ssid"`
}

// SetSSID changes the network the platform reports as connected.
func (h *Handler) SetSSID(w http.ResponseWriter, r *http.Request) {
	var req SSIDRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		writeValidationError(w, r, verr)
		return
	}
	h.deps.Platform.SetSSID(req.SSID)
	writeSuccess(w, r, req)
}

// GetLocationSources returns which location sources are enabled.
func (h *Handler) GetLocationSources(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, r, h.deps.Engine.LocationSources())
}

// PutLocationSources replaces the enabled location sources. The engine
// re-syncs regions before responding.
func (h *Handler) PutLocationSources(w http.ResponseWriter, r *http.Request) {
	var sources manager.LocationSources
	if !decodeBody(w, r, &sources) {
		return
	}
	if err := h.deps.Engine.SetLocationSources(r.Context(), sources); err != nil {
		writeInternalError(w, r, err)
		return
	}
	writeSuccess(w, r, h.deps.Engine.LocationSources())
}

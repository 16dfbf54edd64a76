// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

// Package reporter delivers location updates and zone events to the remote
// home automation server's mobile-app webhook.
package reporter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/tomtom215/zonekeeper/internal/event"
	"github.com/tomtom215/zonekeeper/internal/geo"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/metrics"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

// ErrCircuitOpen is returned while the circuit breaker rejects deliveries.
var ErrCircuitOpen = errors.New("reporter circuit breaker open")

// ErrNoURL is returned by NewWebhook without a target URL.
var ErrNoURL = errors.New("webhook url is required")

// StatusError is a non-2xx webhook response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("webhook returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("webhook returned status %d: %s", e.StatusCode, e.Body)
}

// BreakerConfig tunes the circuit breaker around deliveries.
type BreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests"`
	Interval         time.Duration `koanf:"interval"`
	Timeout          time.Duration `koanf:"timeout"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"gte=1"`
}

// Config configures a Webhook.
type Config struct {
	URL     string            `koanf:"url" validate:"omitempty,url"`
	Headers map[string]string `koanf:"headers"`
	Timeout time.Duration     `koanf:"timeout" validate:"gt=0"`

	// RateLimit is the sustained deliveries per second, Burst the bucket size.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`
	Burst     int     `koanf:"burst" validate:"gte=1"`

	// DeviceID and DeviceName are added to every fired event.
	DeviceID   string `koanf:"device_id"`
	DeviceName string `koanf:"device_name"`

	Breaker BreakerConfig `koanf:"breaker"`

	// DryRun logs payloads instead of sending them.
	DryRun bool `koanf:"dry_run"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:   10 * time.Second,
		RateLimit: 2,
		Burst:     5,
		Breaker: BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
		},
	}
}

const breakerName = "webhook"

// Webhook posts payloads to a mobile-app webhook URL.
type Webhook struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]
	logger  zerolog.Logger
}

// NewWebhook creates a Webhook reporter.
func NewWebhook(cfg Config) (*Webhook, error) {
	if cfg.URL == "" {
		return nil, ErrNoURL
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	w := &Webhook{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logging.WithComponent("reporter"),
	}

	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	w.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			w.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.RecordCircuitBreakerTransition(name, from.String(), to.String(), int(to))
		},
	})

	return w, nil
}

// State returns the circuit breaker state.
func (w *Webhook) State() string {
	return w.cb.State().String()
}

// SubmitLocation sends an update_location request.
func (w *Webhook) SubmitLocation(ctx context.Context, trigger event.Trigger, loc *geo.Location, z *zone.Zone) error {
	payload := NewUpdateLocation(trigger, loc, z)
	return w.send(ctx, Request{Type: TypeUpdateLocation, Data: payload})
}

// FireEvent sends a fire_event request. Device identity is added to data.
func (w *Webhook) FireEvent(ctx context.Context, eventType string, data map[string]any) error {
	return w.send(ctx, Request{
		Type: TypeFireEvent,
		Data: FireEvent{EventType: eventType, EventData: withDevice(data, w.cfg)},
	})
}

func withDevice(data map[string]any, cfg Config) map[string]any {
	out := make(map[string]any, len(data)+2)
	if cfg.DeviceID != "" {
		out["sourceDeviceID"] = cfg.DeviceID
	}
	if cfg.DeviceName != "" {
		out["sourceDeviceName"] = cfg.DeviceName
	}
	for k, v := range data {
		out[k] = v
	}
	return out
}

func (w *Webhook) send(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", req.Type, err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	_, err = w.cb.Execute(func() (struct{}, error) {
		return struct{}{}, w.post(ctx, body)
	})
	duration := time.Since(start)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordReporterRequest(req.Type, "rejected", 0)
		w.logger.Warn().Err(err).Str("type", req.Type).Msg("Webhook delivery rejected")
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	case err != nil:
		metrics.RecordReporterRequest(req.Type, "failure", duration)
		w.logger.Error().Err(err).Str("type", req.Type).Dur("duration", duration).Msg("Webhook delivery failed")
		return err
	}

	metrics.RecordReporterRequest(req.Type, "success", duration)
	w.logger.Debug().Str("type", req.Type).Dur("duration", duration).RawJSON("payload", body).Msg("Webhook delivered")
	return nil
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range w.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package services

import (
	"context"
	"time"

	"github.com/tomtom215/zonekeeper/internal/logging"
)

// Pruner enforces event log retention. Satisfied by *eventlog.Log.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// PruneService prunes the client event log on start and every interval.
// Prune errors are logged and retried on the next tick rather than
// returned, so a transient badger error does not count as a service failure.
type PruneService struct {
	pruner   Pruner
	interval time.Duration
}

// NewPruneService creates the service. A non-positive interval means 1h.
func NewPruneService(pruner Pruner, interval time.Duration) *PruneService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &PruneService{pruner: pruner, interval: interval}
}

// Serve implements suture.Service.
func (p *PruneService) Serve(ctx context.Context) error {
	logger := logging.WithComponent("eventlog")

	prune := func() {
		removed, err := p.pruner.Prune(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Msg("Failed to prune client events")
		case removed > 0:
			logger.Info().Int("removed", removed).Msg("Pruned client events")
		}
	}

	prune()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			prune()
		}
	}
}

func (p *PruneService) String() string {
	return "eventlog-pruner"
}

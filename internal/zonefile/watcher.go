// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zonefile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/tomtom215/zonekeeper/internal/logging"
)

// DefaultDebounce collapses the burst of events editors produce on save.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-imports a zones file whenever it changes. It implements
// suture.Service.
type Watcher struct {
	path     string
	store    Importer
	debounce time.Duration
	logger   zerolog.Logger

	// imported is signalled after every reload attempt. Tests only.
	imported func(err error)
}

// NewWatcher creates a Watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(path string, store Importer, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     path,
		store:    store,
		debounce: debounce,
		logger:   logging.WithComponent("zonefile"),
	}
}

// Serve watches the file's directory until ctx ends. Watching the directory
// keeps the watch alive across editors that replace the file on save.
func (w *Watcher) Serve(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.path)

	w.logger.Info().Str("path", w.path).Msg("Watching zones file")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str("path", w.path).Msg("Zones file watcher stopped")
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug().Str("op", ev.Op.String()).Msg("Zones file changed")

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			w.reload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Zones file watcher error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	_, err := Import(ctx, w.store, w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("Zones file reload failed, keeping previous zones")
	}
	if w.imported != nil {
		w.imported(err)
	}
}

func (w *Watcher) String() string {
	return "zonefile-watcher"
}

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package zonestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/zone"
)

const zoneKeyPrefix = "zone:"

// maxConflictRetries bounds retries of a transaction that lost a write race.
const maxConflictRetries = 5

// ErrZoneNotFound is returned when no zone exists for a key.
var ErrZoneNotFound = errors.New("zone not found")

// ChangeKind describes what happened to a zone.
type ChangeKind int

const (
	ChangeInsert ChangeKind = iota
	ChangeUpdate
	ChangeDelete
	ChangeMembership
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	case ChangeMembership:
		return "membership"
	default:
		return "unknown"
	}
}

// Change is one committed modification.
type Change struct {
	Kind ChangeKind
	Key  string

	// Zone is the zone after the change, nil for deletions.
	Zone *zone.Zone
}

// Config configures a Store opened with [Open].
type Config struct {
	// Path is the badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory. Used by tests and dry runs.
	InMemory bool
}

// Store is a badger-backed zone store.
type Store struct {
	db     *badger.DB
	ownsDB bool
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[int]func(Change)
	nextSubID   int
}

// Open opens a badger database for zones.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open zone store: %w", err)
	}

	s := New(db)
	s.ownsDB = true
	return s, nil
}

// New wraps an already open database. Close will not close it.
func New(db *badger.DB) *Store {
	return &Store{
		db:          db,
		logger:      logging.WithComponent("zonestore"),
		subscribers: make(map[int]func(Change)),
	}
}

// DB returns the underlying database so other components can share it.
func (s *Store) DB() *badger.DB {
	return s.db
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

// Subscribe registers fn for every future change and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(changes ...Change) {
	if len(changes) == 0 {
		return
	}

	s.mu.RLock()
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, s.subscribers[id])
	}
	s.mu.RUnlock()

	for _, c := range changes {
		s.logger.Debug().Str("zone", c.Key).Str("change", c.Kind.String()).Msg("Zone changed")
		for _, fn := range subs {
			fn(c)
		}
	}
}

func storageKey(key string) []byte {
	return []byte(zoneKeyPrefix + key)
}

func readZone(txn *badger.Txn, key string) (*zone.Zone, error) {
	item, err := txn.Get(storageKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrZoneNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get zone %s: %w", key, err)
	}

	var z zone.Zone
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &z)
	}); err != nil {
		return nil, fmt.Errorf("decode zone %s: %w", key, err)
	}
	return &z, nil
}

func writeZone(txn *badger.Txn, z *zone.Zone) error {
	data, err := json.Marshal(z)
	if err != nil {
		return fmt.Errorf("marshal zone %s: %w", z.Key(), err)
	}
	if err := txn.Set(storageKey(z.Key()), data); err != nil {
		return fmt.Errorf("set zone %s: %w", z.Key(), err)
	}
	return nil
}

// update runs fn in a read-write transaction, retrying when badger reports a
// conflict with a concurrent writer.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug().Int("attempt", attempt+1).Msg("Transaction conflict, retrying")
	}
	return err
}

// Get returns the zone stored under key.
func (s *Store) Get(ctx context.Context, key string) (*zone.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var z *zone.Zone
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		z, err = readZone(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return z, nil
}

// List returns every zone ordered by key.
func (s *Store) List(ctx context.Context) ([]*zone.Zone, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var zones []*zone.Zone
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(zoneKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var z zone.Zone
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &z)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			zones = append(zones, &z)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list zones: %w", err)
	}
	return zones, nil
}

// Put inserts or replaces a zone definition. The stored membership flag is
// kept, since only the engine may change it.
func (s *Store) Put(ctx context.Context, z *zone.Zone) error {
	var change *Change

	err := s.update(ctx, func(txn *badger.Txn) error {
		change = nil
		next := z.Clone()

		existing, err := readZone(txn, z.Key())
		switch {
		case errors.Is(err, ErrZoneNotFound):
			change = &Change{Kind: ChangeInsert, Key: next.Key(), Zone: next}
		case err != nil:
			return err
		default:
			next.InRegion = existing.InRegion
			if existing.SameDefinition(next) {
				return nil
			}
			change = &Change{Kind: ChangeUpdate, Key: next.Key(), Zone: next}
		}
		return writeZone(txn, next)
	})
	if err != nil {
		return err
	}

	if change != nil {
		s.notify(*change)
	}
	return nil
}

// Delete removes a zone.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.update(ctx, func(txn *badger.Txn) error {
		if _, err := readZone(txn, key); err != nil {
			return err
		}
		return txn.Delete(storageKey(key))
	})
	if err != nil {
		return err
	}

	s.notify(Change{Kind: ChangeDelete, Key: key})
	return nil
}

// ReplaceServer makes the stored zones of serverID match zones in one
// transaction. Zones missing from the new set are removed and surviving zones
// keep their membership. Every zone in zones is assigned to serverID.
func (s *Store) ReplaceServer(ctx context.Context, serverID string, zones []*zone.Zone) ([]Change, error) {
	var changes []Change

	err := s.update(ctx, func(txn *badger.Txn) error {
		changes = changes[:0]

		existing := map[string]*zone.Zone{}
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(zoneKeyPrefix)
		it := txn.NewIterator(opts)
		for it.Rewind(); it.Valid(); it.Next() {
			var z zone.Zone
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &z)
			}); err != nil {
				it.Close()
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if z.ServerID == serverID {
				existing[z.Key()] = &z
			}
		}
		it.Close()

		seen := map[string]bool{}
		for _, in := range zones {
			next := in.Clone()
			next.ServerID = serverID
			key := next.Key()
			if seen[key] {
				return fmt.Errorf("duplicate zone %s", key)
			}
			seen[key] = true

			if prev, ok := existing[key]; ok {
				next.InRegion = prev.InRegion
				if prev.SameDefinition(next) {
					continue
				}
				changes = append(changes, Change{Kind: ChangeUpdate, Key: key, Zone: next})
			} else {
				changes = append(changes, Change{Kind: ChangeInsert, Key: key, Zone: next})
			}
			if err := writeZone(txn, next); err != nil {
				return err
			}
		}

		for key := range existing {
			if seen[key] {
				continue
			}
			if err := txn.Delete(storageKey(key)); err != nil {
				return fmt.Errorf("delete zone %s: %w", key, err)
			}
			changes = append(changes, Change{Kind: ChangeDelete, Key: key})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replace zones for %q: %w", serverID, err)
	}

	sort.SliceStable(changes, func(i, j int) bool { return changes[i].Key < changes[j].Key })
	s.notify(changes...)
	return changes, nil
}

// SwapMembership sets the zone's membership flag and returns the previous
// value. The read and the write happen in one transaction.
func (s *Store) SwapMembership(ctx context.Context, key string, inRegion bool) (bool, error) {
	var (
		previous bool
		updated  *zone.Zone
	)

	err := s.update(ctx, func(txn *badger.Txn) error {
		updated = nil
		z, err := readZone(txn, key)
		if err != nil {
			return err
		}
		previous = z.InRegion
		if previous == inRegion {
			return nil
		}
		z.InRegion = inRegion
		updated = z
		return writeZone(txn, z)
	})
	if err != nil {
		return false, err
	}

	if updated != nil {
		s.logger.Debug().Str("zone", key).Bool("before", previous).Bool("after", inRegion).Msg("Membership swapped")
		s.notify(Change{Kind: ChangeMembership, Key: key, Zone: updated})
	}
	return previous, nil
}

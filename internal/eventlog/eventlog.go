// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package eventlog

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/zonekeeper/internal/logging"
)

// Topic is the watermill topic client events are published on.
const Topic = "client_events"

const eventKeyPrefix = "event:"

// EventType groups client events for filtering.
type EventType string

const (
	TypeLocationUpdate      EventType = "locationUpdate"
	TypeNetworkRequest      EventType = "networkRequest"
	TypeServiceCall         EventType = "serviceCall"
	TypeSettings            EventType = "settings"
	TypeBackgroundOperation EventType = "backgroundOperation"
	TypeUnknown             EventType = "unknown"
)

// ClientEvent is one entry in the event log.
type ClientEvent struct {
	ID      string            `json:"id"`
	Date    time.Time         `json:"date"`
	Text    string            `json:"text"`
	Type    EventType         `json:"type"`
	Payload map[string]string `json:"payload,omitempty"`
}

// NewClientEvent creates an event of the given type.
func NewClientEvent(text string, typ EventType, payload map[string]string) ClientEvent {
	return ClientEvent{Text: text, Type: typ, Payload: payload}
}

// Sink accepts client events.
type Sink interface {
	AddEvent(ctx context.Context, event ClientEvent) error
}

// Config configures retention.
type Config struct {
	// Retention drops events older than this. Zero keeps events forever.
	Retention time.Duration

	// MaxEvents trims the log to this many newest events. Zero means unbounded.
	MaxEvents int
}

// Log is the badger-backed event log.
type Log struct {
	db     *badger.DB
	cfg    Config
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	closed bool
}

// New creates a Log on top of db.
func New(db *badger.DB, cfg Config) *Log {
	logger := logging.WithComponent("eventlog")
	return &Log{
		db:  db,
		cfg: cfg,
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, logging.NewWatermillAdapter(logger)),
		logger: logger,
		now:    time.Now,
	}
}

func eventKey(date time.Time, id string) []byte {
	key := make([]byte, 0, len(eventKeyPrefix)+8+1+len(id))
	key = append(key, eventKeyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(date.UnixNano()))
	key = append(key, ':')
	key = append(key, id...)
	return key
}

// AddEvent stores, logs and publishes event. Missing ID and Date are filled in.
func (l *Log) AddEvent(ctx context.Context, ev ClientEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Date.IsZero() {
		ev.Date = l.now()
	}
	if ev.Type == "" {
		ev.Type = TypeUnknown
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal client event: %w", err)
	}

	if err := l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(ev.Date, ev.ID), data)
	}); err != nil {
		return fmt.Errorf("store client event: %w", err)
	}

	entry := logging.Ctx(ctx).Info().Str("component", "eventlog").Str("type", string(ev.Type))
	for k, v := range ev.Payload {
		entry = entry.Str(k, v)
	}
	entry.Msg(ev.Text)

	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return nil
	}

	msg := message.NewMessage(ev.ID, data)
	if err := l.pubsub.Publish(Topic, msg); err != nil {
		l.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("Failed to publish client event")
	}
	return nil
}

// Query filters List results.
type Query struct {
	Type   EventType
	Search string
	Limit  int
}

func (q Query) matches(ev *ClientEvent) bool {
	if q.Type != "" && ev.Type != q.Type {
		return false
	}
	if q.Search != "" && !strings.Contains(strings.ToLower(ev.Text), strings.ToLower(q.Search)) {
		return false
	}
	return true
}

// List returns matching events, newest first.
func (l *Log) List(ctx context.Context, q Query) ([]ClientEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []ClientEvent
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(eventKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append([]byte(eventKeyPrefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			var ev ClientEvent
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode client event: %w", err)
			}
			if !q.matches(&ev) {
				continue
			}
			events = append(events, ev)
			if q.Limit > 0 && len(events) >= q.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list client events: %w", err)
	}
	return events, nil
}

// Prune enforces retention and returns how many events were removed.
func (l *Log) Prune(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var cutoff []byte
	if l.cfg.Retention > 0 {
		cutoff = eventKey(l.now().Add(-l.cfg.Retention), "")
	}

	var doomed [][]byte
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		opts.Prefix = []byte(eventKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		kept := 0
		for it.Seek(append([]byte(eventKeyPrefix), 0xFF)); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			tooOld := cutoff != nil && string(key) < string(cutoff)
			tooMany := l.cfg.MaxEvents > 0 && kept >= l.cfg.MaxEvents
			if tooOld || tooMany {
				doomed = append(doomed, key)
				continue
			}
			kept++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan client events: %w", err)
	}

	if err := l.deleteKeys(doomed); err != nil {
		return 0, err
	}
	if len(doomed) > 0 {
		l.logger.Debug().Int("removed", len(doomed)).Msg("Pruned client events")
	}
	return len(doomed), nil
}

// Clear removes every event.
func (l *Log) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.db.DropPrefix([]byte(eventKeyPrefix)); err != nil {
		return fmt.Errorf("clear client events: %w", err)
	}
	return nil
}

func (l *Log) deleteKeys(keys [][]byte) error {
	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return fmt.Errorf("delete client event: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush deletes: %w", err)
	}
	return nil
}

// Subscribe streams events added after the call until ctx is done.
func (l *Log) Subscribe(ctx context.Context) (<-chan ClientEvent, error) {
	messages, err := l.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to client events: %w", err)
	}

	out := make(chan ClientEvent, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev ClientEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				l.logger.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable client event")
				msg.Ack()
				continue
			}
			msg.Ack()
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close stops publishing and closes live subscriptions. The database is not closed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.pubsub.Close()
}

// ZoneKeeper - Zone Geofencing and Presence Reporting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/zonekeeper

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/zonekeeper/internal/eventlog"
	"github.com/tomtom215/zonekeeper/internal/logging"
	"github.com/tomtom215/zonekeeper/internal/zone"
	"github.com/tomtom215/zonekeeper/internal/zonestore"
)

// Message types
const (
	MessageTypeClientEvent = "client_event"
	MessageTypeZoneChange  = "zone_change"
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
)

// Message is one frame sent to or received from a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ZoneChangeData is the payload of a zone_change message. Zone is nil for
// deletions.
type ZoneChangeData struct {
	Kind string     `json:"kind"`
	Key  string     `json:"key"`
	Zone *zone.Zone `json:"zone,omitempty"`
}

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex

	done     chan struct{}
	doneOnce sync.Once
}

// NewHub creates a Hub. Run it with Serve.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Serve runs the hub until ctx ends, then closes every client. It
// implements suture.Service.
//
// Lifecycle events are drained before broadcasts so a message is never
// sent to a client that has already unregistered.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.add(client)
			continue
		case client := <-h.Unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case client := <-h.Register:
			h.add(client)
		case client := <-h.Unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) String() string {
	return "websocket-hub"
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Str("component", "websocket-hub").Int("total_clients", total).Msg("Event stream client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Debug().Str("component", "websocket-hub").Int("total_clients", total).Msg("Event stream client disconnected")
}

// sortedClients returns clients in connection order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients drops any client whose send buffer is full.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var slow []*Client
	for _, client := range h.sortedClients() {
		select {
		case client.send <- message:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		close(client.send)
		delete(h.clients, client)
		logging.Warn().Str("component", "websocket-hub").Uint64("client", client.id).Msg("Dropped slow event stream client")
	}
}

func (h *Hub) shutdown() {
	h.doneOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	count := len(h.clients)
	for _, client := range h.sortedClients() {
		close(client.send)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	logging.Info().Str("component", "websocket-hub").Int("clients_closed", count).Msg("Event stream hub stopped")
}

// Broadcast queues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Broadcast(messageType string, data any) {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data}:
	default:
		logging.Warn().Str("component", "websocket-hub").Str("message_type", messageType).Msg("Broadcast queue full, dropping message")
	}
}

// BroadcastClientEvent sends a client event log entry.
func (h *Hub) BroadcastClientEvent(ev eventlog.ClientEvent) {
	h.Broadcast(MessageTypeClientEvent, ev)
}

// BroadcastZoneChange sends a committed zone store change.
func (h *Hub) BroadcastZoneChange(c zonestore.Change) {
	h.Broadcast(MessageTypeZoneChange, ZoneChangeData{Kind: c.Kind.String(), Key: c.Key, Zone: c.Zone})
}

// Attach registers a client for conn and starts its pumps. It closes conn
// and returns false when the hub has stopped.
func (h *Hub) Attach(conn *websocket.Conn) bool {
	client := NewClient(h, conn)
	select {
	case h.Register <- client:
	case <-h.done:
		_ = conn.Close()
		return false
	}
	client.Start()
	return true
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

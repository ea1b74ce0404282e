// Vigil - Behavioral Signal Detection and Trust/Risk Scoring Engine
// Copyright 2026 A. Vedell (avedell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/avedell/vigil

// Package websocket streams emitted signals to connected operator
// consoles. The hub satisfies the detection engine's Broadcaster
// interface, so every stored signal is pushed live.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/avedell/vigil/internal/logging"
	"github.com/avedell/vigil/internal/signal"
)

// Message types sent over the feed.
const (
	MessageTypeSignal = "signal"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is one frame on the feed.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub maintains the set of connected clients and fans signals out to
// them. Slow clients are dropped rather than allowed to block the feed.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates the signal feed hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Broadcast pushes a signal to all connected clients. Non-blocking: if
// the feed is saturated the frame is dropped, the signal store remains
// the source of truth.
func (h *Hub) Broadcast(sig signal.Signal) {
	select {
	case h.broadcast <- Message{Type: MessageTypeSignal, Data: sig}:
	default:
		logging.Warn().Str("type", string(sig.Type)).Msg("signal feed saturated, frame dropped")
	}
}

// Serve runs the hub until the context is cancelled, then closes every
// client. It satisfies the supervisor's service contract.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Lifecycle events take priority over broadcasts so client
		// state is settled before frames are delivered.
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
			continue
		case client := <-h.unregister:
			h.remove(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case client := <-h.register:
			h.add(client)
		case client := <-h.unregister:
			h.remove(client)
		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("signal feed client connected")
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().Int("total_clients", total).Msg("signal feed client disconnected")
}

// deliver fans one message out in client ID order. Stable ordering
// keeps delivery reproducible under test.
func (h *Hub) deliver(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer: drop it so the feed keeps moving.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	logging.Info().Str("component", "websocket-hub").Msg("signal feed stopped")
}

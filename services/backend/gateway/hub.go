// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"sync"

	"github.com/saathi-labs/companion-backend/pkg/logging"
)

// Hub tracks connected clients and their room memberships. All state
// lives behind one mutex; fanout never blocks on a slow client
// because sends go through each client's buffered channel.
type Hub struct {
	logger *logging.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

// NewHub builds an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds a client and joins its personal room.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.joinLocked(c, UserRoom(c.UserID))
	h.mu.Unlock()
}

// Unregister removes a client from every room and closes its send
// channel. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	c.teardown()
}

// Join adds the client to a room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
}

// Leave removes the client from a room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

// Broadcast sends an event to every client in the room.
func (h *Hub) Broadcast(room, event string, data any) {
	h.broadcast(room, nil, event, data)
}

// BroadcastExcept sends an event to every client in the room except
// the sender.
func (h *Hub) BroadcastExcept(room string, except *Client, event string, data any) {
	h.broadcast(room, except, event, data)
}

// ConnectionCount returns the number of registered clients.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(room string, except *Client, event string, data any) {
	frame := encodeFrame(event, data)

	h.mu.Lock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if c != except {
			members = append(members, c)
		}
	}
	h.mu.Unlock()

	for _, c := range members {
		if !c.enqueue(frame) {
			// Full buffer or a client torn down since the snapshot;
			// drop the frame rather than stall the room.
			h.logger.Warn("dropping frame",
				"client_id", c.ID, "event", event)
		}
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// UserRoom names a user's personal room.
func UserRoom(userID string) string { return "user:" + userID }

// ChatRoom names a chat's room.
func ChatRoom(chatID string) string { return "chat:" + chatID }

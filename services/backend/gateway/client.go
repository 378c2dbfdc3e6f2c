// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may go silent before it is
	// considered dead. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound frames.
	maxMessageSize = 8192

	// sendBuffer is the per-client outbound queue depth.
	sendBuffer = 256
)

// Client is one websocket connection bound to an authenticated user.
// All writes to the socket go through the send channel so they are
// serialized by the single write pump.
type Client struct {
	ID     string
	UserID string
	AppID  string

	conn *websocket.Conn

	// sendMu guards send against teardown: the channel is only closed
	// while no enqueue is in flight, so a concurrent broadcast can
	// never send on a closed channel.
	sendMu sync.Mutex
	closed bool
	send   chan []byte

	// rooms is owned by the hub and guarded by the hub mutex.
	rooms map[string]struct{}
}

func newClient(id, userID, appID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		AppID:  appID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]struct{}),
	}
}

// Emit queues an event for this client only. Frames are dropped when
// the client's buffer is full or the client is already torn down.
func (c *Client) Emit(event string, data any) {
	c.enqueue(encodeFrame(event, data))
}

// enqueue queues an encoded frame without blocking. Reports false when
// the frame was dropped, either because the buffer is full or the
// client is torn down.
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// teardown closes the send channel, ending the write pump. Idempotent;
// every later enqueue is a silent drop.
func (c *Client) teardown() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send channel onto the socket and keeps the
// connection alive with pings. One writePump per connection; it exits
// when the send channel closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames off the socket and hands them to dispatch.
// It exits on any read error and tears the client down.
func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.hub.Unregister(c)
		g.metrics.ActiveConnections.Dec()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read failed",
					"client_id", c.ID, "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.Emit(EvError, errorPayload{Message: "malformed frame"})
			continue
		}
		g.dispatch(c, frame)
	}
}

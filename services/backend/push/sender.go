// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package push delivers notifications to registered device tokens
// over the FCM HTTP endpoint. Delivery is best effort: a failed send
// is logged and counted, never retried.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/saathi-labs/companion-backend/pkg/logging"
)

// Notification is one push payload.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Sender delivers a notification to one device token.
type Sender interface {
	Send(ctx context.Context, token string, n Notification) error
}

// =============================================================================
// HTTP sender
// =============================================================================

// fcmMessage is the legacy FCM request body.
type fcmMessage struct {
	To           string       `json:"to"`
	Notification Notification `json:"notification"`
}

// HTTPSender posts to the FCM endpoint, rate limited so a full-tenant
// fanout cannot burst past the provider's quota.
type HTTPSender struct {
	endpoint  string
	serverKey string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *logging.Logger
}

var _ Sender = (*HTTPSender)(nil)

// NewHTTPSender builds the production sender. Sends are limited to
// 50 per second with a burst of 100.
func NewHTTPSender(endpoint, serverKey string, logger *logging.Logger) *HTTPSender {
	return &HTTPSender{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(50), 100),
		logger:    logger,
	}
}

// Send implements Sender.
func (s *HTTPSender) Send(ctx context.Context, token string, n Notification) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("push: rate limit wait: %w", err)
	}

	body, err := json.Marshal(fcmMessage{To: token, Notification: n})
	if err != nil {
		return fmt.Errorf("push: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.serverKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push: provider returned %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// Nop and capture senders
// =============================================================================

// NopSender discards notifications. Used when no FCM endpoint is
// configured.
type NopSender struct{}

var _ Sender = NopSender{}

// Send implements Sender.
func (NopSender) Send(context.Context, string, Notification) error { return nil }

// Delivery records one captured send.
type Delivery struct {
	Token        string
	Notification Notification
}

// CaptureSender records sends in memory for tests.
type CaptureSender struct {
	mu         sync.Mutex
	deliveries []Delivery
	Err        error
}

var _ Sender = (*CaptureSender)(nil)

// NewCaptureSender builds an empty capture sender.
func NewCaptureSender() *CaptureSender {
	return &CaptureSender{}
}

// Send implements Sender.
func (s *CaptureSender) Send(_ context.Context, token string, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.deliveries = append(s.deliveries, Delivery{Token: token, Notification: n})
	return nil
}

// Deliveries returns a copy of everything sent so far.
func (s *CaptureSender) Deliveries() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saathi-labs/companion-backend/pkg/logging"
)

func TestHTTPSender_PostsFCMShape(t *testing.T) {
	var got fcmMessage
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "server-key", logging.New(logging.Config{Quiet: true}))
	err := sender.Send(context.Background(), "device-token-1", Notification{
		Title: "Saathi", Body: "kaise ho?",
	})

	require.NoError(t, err)
	assert.Equal(t, "key=server-key", auth)
	assert.Equal(t, "device-token-1", got.To)
	assert.Equal(t, "kaise ho?", got.Notification.Body)
}

func TestHTTPSender_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL, "bad-key", logging.New(logging.Config{Quiet: true}))
	err := sender.Send(context.Background(), "device-token-1", Notification{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestCaptureSender_Records(t *testing.T) {
	sender := NewCaptureSender()
	require.NoError(t, sender.Send(context.Background(), "a", Notification{Title: "one"}))
	require.NoError(t, sender.Send(context.Background(), "b", Notification{Title: "two"}))

	deliveries := sender.Deliveries()
	require.Len(t, deliveries, 2)
	assert.Equal(t, "a", deliveries[0].Token)
	assert.Equal(t, "two", deliveries[1].Notification.Title)
}

func TestNopSender(t *testing.T) {
	assert.NoError(t, NopSender{}.Send(context.Background(), "x", Notification{}))
}

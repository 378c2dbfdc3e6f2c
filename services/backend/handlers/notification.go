// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/push"
)

// StoreNotificationToken handles POST /api/v1/notification/store-token
// and POST /api/v1/notification/. Re-registering an existing token
// reactivates it and reassigns it to the caller.
func (h *Handlers) StoreNotificationToken(c *gin.Context) {
	var req datatypes.StoreTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	token := &datatypes.DeviceToken{
		UserID:   user.ID,
		Token:    req.Token,
		Platform: req.Platform,
		Active:   true,
	}
	if err := t.Stores.Tokens.Upsert(c.Request.Context(), token); err != nil {
		apierr.Abort(c, apierr.Internal("token registration failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "token registered"})
}

// TestNotification handles POST /api/v1/notification/test: sends one
// push to every active device of the caller.
func (h *Handlers) TestNotification(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	tokens, err := t.Stores.Tokens.ListActive(c.Request.Context())
	if err != nil {
		apierr.Abort(c, apierr.Internal("token listing failed").WithCause(err))
		return
	}

	note := push.Notification{
		Title: "Saathi",
		Body:  "Test notification from your companion.",
	}
	sent := 0
	for _, dt := range tokens {
		if dt.UserID != user.ID {
			continue
		}
		if err := h.sender.Send(c.Request.Context(), dt.Token, note); err != nil {
			h.logger.Warn("test push failed", "token", dt.Token, "error", err)
			continue
		}
		sent++
	}
	ok(c, http.StatusOK, gin.H{"sent": sent})
}

// NotificationTokenCounts handles GET /api/v1/notification/tokens:
// active token counts per app.
func (h *Handlers) NotificationTokenCounts(c *gin.Context) {
	counts := gin.H{}
	for _, appID := range h.registry.AppIDs() {
		t, err := h.registry.Resolve(c.Request.Context(), appID)
		if err != nil {
			apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
			return
		}
		n, err := t.Stores.Tokens.Count(c.Request.Context())
		if err != nil {
			apierr.Abort(c, apierr.Internal("token count failed").WithCause(err))
			return
		}
		counts[appID] = n
	}
	ok(c, http.StatusOK, counts)
}

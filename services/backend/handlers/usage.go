// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/store"
)

// UploadUsage handles POST /api/v1/usage/usage: a batch of client-side
// usage events. Uploads are rejected unless the user has consented to
// app usage collection.
func (h *Handlers) UploadUsage(c *gin.Context) {
	var req datatypes.UsageBatchRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	consent, err := t.Stores.Consents.Get(c.Request.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !consent.AppUsage) {
		apierr.Abort(c, apierr.Forbidden("app usage collection not consented"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("consent lookup failed").WithCause(err))
		return
	}

	logs := make([]datatypes.UsageLog, 0, len(req.Logs))
	for _, entry := range req.Logs {
		at := time.Now().UTC()
		if entry.Timestamp > 0 {
			at = time.UnixMilli(entry.Timestamp).UTC()
		}
		logs = append(logs, datatypes.UsageLog{
			UserID:    user.ID,
			EventType: entry.EventType,
			Screen:    entry.Screen,
			SessionID: entry.SessionID,
			Duration:  entry.Duration,
			Timestamp: at,
		})
	}

	if err := t.Stores.Usage.InsertMany(c.Request.Context(), logs); err != nil {
		apierr.Abort(c, apierr.Internal("usage upload failed").WithCause(err))
		return
	}
	ok(c, http.StatusCreated, gin.H{"inserted": len(logs)})
}

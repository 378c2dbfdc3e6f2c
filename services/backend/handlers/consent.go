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

	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/store"
)

// UpsertConsent handles POST /api/v1/consent/consent. Flags not present in the
// body keep their stored value, so a client can flip one flag without
// resending the rest.
func (h *Handlers) UpsertConsent(c *gin.Context) {
	var req datatypes.ConsentRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	consent, err := t.Stores.Consents.Get(c.Request.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		consent = &datatypes.Consent{UserID: user.ID}
	} else if err != nil {
		apierr.Abort(c, apierr.Internal("consent lookup failed").WithCause(err))
		return
	}

	if req.ResearchID != "" {
		consent.ResearchID = req.ResearchID
	}
	if req.ConversationLogs != nil {
		consent.ConversationLogs = *req.ConversationLogs
	}
	if req.AppUsage != nil {
		consent.AppUsage = *req.AppUsage
	}
	if req.Audio != nil {
		consent.Audio = *req.Audio
	}

	if err := t.Stores.Consents.Upsert(c.Request.Context(), consent); err != nil {
		apierr.Abort(c, apierr.Internal("consent update failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, consent)
}

// GetConsent handles GET /api/v1/consent/consent. A user who never recorded
// consent gets the all-false default rather than a 404.
func (h *Handlers) GetConsent(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	consent, err := t.Stores.Consents.Get(c.Request.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		consent = &datatypes.Consent{UserID: user.ID}
	} else if err != nil {
		apierr.Abort(c, apierr.Internal("consent lookup failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, consent)
}

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

// UpsertChatbotProfile handles POST /api/v1/chatbot/. The
// profile feeds the persona system prompt on the next completion.
func (h *Handlers) UpsertChatbotProfile(c *gin.Context) {
	var req datatypes.ChatbotProfileRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	profile := &datatypes.ChatbotProfile{
		UserID:   user.ID,
		Gender:   req.Gender,
		Purposes: req.Purposes,
	}
	if err := t.Stores.Profiles.Upsert(c.Request.Context(), profile); err != nil {
		apierr.Abort(c, apierr.Internal("profile update failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, profile)
}

// GetChatbotProfile handles GET /api/v1/chatbot/.
func (h *Handlers) GetChatbotProfile(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	profile, err := t.Stores.Profiles.Get(c.Request.Context(), user.ID)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("chatbot profile not found"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("profile lookup failed").WithCause(err))
		return
	}
	ok(c, http.StatusOK, profile)
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the REST surface: user accounts, chats,
// the admin dashboard, consent, usage uploads, chatbot profiles, and
// notification tokens. Handlers read the tenant and identity the
// middleware stored in the context and never touch Mongo directly;
// everything goes through the tenant's stores.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// Cookie names issued on signin.
const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// Handlers carries the shared dependencies of every REST handler.
type Handlers struct {
	registry *tenant.Registry
	tokens   *auth.Manager
	model    llm.Client
	sender   push.Sender
	logger   *logging.Logger

	accessTTL  time.Duration
	refreshTTL time.Duration
	secure     bool
}

// Config tunes cookie issuance.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// SecureCookies marks auth cookies Secure; on in production.
	SecureCookies bool
}

// New builds the handler set.
func New(registry *tenant.Registry, tokens *auth.Manager, model llm.Client,
	sender push.Sender, logger *logging.Logger, cfg Config) *Handlers {
	return &Handlers{
		registry:   registry,
		tokens:     tokens,
		model:      model,
		sender:     sender,
		logger:     logger,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		secure:     cfg.SecureCookies,
	}
}

// Health serves GET /health.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// ok writes the uniform success envelope.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// bindJSON binds the body and renders bind failures as 400.
func bindJSON(c *gin.Context, out interface{ Validate() error }) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		apierr.Abort(c, apierr.BadRequest("malformed request body").WithCause(err))
		return false
	}
	if err := out.Validate(); err != nil {
		apierr.Abort(c, apierr.BadRequest(err.Error()))
		return false
	}
	return true
}

// setAuthCookies issues the access and refresh cookies.
func (h *Handlers) setAuthCookies(c *gin.Context, access, refresh string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, access, int(h.accessTTL.Seconds()), "/", "", h.secure, true)
	c.SetCookie(refreshCookie, refresh, int(h.refreshTTL.Seconds()), "/", "", h.secure, true)
}

// clearAuthCookies expires both cookies.
func (h *Handlers) clearAuthCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, "", -1, "/", "", h.secure, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", h.secure, true)
}

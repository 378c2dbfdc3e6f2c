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
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// Signup handles POST /api/v1/user/signup.
func (h *Handlers) Signup(c *gin.Context) {
	var req datatypes.SignupRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		apierr.Abort(c, apierr.Internal("signup failed").WithCause(err))
		return
	}

	user := &datatypes.User{
		Name:             req.Name,
		Email:            req.Email,
		Password:         hash,
		EnrollmentNumber: req.EnrollmentNumber,
		Batch:            req.Batch,
		Course:           req.Course,
	}
	err = t.Stores.Users.Create(c.Request.Context(), user)
	if errors.Is(err, store.ErrDuplicate) {
		apierr.Abort(c, apierr.Conflict("user with this email already exists"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("signup failed").WithCause(err))
		return
	}

	h.issueTokens(c, t, user, http.StatusCreated)
}

// Signin handles POST /api/v1/user/Signin. The capital S is a client
// compatibility constraint.
func (h *Handlers) Signin(c *gin.Context) {
	var req datatypes.SigninRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user, err := t.Stores.Users.FindByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && !auth.CheckPassword(user.Password, req.Password)) {
		apierr.Abort(c, apierr.Unauthorized("invalid email or password"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("signin failed").WithCause(err))
		return
	}

	h.issueTokens(c, t, user, http.StatusOK)
}

// RefreshToken handles POST /api/v1/user/refresh-token. The tenant is
// resolved from the refresh token's app_id claim, not the request
// header, so a rotated token always lands on the issuing tenant.
func (h *Handlers) RefreshToken(c *gin.Context) {
	presented := refreshTokenFrom(c)
	if presented == "" {
		apierr.Abort(c, apierr.Unauthorized("refresh token required"))
		return
	}

	claims, err := h.tokens.VerifyRefresh(presented)
	if err != nil {
		apierr.Abort(c, apierr.Unauthorized("invalid refresh token"))
		return
	}

	t, err := h.registry.Resolve(c.Request.Context(), claims.AppID)
	if err != nil {
		apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		apierr.Abort(c, apierr.Unauthorized("invalid refresh token"))
		return
	}
	user, err := t.Stores.Users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("user not found"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("refresh failed").WithCause(err))
		return
	}

	// Rotation: only the persisted token is valid, once.
	if user.RefreshToken != presented {
		apierr.Abort(c, apierr.Unauthorized("refresh token revoked"))
		return
	}

	h.issueTokens(c, t, user, http.StatusOK)
}

// Logout handles POST /api/v1/user/logout (authenticated). Voids the
// persisted refresh token and expires both cookies.
func (h *Handlers) Logout(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	if err := t.Stores.Users.SetRefreshToken(c.Request.Context(), user.ID, ""); err != nil {
		apierr.Abort(c, apierr.Internal("logout failed").WithCause(err))
		return
	}

	h.clearAuthCookies(c)
	ok(c, http.StatusOK, gin.H{"message": "logged out"})
}

// issueTokens mints both tokens, persists the refresh token on the
// user, sets cookies, and writes the auth response body.
func (h *Handlers) issueTokens(c *gin.Context, t *tenant.Tenant, user *datatypes.User, status int) {
	access, err := h.tokens.MintAccess(user.ID.Hex(), user.Email, t.AppID, false)
	if err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}
	refresh, err := h.tokens.MintRefresh(user.ID.Hex(), t.AppID, false)
	if err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}
	if err := t.Stores.Users.SetRefreshToken(c.Request.Context(), user.ID, refresh); err != nil {
		apierr.Abort(c, apierr.Internal("token issuance failed").WithCause(err))
		return
	}

	h.setAuthCookies(c, access, refresh)
	ok(c, status, gin.H{
		"user":         user,
		"accessToken":  access,
		"refreshToken": refresh,
	})
}

// refreshTokenFrom reads the refresh token from the cookie or body.
func refreshTokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(refreshCookie); err == nil && cookie != "" {
		return cookie
	}
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&body); err == nil {
		return body.RefreshToken
	}
	return ""
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// AccessTokenCookie is the cookie the mobile clients receive on
// signin. The Authorization header is the fallback source.
const AccessTokenCookie = "accessToken"

// RequireUser authenticates a user request.
//
// Token sources, in order: accessToken cookie, then the Authorization
// header (with or without a Bearer prefix). The subject lookup runs
// against the tenant named by the token's app_id claim, falling back
// to the request's resolved tenant, then the default tenant. A valid
// token whose subject is absent from that tenant's store is rejected
// with 404: a token minted for one tenant cannot be replayed against
// another.
func RequireUser(registry *tenant.Registry, tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			apierr.Abort(c, apierr.Unauthorized("authentication required"))
			return
		}

		claims, err := tokens.VerifyAccess(token)
		if err != nil {
			apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
			return
		}

		t, err := tenantForClaims(c, registry, claims)
		if err != nil {
			apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
			return
		}

		userID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
			return
		}

		user, err := t.Stores.Users.FindByID(c.Request.Context(), userID)
		if errors.Is(err, store.ErrNotFound) {
			apierr.Abort(c, apierr.NotFound("user not found"))
			return
		}
		if err != nil {
			apierr.Abort(c, apierr.Internal("user lookup failed").WithCause(err))
			return
		}

		// The token's tenant wins for everything downstream.
		SetTenant(c, t)
		SetUser(c, user)
		SetClaims(c, claims)
		c.Next()
	}
}

// RequireAdmin authenticates a dashboard request. Same token sources
// and tenant routing as RequireUser, but the subject must exist in
// the tenant's admin store and the token must carry the admin claim.
func RequireAdmin(registry *tenant.Registry, tokens *auth.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			apierr.Abort(c, apierr.Unauthorized("authentication required"))
			return
		}

		claims, err := tokens.VerifyAccess(token)
		if err != nil || !claims.Admin {
			apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
			return
		}

		t, err := tenantForClaims(c, registry, claims)
		if err != nil {
			apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
			return
		}

		adminID, err := primitive.ObjectIDFromHex(claims.UserID)
		if err != nil {
			apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
			return
		}

		admin, err := t.Stores.Admins.FindByID(c.Request.Context(), adminID)
		if errors.Is(err, store.ErrNotFound) {
			apierr.Abort(c, apierr.NotFound("admin not found"))
			return
		}
		if err != nil {
			apierr.Abort(c, apierr.Internal("admin lookup failed").WithCause(err))
			return
		}

		SetTenant(c, t)
		SetAdmin(c, admin)
		SetClaims(c, claims)
		c.Next()
	}
}

// ExtractToken pulls the access token from the request. Cookie first,
// then Authorization header; the header value may be "Bearer <token>"
// or the raw token.
func ExtractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && cookie != "" {
		return cookie
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

// tenantForClaims picks the tenant for a subject lookup: the token's
// app_id claim, then the request's resolved tenant, then the default.
func tenantForClaims(c *gin.Context, registry *tenant.Registry, claims *auth.Claims) (*tenant.Tenant, error) {
	if claims.AppID != "" {
		return registry.Resolve(c.Request.Context(), claims.AppID)
	}
	if t := GetTenant(c); t != nil {
		return t, nil
	}
	return registry.Resolve(c.Request.Context(), registry.DefaultAppID())
}

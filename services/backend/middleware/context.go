// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the Gin middleware chain: tenant
// resolution from the X-App-ID header, the user auth gate, and the
// admin auth gate. Authenticated identity and the resolved tenant are
// stored in the Gin context under typed keys and read back through
// the Get helpers.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// Context keys. Typed prefixed strings prevent collisions with other
// middleware.
const (
	tenantKey = "saathi_tenant"
	userKey   = "saathi_user"
	adminKey  = "saathi_admin"
	claimsKey = "saathi_claims"
)

// SetTenant stores the resolved tenant for downstream handlers.
func SetTenant(c *gin.Context, t *tenant.Tenant) {
	c.Set(tenantKey, t)
}

// GetTenant returns the request's tenant, or nil when tenant
// resolution did not run.
func GetTenant(c *gin.Context) *tenant.Tenant {
	if v, ok := c.Get(tenantKey); ok {
		if t, ok := v.(*tenant.Tenant); ok {
			return t
		}
	}
	return nil
}

// SetUser stores the authenticated user.
func SetUser(c *gin.Context, u *datatypes.User) {
	c.Set(userKey, u)
}

// GetUser returns the authenticated user, or nil on unauthenticated
// routes.
func GetUser(c *gin.Context) *datatypes.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*datatypes.User); ok {
			return u
		}
	}
	return nil
}

// SetAdmin stores the authenticated admin.
func SetAdmin(c *gin.Context, a *datatypes.Admin) {
	c.Set(adminKey, a)
}

// GetAdmin returns the authenticated admin, or nil.
func GetAdmin(c *gin.Context) *datatypes.Admin {
	if v, ok := c.Get(adminKey); ok {
		if a, ok := v.(*datatypes.Admin); ok {
			return a
		}
	}
	return nil
}

// SetClaims stores the verified token claims.
func SetClaims(c *gin.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
}

// GetClaims returns the verified token claims, or nil.
func GetClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

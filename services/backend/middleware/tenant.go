// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// AppIDHeader names the tenant a request targets. Absent header means
// the default tenant.
const AppIDHeader = "X-App-ID"

// ResolveTenant resolves the request's tenant from the X-App-ID
// header and stores it in the context. An unknown app id is a client
// configuration error and renders as 500; nothing downstream can
// serve it.
func ResolveTenant(registry *tenant.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		appID := c.GetHeader(AppIDHeader)
		if appID == "" {
			appID = registry.DefaultAppID()
		}

		t, err := registry.Resolve(c.Request.Context(), appID)
		if err != nil {
			apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
			return
		}

		SetTenant(c, t)
		c.Next()
	}
}

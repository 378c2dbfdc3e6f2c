// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package apierr

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestError_WithCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal("database unavailable").WithCause(cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Error(), "connection refused")
	assert.True(t, errors.Is(err, cause))
}

func TestMiddleware_RendersEnvelope(t *testing.T) {
	router := gin.New()
	router.Use(Middleware())
	router.GET("/boom", func(c *gin.Context) {
		Abort(c, Conflict("user already exists"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success": false, "message": "user already exists"}`, w.Body.String())
}

func TestMiddleware_UnknownErrorIs500(t *testing.T) {
	router := gin.New()
	router.Use(Middleware())
	router.GET("/boom", func(c *gin.Context) {
		Abort(c, errors.New("raw internal detail"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "raw internal detail")
}

func TestMiddleware_LeavesWrittenResponses(t *testing.T) {
	router := gin.New()
	router.Use(Middleware())
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
		_ = c.Error(errors.New("late error"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
}

func TestTaxonomy_Statuses(t *testing.T) {
	assert.Equal(t, 400, BadRequest("x").Status)
	assert.Equal(t, 401, Unauthorized("x").Status)
	assert.Equal(t, 403, Forbidden("x").Status)
	assert.Equal(t, 404, NotFound("x").Status)
	assert.Equal(t, 409, Conflict("x").Status)
	assert.Equal(t, 429, TooManyRequests("x").Status)
	assert.Equal(t, 502, Upstream("x").Status)
	assert.Equal(t, 500, Internal("x").Status)
}

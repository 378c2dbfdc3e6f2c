// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/gateway"
	"github.com/saathi-labs/companion-backend/services/backend/handlers"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/push"
	"github.com/saathi-labs/companion-backend/services/backend/routes"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newRouterWithLogger(t, logging.New(logging.Config{Quiet: true}))
}

func newRouterWithLogger(t *testing.T, logger *logging.Logger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := tenant.NewStatic("app1", map[string]store.Stores{
		"app1": store.NewMemory(),
	})
	tokens := auth.NewManager("a", "r", time.Hour, time.Hour)
	metrics := observability.New()
	model := llm.NewScripted("ok")

	h := handlers.New(registry, tokens, model, push.NopSender{}, logger, handlers.Config{
		AccessTTL:  time.Hour,
		RefreshTTL: time.Hour,
	})
	gw := gateway.New(gateway.NewHub(logger), registry, tokens, model, metrics, logger)

	return routes.New(routes.Deps{
		Registry:    registry,
		Tokens:      tokens,
		Handlers:    h,
		Gateway:     gw,
		Metrics:     metrics,
		Logger:      logger,
		CORSOrigins: []string{"https://dashboard.saathilabs.in"},
	})
}

func TestRouter_Health(t *testing.T) {
	r := newRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	r := newRouter(t)

	// Drive one request through so the counters exist.
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "saathi_http_requests_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/user/signup", nil)
	req.Header.Set("Origin", "https://dashboard.saathilabs.in")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.saathilabs.in",
		rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRouter_CORSUnknownOriginGetsNoHeaders(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_RequestLogging(t *testing.T) {
	dir := t.TempDir()
	logger := logging.New(logging.Config{
		Level:   logging.LevelDebug,
		LogDir:  dir,
		Service: "routes",
		Quiet:   true,
	})
	r := newRouterWithLogger(t, logger)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	assert.Contains(t, string(data), `"msg":"http request"`)
	assert.Contains(t, string(data), `"path":"/health"`)
	assert.Contains(t, string(data), `"status":200`)
}

func TestRouter_UnknownTenantHeader(t *testing.T) {
	r := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-App-ID", "app9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

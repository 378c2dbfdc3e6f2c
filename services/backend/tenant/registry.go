// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tenant routes requests to per-app MongoDB databases.
//
// Each app variant ("app1", "app2") owns a fully isolated database.
// The Registry is built once at startup from config and passed by
// reference to everything that needs storage; there is no package
// global. Resolve connects lazily on first use and caches the tenant
// handle forever. Repeated Resolve calls for the same app id return
// the identical handle.
package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/store"
)

// connectTimeout bounds the first connection attempt per tenant.
const connectTimeout = 10 * time.Second

// Tenant is one app's storage handle.
type Tenant struct {
	AppID  string
	Stores store.Stores

	client *mongo.Client
}

// Registry resolves app ids to cached tenants.
type Registry struct {
	defaultAppID string
	uris         map[string]string
	logger       *logging.Logger

	mu      sync.RWMutex
	tenants map[string]*Tenant
}

// NewRegistry builds a registry from the app id to Mongo URI map.
// Nothing is connected until the first Resolve.
func NewRegistry(uris map[string]string, defaultAppID string, logger *logging.Logger) *Registry {
	return &Registry{
		defaultAppID: defaultAppID,
		uris:         uris,
		logger:       logger,
		tenants:      make(map[string]*Tenant),
	}
}

// NewStatic builds a registry over pre-built tenants, bypassing Mongo.
// Used by tests and local development with in-memory stores.
func NewStatic(defaultAppID string, tenants map[string]store.Stores) *Registry {
	r := &Registry{
		defaultAppID: defaultAppID,
		uris:         make(map[string]string),
		logger:       logging.Default(),
		tenants:      make(map[string]*Tenant),
	}
	for appID, stores := range tenants {
		r.uris[appID] = "static"
		r.tenants[appID] = &Tenant{AppID: appID, Stores: stores}
	}
	return r
}

// DefaultAppID returns the app id assumed when a request names none.
func (r *Registry) DefaultAppID() string {
	return r.defaultAppID
}

// Known reports whether appID is configured, without connecting.
func (r *Registry) Known(appID string) bool {
	_, ok := r.uris[appID]
	return ok
}

// AppIDs lists every configured app id.
func (r *Registry) AppIDs() []string {
	ids := make([]string, 0, len(r.uris))
	for id := range r.uris {
		ids = append(ids, id)
	}
	return ids
}

// Resolve returns the cached tenant for appID, connecting on first
// use. Unknown app ids are a configuration error.
func (r *Registry) Resolve(ctx context.Context, appID string) (*Tenant, error) {
	if appID == "" {
		appID = r.defaultAppID
	}

	r.mu.RLock()
	t, ok := r.tenants[appID]
	r.mu.RUnlock()
	if ok {
		return t, nil
	}

	uri, configured := r.uris[appID]
	if !configured {
		return nil, fmt.Errorf("tenant: unknown app id %q", appID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have connected while we waited.
	if t, ok := r.tenants[appID]; ok {
		return t, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("tenant: connect %s: %w", appID, err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("tenant: ping %s: %w", appID, err)
	}

	db := client.Database(databaseName(appID))
	if err := store.EnsureIndexes(connectCtx, db); err != nil {
		r.logger.Warn("index creation failed", "app_id", appID, "error", err)
	}

	t = &Tenant{
		AppID:  appID,
		Stores: store.NewMongo(db),
		client: client,
	}
	r.tenants[appID] = t
	r.logger.Info("tenant connected", "app_id", appID)
	return t, nil
}

// Close disconnects every connected tenant.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	for appID, t := range r.tenants {
		if t.client == nil {
			continue
		}
		if err := t.client.Disconnect(ctx); err != nil && first == nil {
			first = fmt.Errorf("tenant: disconnect %s: %w", appID, err)
		}
	}
	r.tenants = make(map[string]*Tenant)
	return first
}

// databaseName derives the per-app database name. URIs may point at a
// shared cluster, so each app gets its own named database.
func databaseName(appID string) string {
	return "saathi_" + appID
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store defines the persistence interfaces for one tenant's
// data and their MongoDB and in-memory implementations. Handlers only
// see the interfaces; the tenant registry binds them to the tenant's
// database.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is returned when an insert violates a uniqueness rule,
// such as a second signup with the same email.
var ErrDuplicate = errors.New("store: duplicate")

// UserStore persists registered users.
type UserStore interface {
	Create(ctx context.Context, user *datatypes.User) error
	FindByEmail(ctx context.Context, email string) (*datatypes.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*datatypes.User, error)
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
	List(ctx context.Context) ([]datatypes.User, error)
	Count(ctx context.Context) (int64, error)
}

// ChatFilter narrows admin chat listings. Zero values mean "any".
type ChatFilter struct {
	UserID  primitive.ObjectID
	Flagged *bool
	Page    int64
	Limit   int64
}

// ChatStore persists conversations with embedded messages.
type ChatStore interface {
	Create(ctx context.Context, chat *datatypes.Chat) error
	Get(ctx context.Context, id primitive.ObjectID) (*datatypes.Chat, error)
	// GetForUser returns the chat only if it belongs to userID and is
	// not soft deleted.
	GetForUser(ctx context.Context, id, userID primitive.ObjectID) (*datatypes.Chat, error)
	ListForUser(ctx context.Context, userID primitive.ObjectID) ([]datatypes.Chat, error)
	Recent(ctx context.Context, userID primitive.ObjectID, limit int64) ([]datatypes.Chat, error)
	AppendMessages(ctx context.Context, id primitive.ObjectID, messages ...datatypes.Message) error
	SetStatus(ctx context.Context, id, userID primitive.ObjectID, status string) error
	SetFlag(ctx context.Context, id primitive.ObjectID, flagged bool, reason string) error
	List(ctx context.Context, filter ChatFilter) ([]datatypes.Chat, int64, error)
	All(ctx context.Context) ([]datatypes.Chat, error)
	Count(ctx context.Context) (int64, error)
}

// AdminStore persists dashboard accounts.
type AdminStore interface {
	Create(ctx context.Context, admin *datatypes.Admin) error
	FindByEmail(ctx context.Context, email string) (*datatypes.Admin, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*datatypes.Admin, error)
	SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error
}

// ConsentStore persists per-user data-collection choices.
type ConsentStore interface {
	// Upsert replaces the user's consent record, keyed by user id.
	Upsert(ctx context.Context, consent *datatypes.Consent) error
	Get(ctx context.Context, userID primitive.ObjectID) (*datatypes.Consent, error)
}

// UsageStore persists app usage events.
type UsageStore interface {
	InsertMany(ctx context.Context, logs []datatypes.UsageLog) error
	All(ctx context.Context) ([]datatypes.UsageLog, error)
}

// ProfileStore persists chatbot persona profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, profile *datatypes.ChatbotProfile) error
	Get(ctx context.Context, userID primitive.ObjectID) (*datatypes.ChatbotProfile, error)
}

// TokenStore persists device push tokens, keyed by token string.
type TokenStore interface {
	Upsert(ctx context.Context, token *datatypes.DeviceToken) error
	ListActive(ctx context.Context) ([]datatypes.DeviceToken, error)
	Count(ctx context.Context) (int64, error)
	Deactivate(ctx context.Context, token string) error
}

// Stores bundles one tenant's store set.
type Stores struct {
	Users    UserStore
	Chats    ChatStore
	Admins   AdminStore
	Consents ConsentStore
	Usage    UsageStore
	Profiles ProfileStore
	Tokens   TokenStore
}

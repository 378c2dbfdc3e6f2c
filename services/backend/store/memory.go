// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
)

// NewMemory builds an in-memory store set backed by maps. It honors
// the same semantics as the Mongo stores (uniqueness, soft delete,
// ordering) and is used by tests and by local development without a
// database.
func NewMemory() Stores {
	return Stores{
		Users:    &memUsers{byID: map[primitive.ObjectID]*datatypes.User{}},
		Chats:    &memChats{byID: map[primitive.ObjectID]*datatypes.Chat{}},
		Admins:   &memAdmins{byID: map[primitive.ObjectID]*datatypes.Admin{}},
		Consents: &memConsents{byUser: map[primitive.ObjectID]*datatypes.Consent{}},
		Usage:    &memUsage{},
		Profiles: &memProfiles{byUser: map[primitive.ObjectID]*datatypes.ChatbotProfile{}},
		Tokens:   &memTokens{byToken: map[string]*datatypes.DeviceToken{}},
	}
}

// =============================================================================
// Users
// =============================================================================

type memUsers struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*datatypes.User
}

func (s *memUsers) Create(_ context.Context, user *datatypes.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	user.ID = primitive.NewObjectID()
	user.CreatedAt, user.UpdatedAt = now, now
	clone := *user
	s.byID[user.ID] = &clone
	return nil
}

func (s *memUsers) FindByEmail(_ context.Context, email string) (*datatypes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUsers) FindByID(_ context.Context, id primitive.ObjectID) (*datatypes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.byID[id]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *memUsers) SetRefreshToken(_ context.Context, id primitive.ObjectID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.RefreshToken = token
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memUsers) List(_ context.Context) ([]datatypes.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]datatypes.User, 0, len(s.byID))
	for _, u := range s.byID {
		users = append(users, *u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *memUsers) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// =============================================================================
// Chats
// =============================================================================

type memChats struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*datatypes.Chat
}

func (s *memChats) Create(_ context.Context, chat *datatypes.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	chat.ID = primitive.NewObjectID()
	chat.CreatedAt, chat.UpdatedAt = now, now
	if chat.Status == "" {
		chat.Status = datatypes.StatusActive
	}
	chat.IsActive = true
	if chat.Messages == nil {
		chat.Messages = []datatypes.Message{}
	}
	clone := cloneChat(chat)
	s.byID[chat.ID] = clone
	return nil
}

func (s *memChats) Get(_ context.Context, id primitive.ObjectID) (*datatypes.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.byID[id]; ok {
		return cloneChat(c), nil
	}
	return nil, ErrNotFound
}

func (s *memChats) GetForUser(_ context.Context, id, userID primitive.ObjectID) (*datatypes.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID || c.Status == datatypes.StatusUserDeleted {
		return nil, ErrNotFound
	}
	return cloneChat(c), nil
}

func (s *memChats) ListForUser(_ context.Context, userID primitive.ObjectID) ([]datatypes.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chats []datatypes.Chat
	for _, c := range s.byID {
		if c.UserID == userID && c.Status != datatypes.StatusUserDeleted {
			chats = append(chats, *cloneChat(c))
		}
	}
	sortByUpdatedDesc(chats)
	return chats, nil
}

func (s *memChats) Recent(ctx context.Context, userID primitive.ObjectID, limit int64) ([]datatypes.Chat, error) {
	chats, err := s.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(chats)) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

func (s *memChats) AppendMessages(_ context.Context, id primitive.ObjectID, messages ...datatypes.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Messages = append(c.Messages, messages...)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memChats) SetStatus(_ context.Context, id, userID primitive.ObjectID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	c.Status = status
	c.IsActive = status == datatypes.StatusActive
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memChats) SetFlag(_ context.Context, id primitive.ObjectID, flagged bool, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Flagged = flagged
	c.FlagReason = reason
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memChats) List(_ context.Context, filter ChatFilter) ([]datatypes.Chat, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chats []datatypes.Chat
	for _, c := range s.byID {
		if !filter.UserID.IsZero() && c.UserID != filter.UserID {
			continue
		}
		if filter.Flagged != nil && c.Flagged != *filter.Flagged {
			continue
		}
		chats = append(chats, *cloneChat(c))
	}
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].CreatedAt.After(chats[j].CreatedAt)
	})
	total := int64(len(chats))
	if filter.Limit > 0 {
		start := int64(0)
		if filter.Page > 1 {
			start = (filter.Page - 1) * filter.Limit
		}
		if start > total {
			start = total
		}
		end := start + filter.Limit
		if end > total {
			end = total
		}
		chats = chats[start:end]
	}
	return chats, total, nil
}

func (s *memChats) All(_ context.Context) ([]datatypes.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chats := make([]datatypes.Chat, 0, len(s.byID))
	for _, c := range s.byID {
		chats = append(chats, *cloneChat(c))
	}
	return chats, nil
}

func (s *memChats) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

func cloneChat(c *datatypes.Chat) *datatypes.Chat {
	clone := *c
	clone.Messages = make([]datatypes.Message, len(c.Messages))
	copy(clone.Messages, c.Messages)
	return &clone
}

func sortByUpdatedDesc(chats []datatypes.Chat) {
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}

// =============================================================================
// Admins
// =============================================================================

type memAdmins struct {
	mu   sync.RWMutex
	byID map[primitive.ObjectID]*datatypes.Admin
}

func (s *memAdmins) Create(_ context.Context, admin *datatypes.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Email == admin.Email {
			return ErrDuplicate
		}
	}
	admin.ID = primitive.NewObjectID()
	admin.CreatedAt = time.Now().UTC()
	clone := *admin
	s.byID[admin.ID] = &clone
	return nil
}

func (s *memAdmins) FindByEmail(_ context.Context, email string) (*datatypes.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.byID {
		if a.Email == email {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAdmins) FindByID(_ context.Context, id primitive.ObjectID) (*datatypes.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.byID[id]; ok {
		clone := *a
		return &clone, nil
	}
	return nil, ErrNotFound
}

func (s *memAdmins) SetRefreshToken(_ context.Context, id primitive.ObjectID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.RefreshToken = token
	return nil
}

// =============================================================================
// Consents
// =============================================================================

type memConsents struct {
	mu     sync.RWMutex
	byUser map[primitive.ObjectID]*datatypes.Consent
}

func (s *memConsents) Upsert(_ context.Context, consent *datatypes.Consent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := s.byUser[consent.UserID]
	if !ok {
		consent.ID = primitive.NewObjectID()
		consent.CreatedAt = now
	} else {
		consent.ID = existing.ID
		consent.CreatedAt = existing.CreatedAt
	}
	consent.UpdatedAt = now
	clone := *consent
	s.byUser[consent.UserID] = &clone
	return nil
}

func (s *memConsents) Get(_ context.Context, userID primitive.ObjectID) (*datatypes.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.byUser[userID]; ok {
		clone := *c
		return &clone, nil
	}
	return nil, ErrNotFound
}

// =============================================================================
// Usage logs
// =============================================================================

type memUsage struct {
	mu   sync.RWMutex
	logs []datatypes.UsageLog
}

func (s *memUsage) InsertMany(_ context.Context, logs []datatypes.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range logs {
		if logs[i].ID.IsZero() {
			logs[i].ID = primitive.NewObjectID()
		}
	}
	s.logs = append(s.logs, logs...)
	return nil
}

func (s *memUsage) All(_ context.Context) ([]datatypes.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]datatypes.UsageLog, len(s.logs))
	copy(out, s.logs)
	return out, nil
}

// =============================================================================
// Chatbot profiles
// =============================================================================

type memProfiles struct {
	mu     sync.RWMutex
	byUser map[primitive.ObjectID]*datatypes.ChatbotProfile
}

func (s *memProfiles) Upsert(_ context.Context, profile *datatypes.ChatbotProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := s.byUser[profile.UserID]
	if !ok {
		profile.ID = primitive.NewObjectID()
		profile.CreatedAt = now
	} else {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	}
	profile.UpdatedAt = now
	clone := *profile
	clone.Purposes = append([]string(nil), profile.Purposes...)
	s.byUser[profile.UserID] = &clone
	return nil
}

func (s *memProfiles) Get(_ context.Context, userID primitive.ObjectID) (*datatypes.ChatbotProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.byUser[userID]; ok {
		clone := *p
		clone.Purposes = append([]string(nil), p.Purposes...)
		return &clone, nil
	}
	return nil, ErrNotFound
}

// =============================================================================
// Device tokens
// =============================================================================

type memTokens struct {
	mu      sync.RWMutex
	byToken map[string]*datatypes.DeviceToken
}

func (s *memTokens) Upsert(_ context.Context, token *datatypes.DeviceToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := s.byToken[token.Token]
	if !ok {
		token.ID = primitive.NewObjectID()
		token.CreatedAt = now
	} else {
		token.ID = existing.ID
		token.CreatedAt = existing.CreatedAt
	}
	token.Active = true
	token.UpdatedAt = now
	clone := *token
	s.byToken[token.Token] = &clone
	return nil
}

func (s *memTokens) ListActive(_ context.Context) ([]datatypes.DeviceToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var tokens []datatypes.DeviceToken
	for _, t := range s.byToken {
		if t.Active {
			tokens = append(tokens, *t)
		}
	}
	return tokens, nil
}

func (s *memTokens) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, t := range s.byToken {
		if t.Active {
			n++
		}
	}
	return n, nil
}

func (s *memTokens) Deactivate(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.byToken[token]; ok {
		t.Active = false
		t.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the persisted document types and the
// validated request/response types shared by handlers, the gateway,
// and the stores. Every document type is bson-tagged for the tenant's
// MongoDB collections.
package datatypes

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat status values. A user delete is a soft delete: the chat keeps
// its messages and flips to StatusUserDeleted.
const (
	StatusActive      = "active"
	StatusUserDeleted = "user-deleted"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is a registered student account. Passwords are stored as
// bcrypt hashes; RefreshToken holds the currently valid refresh JWT
// (rotated on refresh, cleared on logout).
type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name             string             `bson:"name,omitempty" json:"name,omitempty"`
	Email            string             `bson:"email" json:"email"`
	Password         string             `bson:"password" json:"-"`
	EnrollmentNumber string             `bson:"enrollmentNumber" json:"enrollmentNumber"`
	Batch            string             `bson:"batch" json:"batch"`
	Course           string             `bson:"course" json:"course"`
	RefreshToken     string             `bson:"refreshToken,omitempty" json:"-"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Message is one turn of a conversation, embedded in its Chat in
// insertion order.
type Message struct {
	ID        string    `bson:"id" json:"id"`
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Chat is a conversation between one user and the assistant. Messages
// are embedded and ordered; there is no cross-request ordering
// guarantee for concurrent writers to the same chat.
type Chat struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
	Title      string             `bson:"title" json:"title"`
	Messages   []Message          `bson:"messages" json:"messages"`
	Flagged    bool               `bson:"flagged" json:"flagged"`
	FlagReason string             `bson:"flagReason,omitempty" json:"flagReason,omitempty"`
	Status     string             `bson:"status" json:"status"`
	IsActive   bool               `bson:"isActive" json:"isActive"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Admin is a dashboard account, stored separately from users.
type Admin struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name         string             `bson:"name,omitempty" json:"name,omitempty"`
	Email        string             `bson:"email" json:"email"`
	Password     string             `bson:"password" json:"-"`
	RefreshToken string             `bson:"refreshToken,omitempty" json:"-"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
}

// Consent records a user's data-collection choices. Keyed by user id;
// ResearchID is carried for the research export when present.
type Consent struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID           primitive.ObjectID `bson:"userId" json:"userId"`
	ResearchID       string             `bson:"researchId,omitempty" json:"researchId,omitempty"`
	ConversationLogs bool               `bson:"conversationLogs" json:"conversationLogs"`
	AppUsage         bool               `bson:"appUsage" json:"appUsage"`
	Audio            bool               `bson:"audio" json:"audio"`
	CreatedAt        time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// UsageLog is one app usage event uploaded by the client in batches.
// Uploads are rejected unless the user's consent has AppUsage set.
type UsageLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	EventType string             `bson:"eventType" json:"eventType"`
	Screen    string             `bson:"screen,omitempty" json:"screen,omitempty"`
	SessionID string             `bson:"sessionId,omitempty" json:"sessionId,omitempty"`
	Duration  int64              `bson:"durationMs,omitempty" json:"durationMs,omitempty"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// ChatbotProfile is the user's persona configuration. Gender selects
// the companion persona (Jojo or Gini); Purposes drive the roles line
// of the system prompt.
type ChatbotProfile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	Gender    string             `bson:"gender" json:"gender"`
	Purposes  []string           `bson:"purposes" json:"purposes"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// DeviceToken is a push registration. Tokens are persisted per tenant;
// inactive tokens are kept for audit but skipped by the sender.
type DeviceToken struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID    primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	Token     string             `bson:"token" json:"token"`
	Platform  string             `bson:"platform,omitempty" json:"platform,omitempty"`
	Active    bool               `bson:"active" json:"active"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

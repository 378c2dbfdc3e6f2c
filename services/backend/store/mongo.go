// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
)

// Collection names within a tenant database.
const (
	colUsers    = "users"
	colChats    = "chats"
	colAdmins   = "admins"
	colConsents = "consents"
	colUsage    = "usage_logs"
	colProfiles = "chatbot_profiles"
	colTokens   = "device_tokens"
)

// NewMongo builds the full store set over one tenant database.
func NewMongo(db *mongo.Database) Stores {
	return Stores{
		Users:    &mongoUsers{col: db.Collection(colUsers)},
		Chats:    &mongoChats{col: db.Collection(colChats)},
		Admins:   &mongoAdmins{col: db.Collection(colAdmins)},
		Consents: &mongoConsents{col: db.Collection(colConsents)},
		Usage:    &mongoUsage{col: db.Collection(colUsage)},
		Profiles: &mongoProfiles{col: db.Collection(colProfiles)},
		Tokens:   &mongoTokens{col: db.Collection(colTokens)},
	}
}

// EnsureIndexes creates the uniqueness and lookup indexes the stores
// rely on. Called once per tenant at connect time; safe to repeat.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := options.Index().SetUnique(true)

	_, err := db.Collection(colUsers).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(colChats).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "updatedAt", Value: -1}},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(colConsents).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: unique,
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(colTokens).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: unique,
	})
	return err
}

func mapFindErr(err error) error {
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	return err
}

// =============================================================================
// Users
// =============================================================================

type mongoUsers struct {
	col *mongo.Collection
}

func (s *mongoUsers) Create(ctx context.Context, user *datatypes.User) error {
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	res, err := s.col.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	user.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *mongoUsers) FindByEmail(ctx context.Context, email string) (*datatypes.User, error) {
	var user datatypes.User
	err := s.col.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &user, nil
}

func (s *mongoUsers) FindByID(ctx context.Context, id primitive.ObjectID) (*datatypes.User, error) {
	var user datatypes.User
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &user, nil
}

func (s *mongoUsers) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	res, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"refreshToken": token,
		"updatedAt":    time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoUsers) List(ctx context.Context) ([]datatypes.User, error) {
	cur, err := s.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var users []datatypes.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *mongoUsers) Count(ctx context.Context) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{})
}

// =============================================================================
// Chats
// =============================================================================

type mongoChats struct {
	col *mongo.Collection
}

func (s *mongoChats) Create(ctx context.Context, chat *datatypes.Chat) error {
	now := time.Now().UTC()
	chat.CreatedAt, chat.UpdatedAt = now, now
	if chat.Status == "" {
		chat.Status = datatypes.StatusActive
	}
	chat.IsActive = true
	if chat.Messages == nil {
		chat.Messages = []datatypes.Message{}
	}
	res, err := s.col.InsertOne(ctx, chat)
	if err != nil {
		return err
	}
	chat.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *mongoChats) Get(ctx context.Context, id primitive.ObjectID) (*datatypes.Chat, error) {
	var chat datatypes.Chat
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &chat, nil
}

func (s *mongoChats) GetForUser(ctx context.Context, id, userID primitive.ObjectID) (*datatypes.Chat, error) {
	var chat datatypes.Chat
	err := s.col.FindOne(ctx, bson.M{
		"_id":    id,
		"userId": userID,
		"status": bson.M{"$ne": datatypes.StatusUserDeleted},
	}).Decode(&chat)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &chat, nil
}

func (s *mongoChats) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]datatypes.Chat, error) {
	return s.find(ctx, bson.M{
		"userId": userID,
		"status": bson.M{"$ne": datatypes.StatusUserDeleted},
	}, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
}

func (s *mongoChats) Recent(ctx context.Context, userID primitive.ObjectID, limit int64) ([]datatypes.Chat, error) {
	return s.find(ctx, bson.M{
		"userId": userID,
		"status": bson.M{"$ne": datatypes.StatusUserDeleted},
	}, options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(limit))
}

func (s *mongoChats) AppendMessages(ctx context.Context, id primitive.ObjectID, messages ...datatypes.Message) error {
	res, err := s.col.UpdateByID(ctx, id, bson.M{
		"$push": bson.M{"messages": bson.M{"$each": messages}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoChats) SetStatus(ctx context.Context, id, userID primitive.ObjectID, status string) error {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": bson.M{
			"status":    status,
			"isActive":  status == datatypes.StatusActive,
			"updatedAt": time.Now().UTC(),
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoChats) SetFlag(ctx context.Context, id primitive.ObjectID, flagged bool, reason string) error {
	res, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"flagged":    flagged,
		"flagReason": reason,
		"updatedAt":  time.Now().UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *mongoChats) List(ctx context.Context, filter ChatFilter) ([]datatypes.Chat, int64, error) {
	query := bson.M{}
	if !filter.UserID.IsZero() {
		query["userId"] = filter.UserID
	}
	if filter.Flagged != nil {
		query["flagged"] = *filter.Flagged
	}

	total, err := s.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
		if filter.Page > 1 {
			opts.SetSkip((filter.Page - 1) * filter.Limit)
		}
	}
	chats, err := s.find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

func (s *mongoChats) All(ctx context.Context) ([]datatypes.Chat, error) {
	return s.find(ctx, bson.M{}, options.Find())
}

func (s *mongoChats) Count(ctx context.Context) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{})
}

func (s *mongoChats) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]datatypes.Chat, error) {
	cur, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var chats []datatypes.Chat
	if err := cur.All(ctx, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// =============================================================================
// Admins
// =============================================================================

type mongoAdmins struct {
	col *mongo.Collection
}

func (s *mongoAdmins) Create(ctx context.Context, admin *datatypes.Admin) error {
	admin.CreatedAt = time.Now().UTC()
	res, err := s.col.InsertOne(ctx, admin)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	admin.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

func (s *mongoAdmins) FindByEmail(ctx context.Context, email string) (*datatypes.Admin, error) {
	var admin datatypes.Admin
	err := s.col.FindOne(ctx, bson.M{"email": email}).Decode(&admin)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &admin, nil
}

func (s *mongoAdmins) FindByID(ctx context.Context, id primitive.ObjectID) (*datatypes.Admin, error) {
	var admin datatypes.Admin
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&admin)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &admin, nil
}

func (s *mongoAdmins) SetRefreshToken(ctx context.Context, id primitive.ObjectID, token string) error {
	res, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"refreshToken": token}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// Consents
// =============================================================================

type mongoConsents struct {
	col *mongo.Collection
}

func (s *mongoConsents) Upsert(ctx context.Context, consent *datatypes.Consent) error {
	now := time.Now().UTC()
	consent.UpdatedAt = now
	_, err := s.col.UpdateOne(ctx,
		bson.M{"userId": consent.UserID},
		bson.M{
			"$set": bson.M{
				"researchId":       consent.ResearchID,
				"conversationLogs": consent.ConversationLogs,
				"appUsage":         consent.AppUsage,
				"audio":            consent.Audio,
				"updatedAt":        now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	return err
}

func (s *mongoConsents) Get(ctx context.Context, userID primitive.ObjectID) (*datatypes.Consent, error) {
	var consent datatypes.Consent
	err := s.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&consent)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &consent, nil
}

// =============================================================================
// Usage logs
// =============================================================================

type mongoUsage struct {
	col *mongo.Collection
}

func (s *mongoUsage) InsertMany(ctx context.Context, logs []datatypes.UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	docs := make([]any, len(logs))
	for i := range logs {
		docs[i] = logs[i]
	}
	_, err := s.col.InsertMany(ctx, docs)
	return err
}

func (s *mongoUsage) All(ctx context.Context) ([]datatypes.UsageLog, error) {
	cur, err := s.col.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var logs []datatypes.UsageLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// =============================================================================
// Chatbot profiles
// =============================================================================

type mongoProfiles struct {
	col *mongo.Collection
}

func (s *mongoProfiles) Upsert(ctx context.Context, profile *datatypes.ChatbotProfile) error {
	now := time.Now().UTC()
	profile.UpdatedAt = now
	_, err := s.col.UpdateOne(ctx,
		bson.M{"userId": profile.UserID},
		bson.M{
			"$set": bson.M{
				"gender":    profile.Gender,
				"purposes":  profile.Purposes,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	return err
}

func (s *mongoProfiles) Get(ctx context.Context, userID primitive.ObjectID) (*datatypes.ChatbotProfile, error) {
	var profile datatypes.ChatbotProfile
	err := s.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&profile)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return &profile, nil
}

// =============================================================================
// Device tokens
// =============================================================================

type mongoTokens struct {
	col *mongo.Collection
}

func (s *mongoTokens) Upsert(ctx context.Context, token *datatypes.DeviceToken) error {
	now := time.Now().UTC()
	_, err := s.col.UpdateOne(ctx,
		bson.M{"token": token.Token},
		bson.M{
			"$set": bson.M{
				"userId":    token.UserID,
				"platform":  token.Platform,
				"active":    true,
				"updatedAt": now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	return err
}

func (s *mongoTokens) ListActive(ctx context.Context) ([]datatypes.DeviceToken, error) {
	cur, err := s.col.Find(ctx, bson.M{"active": true})
	if err != nil {
		return nil, err
	}
	var tokens []datatypes.DeviceToken
	if err := cur.All(ctx, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *mongoTokens) Count(ctx context.Context) (int64, error) {
	return s.col.CountDocuments(ctx, bson.M{"active": true})
}

func (s *mongoTokens) Deactivate(ctx context.Context, token string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"active": false, "updatedAt": time.Now().UTC()}})
	return err
}

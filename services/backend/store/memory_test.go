// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
)

func TestMemUsers_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()

	first := &datatypes.User{Email: "a@example.edu", Password: "hash"}
	require.NoError(t, stores.Users.Create(ctx, first))
	assert.False(t, first.ID.IsZero())

	second := &datatypes.User{Email: "a@example.edu", Password: "hash"}
	assert.ErrorIs(t, stores.Users.Create(ctx, second), ErrDuplicate)
}

func TestMemChats_SoftDeleteHidesFromUserQueries(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	userID := mustCreateUser(t, stores, "u@example.edu")

	chat := &datatypes.Chat{UserID: userID, Title: "first"}
	require.NoError(t, stores.Chats.Create(ctx, chat))

	require.NoError(t, stores.Chats.SetStatus(ctx, chat.ID, userID, datatypes.StatusUserDeleted))

	_, err := stores.Chats.GetForUser(ctx, chat.ID, userID)
	assert.ErrorIs(t, err, ErrNotFound, "soft deleted chats are invisible to the owner")

	listed, err := stores.Chats.ListForUser(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Admin access still sees the document.
	kept, err := stores.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusUserDeleted, kept.Status)
}

func TestMemChats_GetForUser_WrongOwner(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	owner := mustCreateUser(t, stores, "owner@example.edu")
	other := mustCreateUser(t, stores, "other@example.edu")

	chat := &datatypes.Chat{UserID: owner, Title: "private"}
	require.NoError(t, stores.Chats.Create(ctx, chat))

	_, err := stores.Chats.GetForUser(ctx, chat.ID, other)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemChats_AppendPreservesOrder(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	userID := mustCreateUser(t, stores, "u@example.edu")

	chat := &datatypes.Chat{UserID: userID}
	require.NoError(t, stores.Chats.Create(ctx, chat))

	require.NoError(t, stores.Chats.AppendMessages(ctx, chat.ID,
		datatypes.Message{ID: "1", Role: datatypes.RoleUser, Content: "hi"},
		datatypes.Message{ID: "2", Role: datatypes.RoleAssistant, Content: "hello"},
	))
	require.NoError(t, stores.Chats.AppendMessages(ctx, chat.ID,
		datatypes.Message{ID: "3", Role: datatypes.RoleUser, Content: "how are you"},
	))

	got, err := stores.Chats.Get(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, []string{"1", "2", "3"},
		[]string{got.Messages[0].ID, got.Messages[1].ID, got.Messages[2].ID})
}

func TestMemChats_ListFilterAndPaging(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	userID := mustCreateUser(t, stores, "u@example.edu")

	for i := 0; i < 5; i++ {
		chat := &datatypes.Chat{UserID: userID}
		require.NoError(t, stores.Chats.Create(ctx, chat))
		if i%2 == 0 {
			require.NoError(t, stores.Chats.SetFlag(ctx, chat.ID, true, "review"))
		}
	}

	flagged := true
	chats, total, err := stores.Chats.List(ctx, ChatFilter{Flagged: &flagged})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, chats, 3)

	page, total, err := stores.Chats.List(ctx, ChatFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, page, 2)
}

func TestMemConsents_UpsertKeyedByUser(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()
	userID := mustCreateUser(t, stores, "u@example.edu")

	require.NoError(t, stores.Consents.Upsert(ctx, &datatypes.Consent{
		UserID: userID, AppUsage: true,
	}))
	require.NoError(t, stores.Consents.Upsert(ctx, &datatypes.Consent{
		UserID: userID, AppUsage: false, Audio: true,
	}))

	got, err := stores.Consents.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, got.AppUsage)
	assert.True(t, got.Audio)
}

func TestMemTokens_UpsertReactivates(t *testing.T) {
	ctx := context.Background()
	stores := NewMemory()

	require.NoError(t, stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "tok-1"}))
	require.NoError(t, stores.Tokens.Deactivate(ctx, "tok-1"))

	n, err := stores.Tokens.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, stores.Tokens.Upsert(ctx, &datatypes.DeviceToken{Token: "tok-1"}))
	n, err = stores.Tokens.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func mustCreateUser(t *testing.T, stores Stores, email string) primitive.ObjectID {
	t.Helper()
	user := &datatypes.User{Email: email, Password: "hash"}
	require.NoError(t, stores.Users.Create(context.Background(), user))
	return user.ID
}

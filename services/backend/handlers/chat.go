// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// recentChatLimit caps GET /chat/recent.
const recentChatLimit = 5

// StartChat handles POST /api/v1/chat: creates a chat from the first
// user message and returns it with the assistant's reply appended.
func (h *Handlers) StartChat(c *gin.Context) {
	var req datatypes.StartChatRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chat := &datatypes.Chat{
		UserID:   user.ID,
		Title:    deriveTitle(req.Title, req.Message),
		Messages: []datatypes.Message{newMessage(datatypes.RoleUser, req.Message)},
	}
	if err := t.Stores.Chats.Create(c.Request.Context(), chat); err != nil {
		apierr.Abort(c, apierr.Internal("failed to start chat").WithCause(err))
		return
	}

	reply, ok2 := h.generateReply(c, t, chat)
	if !ok2 {
		return
	}
	chat.Messages = append(chat.Messages, reply)

	ok(c, http.StatusCreated, chat)
}

// SendChatMessage handles POST /api/v1/chat/:chatId/message.
func (h *Handlers) SendChatMessage(c *gin.Context) {
	var req datatypes.SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chat, found := h.ownedChat(c, t, user.ID)
	if !found {
		return
	}

	userMsg := newMessage(datatypes.RoleUser, req.Message)
	if err := t.Stores.Chats.AppendMessages(c.Request.Context(), chat.ID, userMsg); err != nil {
		apierr.Abort(c, apierr.Internal("failed to save message").WithCause(err))
		return
	}
	chat.Messages = append(chat.Messages, userMsg)

	reply, ok2 := h.generateReply(c, t, chat)
	if !ok2 {
		return
	}

	ok(c, http.StatusOK, gin.H{
		"chatId":  chat.ID.Hex(),
		"message": userMsg,
		"reply":   reply,
	})
}

// ListChats handles GET /api/v1/chat.
func (h *Handlers) ListChats(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chats, err := t.Stores.Chats.ListForUser(c.Request.Context(), user.ID)
	if err != nil {
		apierr.Abort(c, apierr.Internal("failed to list chats").WithCause(err))
		return
	}
	ok(c, http.StatusOK, chats)
}

// RecentChats handles GET /api/v1/chat/recent.
func (h *Handlers) RecentChats(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chats, err := t.Stores.Chats.Recent(c.Request.Context(), user.ID, recentChatLimit)
	if err != nil {
		apierr.Abort(c, apierr.Internal("failed to list chats").WithCause(err))
		return
	}
	ok(c, http.StatusOK, chats)
}

// GetChat handles GET /api/v1/chat/:chatId.
func (h *Handlers) GetChat(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chat, found := h.ownedChat(c, t, user.ID)
	if !found {
		return
	}
	ok(c, http.StatusOK, chat)
}

// DeleteChat handles DELETE /api/v1/chat/:chatId. Soft delete: the
// chat flips to user-deleted and disappears from user queries, but
// stays visible to the dashboard.
func (h *Handlers) DeleteChat(c *gin.Context) {
	t := middleware.GetTenant(c)
	user := middleware.GetUser(c)

	chatID, err := primitive.ObjectIDFromHex(c.Param("chatId"))
	if err != nil {
		apierr.Abort(c, apierr.BadRequest("invalid chat id"))
		return
	}

	err = t.Stores.Chats.SetStatus(c.Request.Context(), chatID, user.ID, datatypes.StatusUserDeleted)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("chat not found"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("failed to delete chat").WithCause(err))
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "chat deleted"})
}

// generateReply runs a non-streaming completion over the chat history
// and persists the assistant message. Provider failures are mapped to
// the client taxonomy and abort the request.
func (h *Handlers) generateReply(c *gin.Context, t *tenant.Tenant, chat *datatypes.Chat) (datatypes.Message, bool) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	var profile *datatypes.ChatbotProfile
	if p, err := t.Stores.Profiles.Get(ctx, chat.UserID); err == nil {
		profile = p
	}
	userName := ""
	if u := middleware.GetUser(c); u != nil {
		userName = u.Name
	}

	messages := make([]llm.Message, 0, len(chat.Messages)+1)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: llm.BuildSystemPrompt(profile, userName),
	})
	for _, m := range chat.Messages {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	content, err := h.model.Complete(ctx, messages)
	if err != nil {
		apierr.Abort(c, llm.MapError(err))
		return datatypes.Message{}, false
	}

	reply := newMessage(datatypes.RoleAssistant, content)
	if err := t.Stores.Chats.AppendMessages(ctx, chat.ID, reply); err != nil {
		apierr.Abort(c, apierr.Internal("failed to save reply").WithCause(err))
		return datatypes.Message{}, false
	}
	return reply, true
}

// ownedChat loads :chatId and checks ownership.
func (h *Handlers) ownedChat(c *gin.Context, t *tenant.Tenant, userID primitive.ObjectID) (*datatypes.Chat, bool) {
	chatID, err := primitive.ObjectIDFromHex(c.Param("chatId"))
	if err != nil {
		apierr.Abort(c, apierr.BadRequest("invalid chat id"))
		return nil, false
	}

	chat, err := t.Stores.Chats.GetForUser(c.Request.Context(), chatID, userID)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("chat not found"))
		return nil, false
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("chat lookup failed").WithCause(err))
		return nil, false
	}
	return chat, true
}

func newMessage(role, content string) datatypes.Message {
	return datatypes.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// deriveTitle falls back to the first message, trimmed to 40 runes.
func deriveTitle(title, firstMessage string) string {
	if title != "" {
		return title
	}
	title = strings.TrimSpace(firstMessage)
	if utf8.RuneCountInString(title) > 40 {
		title = string([]rune(title)[:40])
	}
	return title
}

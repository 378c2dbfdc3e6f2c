// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/saathi-labs/companion-backend/pkg/logging"
	"github.com/saathi-labs/companion-backend/services/backend/apierr"
	"github.com/saathi-labs/companion-backend/services/backend/auth"
	"github.com/saathi-labs/companion-backend/services/backend/datatypes"
	"github.com/saathi-labs/companion-backend/services/backend/llm"
	"github.com/saathi-labs/companion-backend/services/backend/middleware"
	"github.com/saathi-labs/companion-backend/services/backend/observability"
	"github.com/saathi-labs/companion-backend/services/backend/store"
	"github.com/saathi-labs/companion-backend/services/backend/streaming"
	"github.com/saathi-labs/companion-backend/services/backend/tenant"
)

// upgrader accepts any origin; browser clients are CORS-gated at the
// HTTP layer and the handshake itself requires a valid token.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Gateway owns the websocket surface: handshake auth, the hub, event
// dispatch, and the streamed completion flow.
type Gateway struct {
	hub      *Hub
	registry *tenant.Registry
	tokens   *auth.Manager
	client   llm.Client
	metrics  *observability.Metrics
	logger   *logging.Logger
}

// New builds the gateway.
func New(hub *Hub, registry *tenant.Registry, tokens *auth.Manager,
	client llm.Client, metrics *observability.Metrics, logger *logging.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		registry: registry,
		tokens:   tokens,
		client:   client,
		metrics:  metrics,
		logger:   logger,
	}
}

// Hub exposes the hub for out-of-band pushes (scheduler, handlers).
func (g *Gateway) Hub() *Hub { return g.hub }

// HandleWS authenticates the handshake and upgrades GET /ws.
//
// Token sources: the "token" query parameter, then the accessToken
// cookie or Authorization header. The tenant comes from the token's
// app_id claim, then the X-App-ID handshake header, then the default.
// A token whose subject is missing from that tenant is rejected with
// 404 before the upgrade, mirroring the HTTP auth gate.
func (g *Gateway) HandleWS(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = middleware.ExtractToken(c)
	}
	if token == "" {
		apierr.Abort(c, apierr.Unauthorized("authentication required"))
		return
	}

	claims, err := g.tokens.VerifyAccess(token)
	if err != nil {
		apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
		return
	}

	appID := claims.AppID
	if appID == "" {
		appID = c.GetHeader(middleware.AppIDHeader)
	}
	t, err := g.registry.Resolve(c.Request.Context(), appID)
	if err != nil {
		apierr.Abort(c, apierr.Internal("tenant unavailable").WithCause(err))
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		apierr.Abort(c, apierr.Unauthorized("invalid or expired token"))
		return
	}
	user, err := t.Stores.Users.FindByID(c.Request.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Abort(c, apierr.NotFound("user not found"))
		return
	}
	if err != nil {
		apierr.Abort(c, apierr.Internal("user lookup failed").WithCause(err))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newClient(uuid.NewString(), user.ID.Hex(), t.AppID, conn)
	g.hub.Register(client)
	g.metrics.ActiveConnections.Inc()
	g.logger.Info("websocket connected",
		"client_id", client.ID, "user_id", client.UserID, "app_id", client.AppID)

	go client.writePump()
	go client.readPump(g)
}

// dispatch routes one inbound frame. Unknown events are ignored.
// Frames are processed in arrival order per connection; a streamed
// reply blocks later frames from the same socket until it finishes.
func (g *Gateway) dispatch(c *Client, frame Frame) {
	switch frame.Event {
	case EvJoinChat:
		g.onJoinChat(c, frame)
	case EvTypingStart:
		g.onTyping(c, frame, EvUserTypingStart)
	case EvTypingStop:
		g.onTyping(c, frame, EvUserTypingStop)
	case EvSendMessage:
		g.onSendMessage(c, frame)
	case EvStartChatStream:
		g.onStartChatStreaming(c, frame)
	case EvSendStreamingMsg:
		g.onSendStreamingMessage(c, frame)
	default:
		g.logger.Debug("ignoring unknown event",
			"event", frame.Event, "client_id", c.ID)
	}
}

func (g *Gateway) onJoinChat(c *Client, frame Frame) {
	var data joinChatData
	if err := unmarshalData(frame, &data); err != nil {
		c.Emit(EvError, errorPayload{Message: "malformed frame"})
		return
	}

	chat, ok := g.chatForClient(c, data.ChatID)
	if !ok {
		return
	}

	g.hub.Join(c, ChatRoom(data.ChatID))
	g.hub.Broadcast(ChatRoom(data.ChatID), EvUserJoined, gin.H{
		"chatId": chat.ID.Hex(),
		"userId": c.UserID,
	})
}

func (g *Gateway) onTyping(c *Client, frame Frame, outbound string) {
	var data joinChatData
	if err := unmarshalData(frame, &data); err != nil || data.ChatID == "" {
		return
	}
	g.hub.BroadcastExcept(ChatRoom(data.ChatID), c, outbound, gin.H{
		"chatId": data.ChatID,
		"userId": c.UserID,
	})
}

func (g *Gateway) onSendMessage(c *Client, frame Frame) {
	var data sendMessageData
	if err := unmarshalData(frame, &data); err != nil || data.Message == "" {
		c.Emit(EvError, errorPayload{Message: "message is required"})
		return
	}

	t, ok := g.tenantFor(c)
	if !ok {
		return
	}
	chat, ok := g.chatForClient(c, data.ChatID)
	if !ok {
		return
	}

	message := userMessage(data.Message)
	ctx, cancel := opContext()
	defer cancel()
	if err := t.Stores.Chats.AppendMessages(ctx, chat.ID, message); err != nil {
		g.logger.Error("append message failed", "chat_id", data.ChatID, "error", err)
		c.Emit(EvError, errorPayload{Message: "failed to save message"})
		return
	}

	g.hub.Broadcast(ChatRoom(data.ChatID), EvMessageSent, gin.H{
		"chatId":  data.ChatID,
		"message": message,
	})
}

func (g *Gateway) onStartChatStreaming(c *Client, frame Frame) {
	var data startChatData
	if err := unmarshalData(frame, &data); err != nil || data.Message == "" {
		c.Emit(EvError, errorPayload{Message: "message is required"})
		return
	}

	t, ok := g.tenantFor(c)
	if !ok {
		return
	}
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.Emit(EvError, errorPayload{Message: "invalid session"})
		return
	}

	chat := &datatypes.Chat{
		UserID:   userID,
		Title:    chatTitle(data.Title, data.Message),
		Messages: []datatypes.Message{userMessage(data.Message)},
	}
	ctx, cancel := opContext()
	defer cancel()
	if err := t.Stores.Chats.Create(ctx, chat); err != nil {
		g.logger.Error("create chat failed", "user_id", c.UserID, "error", err)
		c.Emit(EvError, errorPayload{Message: "failed to start chat"})
		return
	}

	chatID := chat.ID.Hex()
	g.hub.Join(c, ChatRoom(chatID))
	c.Emit(EvChatStarted, gin.H{"chatId": chatID, "title": chat.Title})

	g.streamReply(c, t, chat)
}

func (g *Gateway) onSendStreamingMessage(c *Client, frame Frame) {
	var data sendMessageData
	if err := unmarshalData(frame, &data); err != nil || data.Message == "" {
		c.Emit(EvError, errorPayload{Message: "message is required"})
		return
	}

	t, ok := g.tenantFor(c)
	if !ok {
		return
	}
	chat, ok := g.chatForClient(c, data.ChatID)
	if !ok {
		return
	}

	message := userMessage(data.Message)
	ctx, cancel := opContext()
	defer cancel()
	if err := t.Stores.Chats.AppendMessages(ctx, chat.ID, message); err != nil {
		g.logger.Error("append message failed", "chat_id", data.ChatID, "error", err)
		c.Emit(EvError, errorPayload{Message: "failed to save message"})
		return
	}
	chat.Messages = append(chat.Messages, message)

	g.hub.Join(c, ChatRoom(data.ChatID))
	g.streamReply(c, t, chat)
}

// streamReply runs the streamed completion for chat and fans chunks
// out to the chat room. The assistant message is persisted only after
// a clean stream; a provider failure emits a single error event and
// stops, with no retry.
func (g *Gateway) streamReply(c *Client, t *tenant.Tenant, chat *datatypes.Chat) {
	chatID := chat.ID.Hex()
	room := ChatRoom(chatID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	messages := g.providerHistory(ctx, t, chat)

	g.hub.Broadcast(room, EvAITypingStart, gin.H{"chatId": chatID})
	start := time.Now()

	sink := &roomSink{gateway: g, room: room, chatID: chatID}
	full, err := streaming.Stream(ctx, g.client, messages, sink)

	g.metrics.StreamDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		mapped := llm.MapError(err)
		g.logger.Error("streamed completion failed",
			"chat_id", chatID, "status", mapped.Status, "error", err)
		c.Emit(EvError, errorPayload{Message: mapped.Message})
		g.hub.Broadcast(room, EvAITypingStop, gin.H{"chatId": chatID})
		return
	}

	reply := datatypes.Message{
		ID:        uuid.NewString(),
		Role:      datatypes.RoleAssistant,
		Content:   full,
		Timestamp: time.Now().UTC(),
	}
	if err := t.Stores.Chats.AppendMessages(ctx, chat.ID, reply); err != nil {
		g.logger.Error("persist assistant message failed",
			"chat_id", chatID, "error", err)
	}

	g.hub.Broadcast(room, EvAIResponseDone, gin.H{
		"chatId":  chatID,
		"message": reply,
	})
	g.hub.Broadcast(room, EvAITypingStop, gin.H{"chatId": chatID})
}

// roomSink fans word-safe chunks out to the chat room. Each chunk is
// paired with a cumulative frame carrying the whole reply so far, so
// clients that render by replacement stay correct even when an
// individual chunk frame is dropped.
type roomSink struct {
	gateway *Gateway
	room    string
	chatID  string
}

func (s *roomSink) OnChunk(chunk, full string, isComplete bool) error {
	if !isComplete {
		s.gateway.metrics.StreamChunks.Inc()
	}
	s.gateway.hub.Broadcast(s.room, EvAIResponseChunk, chunkPayload{
		ChatID:     s.chatID,
		Chunk:      chunk,
		IsComplete: isComplete,
	})
	s.gateway.hub.Broadcast(s.room, EvAIResponseCumul, cumulativePayload{
		ChatID:     s.chatID,
		Content:    full,
		IsComplete: isComplete,
	})
	return nil
}

// providerHistory builds the provider message list: the persona
// system prompt followed by the chat's messages in order.
func (g *Gateway) providerHistory(ctx context.Context, t *tenant.Tenant, chat *datatypes.Chat) []llm.Message {
	var profile *datatypes.ChatbotProfile
	if p, err := t.Stores.Profiles.Get(ctx, chat.UserID); err == nil {
		profile = p
	}
	var userName string
	if u, err := t.Stores.Users.FindByID(ctx, chat.UserID); err == nil {
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
	return messages
}

// chatForClient loads a chat and verifies ownership. Failures emit an
// error event and return false.
func (g *Gateway) chatForClient(c *Client, chatID string) (*datatypes.Chat, bool) {
	oid, err := primitive.ObjectIDFromHex(chatID)
	if err != nil {
		c.Emit(EvError, errorPayload{Message: "invalid chat id"})
		return nil, false
	}
	userID, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		c.Emit(EvError, errorPayload{Message: "invalid session"})
		return nil, false
	}

	t, ok := g.tenantFor(c)
	if !ok {
		return nil, false
	}

	ctx, cancel := opContext()
	defer cancel()
	chat, err := t.Stores.Chats.GetForUser(ctx, oid, userID)
	if errors.Is(err, store.ErrNotFound) {
		c.Emit(EvError, errorPayload{Message: "chat not found"})
		return nil, false
	}
	if err != nil {
		g.logger.Error("chat lookup failed", "chat_id", chatID, "error", err)
		c.Emit(EvError, errorPayload{Message: "chat lookup failed"})
		return nil, false
	}
	return chat, true
}

func (g *Gateway) tenantFor(c *Client) (*tenant.Tenant, bool) {
	ctx, cancel := opContext()
	defer cancel()
	t, err := g.registry.Resolve(ctx, c.AppID)
	if err != nil {
		g.logger.Error("tenant resolve failed", "app_id", c.AppID, "error", err)
		c.Emit(EvError, errorPayload{Message: "tenant unavailable"})
		return nil, false
	}
	return t, true
}

func unmarshalData(frame Frame, out any) error {
	if len(frame.Data) == 0 {
		return errors.New("gateway: empty frame data")
	}
	return json.Unmarshal(frame.Data, out)
}

func userMessage(content string) datatypes.Message {
	return datatypes.Message{
		ID:        uuid.NewString(),
		Role:      datatypes.RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// chatTitle derives a title from the first message when none was
// given, trimmed to 40 runes.
func chatTitle(title, firstMessage string) string {
	if title != "" {
		return title
	}
	title = strings.TrimSpace(firstMessage)
	if utf8.RuneCountInString(title) > 40 {
		runes := []rune(title)
		title = string(runes[:40])
	}
	return title
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package gateway is the websocket realtime surface. Clients exchange
// JSON frames of the shape {"event": string, "data": object}. Each
// socket joins its personal room "user:<id>" on connect and chat
// rooms "chat:<id>" on demand; room fanout is handled by the Hub.
package gateway

import "encoding/json"

// Inbound event names.
const (
	EvJoinChat         = "join_chat"
	EvSendMessage      = "send_message"
	EvTypingStart      = "typing_start"
	EvTypingStop       = "typing_stop"
	EvStartChatStream  = "start_chat_with_streaming"
	EvSendStreamingMsg = "send_streaming_message"
)

// Outbound event names.
const (
	EvUserJoined       = "user_joined"
	EvUserTypingStart  = "user_typing_start"
	EvUserTypingStop   = "user_typing_stop"
	EvAITypingStart    = "ai_typing_start"
	EvAITypingStop     = "ai_typing_stop"
	EvAIResponseChunk  = "ai_response_chunk"
	EvAIResponseCumul  = "ai_response_cumulative"
	EvAIResponseDone   = "ai_response_complete"
	EvChatStarted      = "chat_started"
	EvMessageSent      = "message_sent"
	EvError            = "error"
)

// Frame is the wire format for both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeFrame marshals an outbound frame. Marshal failures cannot
// happen for the payload types below, so the error is swallowed and
// an empty frame returned.
func encodeFrame(event string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	out, err := json.Marshal(Frame{Event: event, Data: payload})
	if err != nil {
		return []byte(`{"event":"error"}`)
	}
	return out
}

// joinChatData is the payload of join_chat, typing_start, typing_stop.
type joinChatData struct {
	ChatID string `json:"chatId"`
}

// sendMessageData is the payload of send_message and
// send_streaming_message.
type sendMessageData struct {
	ChatID  string `json:"chatId"`
	Message string `json:"message"`
}

// startChatData is the payload of start_chat_with_streaming.
type startChatData struct {
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
}

// chunkPayload is the ai_response_chunk body.
type chunkPayload struct {
	ChatID     string `json:"chatId"`
	Chunk      string `json:"chunk"`
	IsComplete bool   `json:"isComplete"`
}

// cumulativePayload is the ai_response_cumulative body. Content is
// the entire reply so far; the client replaces the rendered message
// instead of appending, so a missed chunk frame cannot corrupt it.
type cumulativePayload struct {
	ChatID     string `json:"chatId"`
	Content    string `json:"content"`
	IsComplete bool   `json:"isComplete"`
}

// errorPayload is the error event body.
type errorPayload struct {
	Message string `json:"message"`
}

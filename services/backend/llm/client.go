// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the chat model provider behind a small
// interface so handlers and the gateway never see provider types.
// The production implementation is OpenAI; tests use Scripted.
package llm

import (
	"context"
)

// Message roles, matching the provider's chat format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of provider-facing conversation history.
type Message struct {
	Role    string
	Content string
}

// Client is the provider abstraction.
//
// Stream invokes onDelta for every content fragment as it arrives and
// returns the full concatenated text. A non-nil error from onDelta
// cancels the stream and is returned as-is. Provider errors should be
// passed through MapError before reaching a client response.
type Client interface {
	// Complete runs a non-streaming completion.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Stream runs a streaming completion.
	Stream(ctx context.Context, messages []Message, onDelta func(delta string) error) (string, error)
}

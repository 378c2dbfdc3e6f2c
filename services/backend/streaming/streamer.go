// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package streaming

import (
	"context"

	"github.com/saathi-labs/companion-backend/services/backend/llm"
)

// Sink receives the chunked output of one streamed completion. The
// gateway maps these calls onto its websocket events; the HTTP layer
// maps them onto SSE frames.
type Sink interface {
	// OnChunk delivers one word-safe chunk together with the full text
	// accumulated so far, chunk included. isComplete is true only for
	// the final call, which carries an empty chunk when the remainder
	// was already flushed.
	OnChunk(chunk, full string, isComplete bool) error
}

// Stream runs a streaming completion through the word-safe chunker.
// It returns the full accumulated text, which the caller persists as
// the assistant message. On a provider error the partial text and the
// raw error are returned; the caller maps it with llm.MapError and
// does not retry.
func Stream(ctx context.Context, client llm.Client, messages []llm.Message, sink Sink) (string, error) {
	var sinkErr error
	var chunker *Chunker
	chunker = NewChunker(func(chunk string) {
		if sinkErr == nil {
			sinkErr = sink.OnChunk(chunk, chunker.Text(), false)
		}
	})

	_, err := client.Stream(ctx, messages, func(delta string) error {
		chunker.Write(delta)
		return sinkErr
	})
	if err != nil {
		return chunker.Text(), err
	}
	if sinkErr != nil {
		return chunker.Text(), sinkErr
	}

	chunker.Flush()
	if sinkErr != nil {
		return chunker.Text(), sinkErr
	}
	if err := sink.OnChunk("", chunker.Text(), true); err != nil {
		return chunker.Text(), err
	}
	return chunker.Text(), nil
}

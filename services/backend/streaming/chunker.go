// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package streaming turns a provider token stream into client-facing
// chunks that never split a word, and drives the full
// stream-accumulate-persist flow used by the realtime gateway.
package streaming

import (
	"strings"
	"unicode/utf8"
)

// maxPendingRunes forces a flush when no word boundary arrives. The
// threshold counts runes so non-ASCII output is not cut mid-character.
const maxPendingRunes = 20

// Chunker buffers streamed deltas and emits chunks only at word
// boundaries. A chunk is emitted when the pending buffer ends in
// whitespace or sentence punctuation, or grows past maxPendingRunes.
// The final text is always the exact concatenation of the deltas
// written; chunking never drops or reorders bytes.
//
// Not safe for concurrent use; one Chunker serves one stream.
type Chunker struct {
	emit    func(chunk string)
	pending strings.Builder
	full    strings.Builder
}

// NewChunker builds a Chunker that calls emit for every ready chunk.
func NewChunker(emit func(chunk string)) *Chunker {
	return &Chunker{emit: emit}
}

// Write appends one delta and emits a chunk if a boundary was reached.
func (c *Chunker) Write(delta string) {
	if delta == "" {
		return
	}
	c.pending.WriteString(delta)
	c.full.WriteString(delta)

	pending := c.pending.String()
	if endsAtBoundary(pending) || utf8.RuneCountInString(pending) > maxPendingRunes {
		c.emit(pending)
		c.pending.Reset()
	}
}

// Flush emits whatever is still pending. Called once at end of stream.
func (c *Chunker) Flush() {
	if c.pending.Len() > 0 {
		c.emit(c.pending.String())
		c.pending.Reset()
	}
}

// Text returns the full accumulated text.
func (c *Chunker) Text() string {
	return c.full.String()
}

// endsAtBoundary reports whether s ends in whitespace or sentence
// punctuation.
func endsAtBoundary(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	if size == 0 {
		return false
	}
	switch r {
	case ' ', '\t', '\n', '\r', '.', ',', '!', '?', ':', ';':
		return true
	}
	return false
}

// Copyright (C) 2025 Saathi Labs (dev@saathilabs.in)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"strings"
	"sync"
)

// Scripted is a Client that replays fixed deltas. Used by tests and
// by local development without an API key. FailAfter, when >= 0,
// injects Err after that many deltas to simulate a provider failure
// mid-stream.
type Scripted struct {
	Deltas    []string
	Err       error
	FailAfter int

	mu    sync.Mutex
	calls [][]Message
}

var _ Client = (*Scripted)(nil)

// NewScripted builds a Scripted client that succeeds with the given
// deltas.
func NewScripted(deltas ...string) *Scripted {
	return &Scripted{Deltas: deltas, FailAfter: -1}
}

// Complete implements Client.
func (s *Scripted) Complete(ctx context.Context, messages []Message) (string, error) {
	s.record(messages)
	if s.Err != nil && s.FailAfter < 0 {
		return "", s.Err
	}
	return strings.Join(s.Deltas, ""), nil
}

// Stream implements Client.
func (s *Scripted) Stream(ctx context.Context, messages []Message, onDelta func(string) error) (string, error) {
	s.record(messages)
	if s.Err != nil && s.FailAfter < 0 {
		return "", s.Err
	}
	var full strings.Builder
	for i, delta := range s.Deltas {
		if s.Err != nil && i == s.FailAfter {
			return full.String(), s.Err
		}
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		full.WriteString(delta)
		if err := onDelta(delta); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

// Calls returns every message history the client received.
func (s *Scripted) Calls() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Message, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Scripted) record(messages []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Message, len(messages))
	copy(history, messages)
	s.calls = append(s.calls, history)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"sync"

	internal_generation "github.com/rapidaai/voice-engine/internal/generation"
)

// defaultHistoryWindow is the number of turns kept when no window is
// configured.
const defaultHistoryWindow = 20

// History is the bounded, ordered conversation memory for one call. Turns
// are never reordered; once the window is full the oldest turns fall off.
type History struct {
	mu     sync.Mutex
	turns  []internal_generation.Message
	window int
}

// NewHistory creates a history keeping at most window turns.
func NewHistory(window int) *History {
	if window <= 0 {
		window = defaultHistoryWindow
	}
	return &History{window: window}
}

// Append commits one turn at the end of the timeline.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, internal_generation.Message{Role: role, Content: content})
	if len(h.turns) > h.window {
		h.turns = h.turns[len(h.turns)-h.window:]
	}
}

// Messages returns the retained turns oldest-first.
func (h *History) Messages() []internal_generation.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]internal_generation.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len reports the number of retained turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

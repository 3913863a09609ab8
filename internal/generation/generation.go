// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_generation produces the assistant reply for a committed
// user turn. Providers are tried in registration order so a failing primary
// degrades to the fallback instead of failing the turn.
package internal_generation

import (
	"context"
	"fmt"

	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

// Role identifies who authored a conversation message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one prior conversation turn.
type Message struct {
	Role    string
	Content string
}

// Usage is the provider-reported token accounting for one generation.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Provider is a single language-model backend.
type Provider interface {
	Name() string
	Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, Usage, error)
}

// Generator fans a request across providers in order until one succeeds.
type Generator struct {
	logger    commons.Logger
	providers []Provider
}

// NewGenerator creates a generator over the given providers. At least one is
// required.
func NewGenerator(logger commons.Logger, providers ...Provider) (*Generator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("generator requires at least one provider")
	}
	return &Generator{logger: logger, providers: providers}, nil
}

// Generate returns the first successful provider reply. All provider
// failures short of the last are logged and skipped; when every provider
// fails the last error is returned.
func (g *Generator) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, Usage, error) {
	var lastErr error
	for _, p := range g.providers {
		reply, usage, err := p.Generate(ctx, systemPrompt, history, userMessage)
		if err == nil {
			return reply, usage, nil
		}
		lastErr = err
		g.logger.Warnw("generation provider failed, trying next",
			"provider", p.Name(), "error", err)
	}
	if _, ok := lastErr.(*internal_type.GenerationError); ok {
		return "", Usage{}, lastErr
	}
	return "", Usage{}, &internal_type.GenerationError{Provider: "all", Err: lastErr}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_generation

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

const (
	DefaultAnthropicModel     = "claude-3-5-sonnet-latest"
	defaultAnthropicMaxTokens = 1024
)

type anthropicProvider struct {
	logger    commons.Logger
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicProvider builds the fallback generation provider.
func NewAnthropicProvider(logger commons.Logger, credential utils.Option, opts utils.Option) (Provider, error) {
	key := credential.GetString("key", "")
	if utils.IsEmpty(key) {
		return nil, fmt.Errorf("illegal vault config, unable to find key for anthropic")
	}
	return &anthropicProvider{
		logger:    logger,
		client:    anthropic.NewClient(option.WithAPIKey(key)),
		model:     opts.GetString("generate.fallback_model", DefaultAnthropicModel),
		maxTokens: int64(opts.GetInt("generate.max_tokens", defaultAnthropicMaxTokens)),
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, Usage, error) {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		return "", Usage{}, &internal_type.GenerationError{Provider: p.Name(), Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	reply := sb.String()
	if utils.IsEmpty(reply) {
		return "", Usage{}, &internal_type.GenerationError{Provider: p.Name(), Err: fmt.Errorf("empty completion")}
	}

	return reply, Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}, nil
}

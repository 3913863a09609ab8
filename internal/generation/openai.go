// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_generation

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type openaiProvider struct {
	logger commons.Logger
	client openai.Client
	model  string
}

// NewOpenAIProvider builds the primary chat-completion provider.
func NewOpenAIProvider(logger commons.Logger, credential utils.Option, opts utils.Option) (Provider, error) {
	key := credential.GetString("key", "")
	if utils.IsEmpty(key) {
		return nil, fmt.Errorf("illegal vault config, unable to find key for openai")
	}
	return &openaiProvider{
		logger: logger,
		client: openai.NewClient(option.WithAPIKey(key)),
		model:  opts.GetString("generate.model", DefaultOpenAIModel),
	}, nil
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, Usage, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, m := range history {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	messages = append(messages, openai.UserMessage(userMessage))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		return "", Usage{}, &internal_type.GenerationError{Provider: p.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", Usage{}, &internal_type.GenerationError{Provider: p.Name(), Err: fmt.Errorf("no choices returned")}
	}

	return resp.Choices[0].Message.Content, Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

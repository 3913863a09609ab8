// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_generation

import (
	"context"
	"fmt"
	"testing"

	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-generation"),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

type fakeProvider struct {
	name  string
	reply string
	usage Usage
	err   error

	calls       int
	gotSystem   string
	gotHistory  []Message
	gotUserText string
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, systemPrompt string, history []Message, userMessage string) (string, Usage, error) {
	f.calls++
	f.gotSystem = systemPrompt
	f.gotHistory = history
	f.gotUserText = userMessage
	return f.reply, f.usage, f.err
}

func TestNewGeneratorRequiresProvider(t *testing.T) {
	if _, err := NewGenerator(newTestLogger(t)); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestGeneratePrimarySucceeds(t *testing.T) {
	primary := &fakeProvider{name: "primary", reply: "hello!", usage: Usage{PromptTokens: 10, CompletionTokens: 3}}
	fallback := &fakeProvider{name: "fallback", reply: "unused"}
	g, err := NewGenerator(newTestLogger(t), primary, fallback)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hey"}}
	reply, usage, err := g.Generate(context.Background(), "be brief", history, "how are you?")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if reply != "hello!" {
		t.Errorf("reply %q", reply)
	}
	if usage.PromptTokens != 10 || usage.CompletionTokens != 3 {
		t.Errorf("usage %+v", usage)
	}
	if fallback.calls != 0 {
		t.Error("fallback must not be called when primary succeeds")
	}
	if primary.gotSystem != "be brief" || primary.gotUserText != "how are you?" {
		t.Errorf("prompt plumbing wrong: system=%q user=%q", primary.gotSystem, primary.gotUserText)
	}
	if len(primary.gotHistory) != 2 || primary.gotHistory[1].Role != RoleAssistant {
		t.Errorf("history plumbing wrong: %+v", primary.gotHistory)
	}
}

func TestGenerateFallsBack(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		err:  &internal_type.GenerationError{Provider: "primary", Err: fmt.Errorf("rate limited")},
	}
	fallback := &fakeProvider{name: "fallback", reply: "backup answer", usage: Usage{PromptTokens: 7}}
	g, _ := NewGenerator(newTestLogger(t), primary, fallback)

	reply, usage, err := g.Generate(context.Background(), "sys", nil, "question")
	if err != nil {
		t.Fatalf("fallback should have succeeded: %v", err)
	}
	if reply != "backup answer" || usage.PromptTokens != 7 {
		t.Errorf("got reply=%q usage=%+v", reply, usage)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Errorf("calls primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestGenerateAllProvidersFail(t *testing.T) {
	p1 := &fakeProvider{name: "a", err: &internal_type.GenerationError{Provider: "a", Err: fmt.Errorf("down")}}
	p2 := &fakeProvider{name: "b", err: &internal_type.GenerationError{Provider: "b", Err: fmt.Errorf("also down")}}
	g, _ := NewGenerator(newTestLogger(t), p1, p2)

	_, _, err := g.Generate(context.Background(), "sys", nil, "question")
	if err == nil {
		t.Fatal("expected error when every provider fails")
	}
	var genErr *internal_type.GenerationError
	if !asGenerationError(err, &genErr) {
		t.Fatalf("expected *GenerationError, got %T", err)
	}
	if internal_type.IsFatal(err) {
		t.Error("generation failure must be recoverable, not fatal")
	}
}

func asGenerationError(err error, target **internal_type.GenerationError) bool {
	ge, ok := err.(*internal_type.GenerationError)
	if ok {
		*target = ge
	}
	return ok
}

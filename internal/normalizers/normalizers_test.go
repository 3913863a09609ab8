// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rapidaai/voice-engine/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-normalizers"),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

// =============================================================================
// Currency Normalizer Tests
// =============================================================================

func TestCurrencyNormalizer(t *testing.T) {
	normalizer := NewCurrencyNormalizer(newTestLogger(t))

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "basic dollar amount",
			input:    "The price is $10.50",
			expected: "The price is ten dollars and fifty cents",
		},
		{
			name:     "large dollar amount with commas",
			input:    "Total cost: $1,234.56",
			expected: "Total cost: one thousand two hundred thirty-four dollars and fifty-six cents",
		},
		{
			name:     "multiple currency values",
			input:    "Item A: $5.00, Item B: $10.25",
			expected: "Item A: five dollars and zero cents, Item B: ten dollars and twenty-five cents",
		},
		{
			name:     "zero cents",
			input:    "That costs $100.00",
			expected: "That costs one hundred dollars and zero cents",
		},
		{
			name:     "no currency in text",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "dollar sign without proper format",
			input:    "Price is $50",
			expected: "Price is $50", // Doesn't match pattern - no cents
		},
		{
			name:     "single digit dollars",
			input:    "Cost is $1.99",
			expected: "Cost is one dollars and ninety-nine cents",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Normalize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// =============================================================================
// Number Normalizer Tests
// =============================================================================

func TestNumberToWordNormalizer(t *testing.T) {
	normalizer := NewNumberToWordNormalizer(newTestLogger(t))

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "standalone integer",
			input:    "You have 3 new messages",
			expected: "You have three new messages",
		},
		{
			name:     "integer with commas",
			input:    "Around 1,200 people attended",
			expected: "Around one thousand two hundred people attended",
		},
		{
			name:     "multiple numbers",
			input:    "Take exit 4 then drive 12 miles",
			expected: "Take exit four then drive twelve miles",
		},
		{
			name:     "no numbers",
			input:    "Nothing to change here",
			expected: "Nothing to change here",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Normalize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// =============================================================================
// Symbol Normalizer Tests
// =============================================================================

func TestSymbolNormalizer(t *testing.T) {
	normalizer := NewSymbolNormalizer(newTestLogger(t))

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "percent",
			input:    "growth of 20% this year",
			expected: "growth of 20 percent this year",
		},
		{
			name:     "ampersand",
			input:    "terms & conditions",
			expected: "terms and conditions",
		},
		{
			name:     "at sign",
			input:    "reach us @ support",
			expected: "reach us at support",
		},
		{
			name:     "no symbols",
			input:    "plain sentence",
			expected: "plain sentence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizer.Normalize(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

// =============================================================================
// Pipeline Tests
// =============================================================================

func TestBuildNormalizerPipeline(t *testing.T) {
	logger := newTestLogger(t)

	pipeline := BuildNormalizerPipeline(logger, []string{"currency", "number", "symbol"})
	assert.Len(t, pipeline, 3)

	pipeline = BuildNormalizerPipeline(logger, []string{"currency", "bogus", "symbol"})
	assert.Len(t, pipeline, 2)

	pipeline = BuildNormalizerPipeline(logger, nil)
	assert.Empty(t, pipeline)
}

func TestApplyRunsStagesInOrder(t *testing.T) {
	logger := newTestLogger(t)
	pipeline := BuildNormalizerPipeline(logger, []string{"currency", "number", "symbol"})

	got := Apply("That costs $10.50 & takes 3 days", pipeline)
	assert.Equal(t, "That costs ten dollars and fifty cents and takes three days", got)
}

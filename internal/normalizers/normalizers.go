// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_normalizers rewrites assistant text into a speakable form
// before synthesis: digits, currency amounts and symbols become words so the
// TTS voice does not spell them out.
package internal_normalizers

import (
	"regexp"
	"strconv"
	"strings"

	ntw "moul.io/number-to-words"

	"github.com/rapidaai/voice-engine/pkg/commons"
)

// Normalizer is one text rewrite stage. Stages are pure string transforms
// and are applied in pipeline order.
type Normalizer interface {
	Normalize(text string) string
}

// BuildNormalizerPipeline resolves normalizer names to stages. Unknown names
// are skipped with a warning.
func BuildNormalizerPipeline(logger commons.Logger, names []string) []Normalizer {
	normalizers := make([]Normalizer, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(strings.ToLower(name))
		var normalizer Normalizer

		switch name {
		case "currency":
			normalizer = NewCurrencyNormalizer(logger)
		case "number", "number-to-word":
			normalizer = NewNumberToWordNormalizer(logger)
		case "symbol":
			normalizer = NewSymbolNormalizer(logger)
		default:
			logger.Warnf("normalizer: unknown normalizer '%s', skipping", name)
			continue
		}
		normalizers = append(normalizers, normalizer)
	}
	return normalizers
}

// Apply runs text through every stage in order.
func Apply(text string, normalizers []Normalizer) string {
	for _, n := range normalizers {
		text = n.Normalize(text)
	}
	return text
}

// =============================================================================
// Currency
// =============================================================================

// currencyPattern matches dollar amounts with explicit cents; "$50" without
// cents is left alone since it reads fine as-is after number normalization.
var currencyPattern = regexp.MustCompile(`\$([\d,]+)\.(\d{2})`)

type currencyNormalizer struct {
	logger commons.Logger
}

func NewCurrencyNormalizer(logger commons.Logger) Normalizer {
	return &currencyNormalizer{logger: logger}
}

func (c *currencyNormalizer) Normalize(text string) string {
	return currencyPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := currencyPattern.FindStringSubmatch(match)
		dollars, err := strconv.Atoi(strings.ReplaceAll(groups[1], ",", ""))
		if err != nil {
			return match
		}
		cents, err := strconv.Atoi(groups[2])
		if err != nil {
			return match
		}
		return ntw.IntegerToEnUs(dollars) + " dollars and " + ntw.IntegerToEnUs(cents) + " cents"
	})
}

// =============================================================================
// Numbers
// =============================================================================

var numberPattern = regexp.MustCompile(`\b\d[\d,]*\b`)

type numberToWordNormalizer struct {
	logger commons.Logger
}

func NewNumberToWordNormalizer(logger commons.Logger) Normalizer {
	return &numberToWordNormalizer{logger: logger}
}

func (n *numberToWordNormalizer) Normalize(text string) string {
	return numberPattern.ReplaceAllStringFunc(text, func(match string) string {
		value, err := strconv.Atoi(strings.ReplaceAll(match, ",", ""))
		if err != nil {
			return match
		}
		return ntw.IntegerToEnUs(value)
	})
}

// =============================================================================
// Symbols
// =============================================================================

var symbolReplacer = strings.NewReplacer(
	"%", " percent",
	"&", " and ",
	"@", " at ",
	"+", " plus ",
	"#", " number ",
	"=", " equals ",
	"~", " about ",
)

type symbolNormalizer struct {
	logger commons.Logger
}

func NewSymbolNormalizer(logger commons.Logger) Normalizer {
	return &symbolNormalizer{logger: logger}
}

func (s *symbolNormalizer) Normalize(text string) string {
	text = symbolReplacer.Replace(text)
	return strings.Join(strings.Fields(text), " ")
}

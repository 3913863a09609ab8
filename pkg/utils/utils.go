// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package utils

import (
	"fmt"
	"strings"

	"github.com/rapidaai/voice-engine/pkg/commons"
)

// Option is a free-form bag of provider/model options keyed by dotted path,
// e.g. "listen.language" or "speak.voice".
type Option map[string]interface{}

// GetString returns the string at key, or fallback when absent or not a string.
func (o Option) GetString(key, fallback string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// GetBool returns the bool at key, or fallback when absent or not a bool.
func (o Option) GetBool(key string, fallback bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

// GetInt returns the int at key, or fallback when absent. JSON decoding
// yields float64 for numbers, so both are accepted.
func (o Option) GetInt(key string, fallback int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// IsEmpty reports whether s contains no non-whitespace characters.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Go runs fn on a new goroutine, recovering panics so a misbehaving
// background task never takes the process down. Recovered values are logged
// at error level.
func Go(logger commons.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("background task panicked", "panic", r)
			}
		}()
		fn()
	}()
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return fmt.Sprintf("%s…", string(runes[:n]))
}

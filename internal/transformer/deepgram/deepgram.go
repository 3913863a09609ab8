// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_deepgram

import (
	"fmt"
	"strings"

	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

// Introduced constants for default values
const (
	DefaultModel       = "nova"
	DefaultLanguage    = "en-US"
	DefaultEndpointing = "5"
)

// deepgramOption is the primary configuration structure for Deepgram services
type deepgramOption struct {
	logger  commons.Logger
	key     string
	mdlOpts utils.Option
}

// NewDeepgramOption initializes deepgramOption with provided credentials and options.
func NewDeepgramOption(logger commons.Logger, credential utils.Option, opts utils.Option) (*deepgramOption, error) {
	key := credential.GetString("key", "")
	if utils.IsEmpty(key) {
		return nil, fmt.Errorf("illegal vault config, unable to find key for deepgram")
	}
	return &deepgramOption{
		logger:  logger,
		key:     key,
		mdlOpts: opts,
	}, nil
}

func (dg *deepgramOption) GetKey() string {
	return dg.key
}

// GetEncoding returns the wire encoding used on both listen and speak legs.
func (dg *deepgramOption) GetEncoding() string {
	return internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.Encoding
}

// SpeechToTextOptions generates a configuration for Deepgram live streaming
// recognition. Encoding and sample rate are pinned to the pipeline format;
// everything else can be overridden through mdlOpts.
func (dg *deepgramOption) SpeechToTextOptions() *interfaces.LiveTranscriptionOptions {
	opts := &interfaces.LiveTranscriptionOptions{
		Model:          dg.mdlOpts.GetString("listen.model", DefaultModel),
		Language:       dg.mdlOpts.GetString("listen.language", DefaultLanguage),
		Channels:       internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.Channels,
		SmartFormat:    dg.mdlOpts.GetBool("listen.smart_format", true),
		InterimResults: true,
		FillerWords:    dg.mdlOpts.GetBool("listen.filler_words", true),
		VadEvents:      dg.mdlOpts.GetBool("listen.vad_events", false),
		Endpointing:    dg.mdlOpts.GetString("listen.endpointing", DefaultEndpointing),
		Punctuate:      true,
		NoDelay:        true,
		Encoding:       dg.GetEncoding(),
		SampleRate:     internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate,
		Diarize:        false,
		Multichannel:   dg.mdlOpts.GetBool("listen.multichannel", false),
	}

	// nova-3 replaced keyword boosting with keyterm prompting.
	keywords := dg.keywords()
	if len(keywords) > 0 {
		if strings.HasPrefix(opts.Model, "nova-3") {
			opts.Keyterm = keywords
		} else {
			opts.Keywords = keywords
		}
	}
	return opts
}

// keywords normalizes the "listen.keyword" option, which arrives either as a
// list or as a bracketed space-separated string.
func (dg *deepgramOption) keywords() []string {
	v, ok := dg.mdlOpts["listen.keyword"]
	if !ok {
		return nil
	}
	switch kw := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(kw))
		for _, item := range kw {
			if s, ok := item.(string); ok && !utils.IsEmpty(s) {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return kw
	case string:
		trimmed := strings.Trim(strings.TrimSpace(kw), "[]")
		if utils.IsEmpty(trimmed) {
			return nil
		}
		return strings.Fields(trimmed)
	}
	return nil
}

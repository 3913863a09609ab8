// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_google

import (
	"strings"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

// Introduced constants for default values
const (
	DefaultLanguageCode = "en-US"            // Default language code for Text-to-Speech
	DefaultVoice        = "en-US-Chirp-HD-F" // Default voice for Text-to-Speech
)

// googleOption is the primary configuration structure for Google services
type googleOption struct {
	logger       commons.Logger
	clientOptons []option.ClientOption
	mdlOpts      utils.Option
	projectId    string
}

// NewGoogleOption initializes googleOption with provided credentials, audio configurations, and options.
func NewGoogleOption(logger commons.Logger, credential utils.Option, opts utils.Option) (*googleOption, error) {
	co := make([]option.ClientOption, 0)
	var projectID string

	if key := credential.GetString("key", ""); key != "" {
		co = append(co, option.WithAPIKey(key))
	}
	if prj := credential.GetString("project_id", ""); prj != "" {
		projectID = prj
		co = append(co, option.WithQuotaProject(prj))
	}
	if serviceCrd := credential.GetString("service_account_key", ""); serviceCrd != "" {
		co = append(co, option.WithCredentialsJSON([]byte(serviceCrd)))
	}

	return &googleOption{
		logger:       logger,
		mdlOpts:      opts,
		clientOptons: co,
		projectId:    projectID,
	}, nil
}

// GetClientOptions returns all configured Google API client options.
func (gO *googleOption) GetClientOptions() []option.ClientOption {
	return gO.clientOptons
}

// GetVoice returns the configured voice name.
func (goog *googleOption) GetVoice() string {
	if voice := goog.mdlOpts.GetString("speak.voice.id", ""); voice != "" {
		return voice
	}
	goog.logger.Warn("Voice not specified, defaulting to " + DefaultVoice)
	return DefaultVoice
}

// GetLanguageCode derives the language code from the voice name, e.g.
// "en-US-Chirp-HD-F" → "en-US".
func (goog *googleOption) GetLanguageCode() string {
	parts := strings.Split(goog.GetVoice(), "-")
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return DefaultLanguageCode
}

// TextToSpeechOptions generates the voice and audio configuration for Google
// Text-to-Speech synthesis pinned to the pipeline audio format.
func (goog *googleOption) TextToSpeechOptions() (*texttospeechpb.VoiceSelectionParams, *texttospeechpb.AudioConfig) {
	voice := &texttospeechpb.VoiceSelectionParams{
		LanguageCode: goog.GetLanguageCode(),
		Name:         goog.GetVoice(),
	}
	audio := &texttospeechpb.AudioConfig{
		AudioEncoding:   texttospeechpb.AudioEncoding_LINEAR16,
		SampleRateHertz: int32(internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate),
	}
	return voice, audio
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_google

import (
	"bytes"
	"context"
	"fmt"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

// wavHeaderSize is the canonical RIFF/WAVE header Google prepends to LINEAR16
// synthesis output.
const wavHeaderSize = 44

// textToSpeech synthesizes assistant utterances through Google Cloud TTS.
type textToSpeech struct {
	logger commons.Logger
	option *googleOption
	client *texttospeech.Client
}

// NewTextToSpeech creates the synthesis client eagerly so credential problems
// surface at boot instead of mid-call.
func NewTextToSpeech(ctx context.Context, logger commons.Logger, option *googleOption) (internal_transformer.TextToSpeechTransformer, error) {
	client, err := texttospeech.NewClient(ctx, option.GetClientOptions()...)
	if err != nil {
		return nil, &internal_type.SynthesisError{Provider: "google", Err: err}
	}
	return &textToSpeech{logger: logger, option: option, client: client}, nil
}

func (g *textToSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if utils.IsEmpty(text) {
		return nil, &internal_type.SynthesisError{Provider: "google", Err: fmt.Errorf("empty synthesis input")}
	}

	voice, audio := g.option.TextToSpeechOptions()
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice:       voice,
		AudioConfig: audio,
	})
	if err != nil {
		return nil, &internal_type.SynthesisError{Provider: "google", Err: err}
	}

	pcm := stripWAVHeader(resp.GetAudioContent())
	g.logger.Debugw("synthesized utterance",
		"characters", len(text), "audioBytes", len(pcm))
	return pcm, nil
}

func (g *textToSpeech) Encoding() string {
	return internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.Encoding
}

func (g *textToSpeech) SampleRate() int {
	return internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate
}

// stripWAVHeader removes the RIFF container header so only raw PCM flows
// through the pipeline. Payloads without the header pass through untouched.
func stripWAVHeader(data []byte) []byte {
	if len(data) > wavHeaderSize && bytes.HasPrefix(data, []byte("RIFF")) {
		return data[wavHeaderSize:]
	}
	return data
}

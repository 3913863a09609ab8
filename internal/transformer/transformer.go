// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_transformer defines the speech provider contracts. A
// provider package (deepgram, google, ...) supplies an option struct built
// from credentials plus a client implementing one of these interfaces; the
// session engine only ever sees the interface.
package internal_transformer

import "context"

// RecognitionResult is one speech-to-text hypothesis. Interim results carry
// IsFinal=false and are superseded by later results for the same audio.
type RecognitionResult struct {
	Text       string
	Confidence float64
	IsFinal    bool
}

// SpeechToTextTransformer is a live transcription stream. Write accepts
// PCM16 mono audio at the pipeline rate; results arrive on the callback
// registered at Start, in provider order.
type SpeechToTextTransformer interface {
	Start(ctx context.Context, onResult func(RecognitionResult)) error
	Write(audio []byte) error
	Close() error
}

// TextToSpeechTransformer synthesizes one utterance per call.
type TextToSpeechTransformer interface {
	// Synthesize returns raw audio in the transformer's Encoding at its
	// SampleRate, with any container header already stripped.
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Encoding() string
	SampleRate() int
}

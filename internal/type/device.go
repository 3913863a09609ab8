// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "context"

// CaptureSource abstracts the platform audio input. Start registers a
// callback that the audio subsystem invokes once per captured buffer; the
// callback runs on the audio thread and MUST NOT block. SampleRate is the
// device's native rate — buffers are resampled to the pipeline rate by the
// consumer, never inside the callback's caller.
type CaptureSource interface {
	SampleRate() int
	Start(onBuffer func(samples []float32)) error
	Stop() error
}

// PlaybackSink abstracts the audio output device. Play enqueues one decoded
// buffer and returns a handle so in-flight playback can be force-stopped on
// disconnect. Play must not block on the network; it may drop when the device
// queue is saturated.
type PlaybackSink interface {
	// Play enqueues PCM float32 samples at the given rate.
	Play(samples []float32, sampleRate int) (PlaybackHandle, error)
	// PlayEncoded hands an undecodable payload (non-linear16 encoding) to the
	// device layer's generic decoder.
	PlayEncoded(data []byte, encoding string) (PlaybackHandle, error)
}

// PlaybackHandle tracks one queued playback node.
type PlaybackHandle interface {
	Stop()
	Done() <-chan struct{}
}

// Recorder captures both sides of a call on a shared wall-clock timeline.
type Recorder interface {
	// Start begins the recording timeline. All subsequent Record calls are
	// placed on a wall-clock timeline relative to this moment.
	Start()
	Record(ctx context.Context, p Packet) error
	// Persist returns the user and assistant tracks as WAV files.
	Persist() (user []byte, assistant []byte, err error)
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_client

import (
	"sync"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
	"github.com/rapidaai/voice-engine/pkg/utils"
)

// playbackRegistry decodes assistant audio onto the sink and tracks the
// in-flight handles so a disconnect can silence everything at once.
type playbackRegistry struct {
	logger commons.Logger
	sink   internal_type.PlaybackSink

	mu      sync.Mutex
	handles map[int]internal_type.PlaybackHandle
	nextID  int
}

func newPlaybackRegistry(logger commons.Logger, sink internal_type.PlaybackSink) *playbackRegistry {
	return &playbackRegistry{
		logger:  logger,
		sink:    sink,
		handles: make(map[int]internal_type.PlaybackHandle),
	}
}

// play decodes one audio_response and enqueues it on the sink. linear16 is
// decoded locally; any other encoding is handed to the sink's own decoder.
func (r *playbackRegistry) play(msg *internal_protocol.AudioResponse) error {
	raw, err := internal_audio.Decode(msg.AudioData)
	if err != nil {
		return err
	}

	var handle internal_type.PlaybackHandle
	if msg.Encoding == internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.Encoding {
		rate := msg.SampleRate
		if rate == 0 {
			rate = internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate
		}
		handle, err = r.sink.Play(internal_audio.BytesToFloat32(raw), rate)
	} else {
		handle, err = r.sink.PlayEncoded(raw, msg.Encoding)
	}
	if err != nil {
		return err
	}

	r.track(handle)
	return nil
}

func (r *playbackRegistry) track(handle internal_type.PlaybackHandle) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handles[id] = handle
	r.mu.Unlock()

	// Reap the handle when it finishes on its own.
	utils.Go(r.logger, func() {
		<-handle.Done()
		r.mu.Lock()
		delete(r.handles, id)
		r.mu.Unlock()
	})
}

// stopAll force-stops every in-flight playback. Idempotent per handle.
func (r *playbackRegistry) stopAll() {
	r.mu.Lock()
	handles := make([]internal_type.PlaybackHandle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[int]internal_type.PlaybackHandle)
	r.mu.Unlock()

	for _, h := range handles {
		h.Stop()
	}
}

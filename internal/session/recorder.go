// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

const (
	AudioBytesPerSample = 2  // LINEAR16 → 2 bytes per sample
	AudioBitsPerSample  = 16 // LINEAR16 → 16 bits per sample
	AudioPCMFormat      = 1  // WAV PCM format tag
)

var audioConfig = internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG

// recordedChunk is an audio fragment placed at a byte position on the shared
// call timeline.
type recordedChunk struct {
	ByteOffset int
	Data       []byte
	Track      int
}

const (
	trackUser      = 0
	trackAssistant = 1
)

// callRecorder captures both sides of a call on one wall-clock timeline and
// renders each side as its own WAV at the end.
type callRecorder struct {
	logger    commons.Logger
	mu        sync.Mutex
	startTime time.Time
	started   bool
	chunks    []recordedChunk
	// Per-track cursor: byte position just past the last written byte. Mic
	// audio is placed by wall clock; assistant TTS arrives in bursts and is
	// paced from the cursor so burst chunks stay contiguous.
	cursor [2]int
	// clock is injectable for testing; defaults to time.Now.
	clock func() time.Time
}

// NewCallRecorder creates a dual-track recorder for one call.
func NewCallRecorder(logger commons.Logger) (internal_type.Recorder, error) {
	return &callRecorder{
		logger: logger,
		clock:  time.Now,
	}, nil
}

// Start begins the recording timeline. Both tracks share this start time.
func (r *callRecorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = r.clock()
	r.started = true
}

func bytesPerSecond() int {
	return audioConfig.SampleRate * audioConfig.Channels * AudioBytesPerSample
}

// durationBytes converts a wall-clock duration to a frame-aligned byte count.
func durationBytes(d time.Duration) int {
	raw := int(d.Seconds() * float64(bytesPerSecond()))
	frameSize := AudioBytesPerSample * audioConfig.Channels
	return (raw / frameSize) * frameSize
}

// Record places audio on the matching track at the current timeline
// position. Chunks are positioned by WHEN they arrive, not just appended.
func (r *callRecorder) Record(ctx context.Context, p internal_type.Packet) error {
	switch vl := p.(type) {
	case internal_type.UserAudioPacket:
		return r.push(vl.Audio, trackUser)
	case internal_type.AssistantAudioPacket:
		return r.push(vl.AudioChunk, trackAssistant)
	}
	return nil
}

func (r *callRecorder) push(data []byte, track int) error {
	if len(data) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	// Anchor position: wall clock once started, otherwise the furthest
	// cursor so un-clocked recordings still lay out in arrival order.
	anchor := 0
	if r.started {
		anchor = durationBytes(r.clock().Sub(r.startTime))
	} else {
		for _, c := range r.cursor {
			if c > anchor {
				anchor = c
			}
		}
	}

	var offset int
	switch track {
	case trackUser:
		// Mic delivers at real-time rate, so the anchor is the right
		// timeline position; never overwrite earlier mic audio.
		offset = anchor
		if r.cursor[track] > offset {
			offset = r.cursor[track]
		}

	case trackAssistant:
		// TTS delivers faster than real time. The first chunk of a burst
		// anchors at the timeline position; the rest pace from the cursor so
		// the burst plays back contiguously with no gaps or overlaps.
		if r.cursor[track] > anchor {
			offset = r.cursor[track]
		} else {
			offset = anchor
		}
	}

	// Copy to avoid caller mutations.
	buf := make([]byte, len(data))
	copy(buf, data)

	r.chunks = append(r.chunks, recordedChunk{
		ByteOffset: offset,
		Data:       buf,
		Track:      track,
	})
	r.cursor[track] = offset + len(buf)
	return nil
}

// Persist renders two WAV files, one per track, spanning the full session.
// Chunks sit at their recorded timeline positions; gaps are silence.
func (r *callRecorder) Persist() ([]byte, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.chunks) == 0 {
		return nil, nil, fmt.Errorf("no audio chunks to persist")
	}

	sessionBytes := 0
	if r.started {
		sessionBytes = durationBytes(r.clock().Sub(r.startTime))
	}

	totalLen := sessionBytes
	for _, c := range r.chunks {
		if end := c.ByteOffset + len(c.Data); end > totalLen {
			totalLen = end
		}
	}

	userPCM := make([]byte, totalLen)
	assistantPCM := make([]byte, totalLen)

	userAudioBytes := 0
	assistantAudioBytes := 0
	for _, c := range r.chunks {
		var dst []byte
		if c.Track == trackUser {
			dst = userPCM
			userAudioBytes += len(c.Data)
		} else {
			dst = assistantPCM
			assistantAudioBytes += len(c.Data)
		}
		copy(dst[c.ByteOffset:], c.Data)
	}

	r.logger.Info(fmt.Sprintf(
		"Audio persist: userAudio=%d (%.2fs), assistantAudio=%d (%.2fs), totalLen=%d (%.2fs), chunks=%d",
		userAudioBytes, float64(userAudioBytes)/float64(bytesPerSecond()),
		assistantAudioBytes, float64(assistantAudioBytes)/float64(bytesPerSecond()),
		totalLen, float64(totalLen)/float64(bytesPerSecond()),
		len(r.chunks),
	))

	userWAV, _ := createWAVFile(userPCM)
	assistantWAV, _ := createWAVFile(assistantPCM)
	return userWAV, assistantWAV, nil
}

func createWAVFile(pcmData []byte) ([]byte, error) {
	var buf bytes.Buffer
	sampleRate := audioConfig.SampleRate
	channels := audioConfig.Channels
	bps := sampleRate * channels * AudioBytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(AudioBitsPerSample))

	// data chunk
	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes(), nil
}

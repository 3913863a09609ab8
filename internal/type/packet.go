// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_type

import "time"

// Packet is a unit of media or text flowing through a call session.
type Packet interface {
	isPacket()
}

// UserAudioPacket is resampled PCM16 microphone audio from the caller.
type UserAudioPacket struct {
	Audio []byte
}

// UserTextPacket is text-mode input that bypasses speech recognition.
type UserTextPacket struct {
	Text string
}

// AssistantAudioPacket is synthesized speech headed back to the caller.
type AssistantAudioPacket struct {
	CallID     string
	AudioChunk []byte
}

// FinalTranscriptPacket is a committed speech-recognition result.
type FinalTranscriptPacket struct {
	Text       string
	Confidence float64
	Timestamp  time.Time
}

func (UserAudioPacket) isPacket()       {}
func (UserTextPacket) isPacket()        {}
func (AssistantAudioPacket) isPacket()  {}
func (FinalTranscriptPacket) isPacket() {}

// Speaker identifies who produced a transcript or turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

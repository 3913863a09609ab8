// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_protocol defines the JSON message set carried on the
// signaling channel. Every message is a self-contained object with a "type"
// discriminator; decoding yields one of the typed message structs so handlers
// can switch exhaustively instead of probing string tags.
package internal_protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates signaling messages.
type MessageType string

// Client → server.
const (
	TypeStartCall  MessageType = "start_call"
	TypeAudioChunk MessageType = "audio_chunk"
	TypeUserText   MessageType = "user_text"
	TypeEndCall    MessageType = "end_call"
)

// Server → client.
const (
	TypeCallStarted   MessageType = "call_started"
	TypeTranscript    MessageType = "transcript"
	TypeAiSpeaking    MessageType = "ai_speaking"
	TypeAudioResponse MessageType = "audio_response"
	TypeError         MessageType = "error"
	TypeCallEnded     MessageType = "call_ended"
)

// Message is implemented by every signaling message.
type Message interface {
	MessageType() MessageType
}

// StartCall begins a session.
type StartCall struct {
	Type       MessageType `json:"type"`
	CampaignID string      `json:"campaignId"`
	AccountID  string      `json:"accountId"`
	RoomName   string      `json:"roomName"`
}

// AudioChunk is streamed microphone audio: base64 PCM16 mono at the fixed
// session rate. The payload has already been resampled; no resampling
// happens after transport.
type AudioChunk struct {
	Type      MessageType `json:"type"`
	AudioData string      `json:"audioData"`
}

// UserText is text-mode input bypassing speech recognition.
type UserText struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// EndCall terminates the session.
type EndCall struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
}

// CallStarted acknowledges StartCall with the allocated call id.
type CallStarted struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
}

// Transcript is an STT or assistant utterance. Interim results carry
// IsFinal=false and may be superseded.
type Transcript struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text"`
	Speaker string      `json:"speaker"`
	IsFinal bool        `json:"isFinal"`
}

// AiSpeaking hints that assistant playback started or stopped.
type AiSpeaking struct {
	Type     MessageType `json:"type"`
	Speaking bool        `json:"speaking"`
}

// AudioResponse is synthesized assistant speech.
type AudioResponse struct {
	Type       MessageType `json:"type"`
	AudioData  string      `json:"audioData"`
	Encoding   string      `json:"encoding"`
	SampleRate int         `json:"sampleRate"`
}

// ErrorMessage reports a recoverable failure; the session stays active.
type ErrorMessage struct {
	Type  MessageType `json:"type"`
	Error string      `json:"error"`
}

// CallEnded acknowledges session teardown.
type CallEnded struct {
	Type   MessageType `json:"type"`
	CallID string      `json:"callId"`
}

func (m StartCall) MessageType() MessageType     { return TypeStartCall }
func (m AudioChunk) MessageType() MessageType    { return TypeAudioChunk }
func (m UserText) MessageType() MessageType      { return TypeUserText }
func (m EndCall) MessageType() MessageType       { return TypeEndCall }
func (m CallStarted) MessageType() MessageType   { return TypeCallStarted }
func (m Transcript) MessageType() MessageType    { return TypeTranscript }
func (m AiSpeaking) MessageType() MessageType    { return TypeAiSpeaking }
func (m AudioResponse) MessageType() MessageType { return TypeAudioResponse }
func (m ErrorMessage) MessageType() MessageType  { return TypeError }
func (m CallEnded) MessageType() MessageType     { return TypeCallEnded }

// NewStartCall fills the discriminator so callers never send a zero Type.
func NewStartCall(campaignID, accountID, roomName string) StartCall {
	return StartCall{Type: TypeStartCall, CampaignID: campaignID, AccountID: accountID, RoomName: roomName}
}

func NewAudioChunk(audioData string) AudioChunk {
	return AudioChunk{Type: TypeAudioChunk, AudioData: audioData}
}

func NewUserText(text string) UserText {
	return UserText{Type: TypeUserText, Text: text}
}

func NewEndCall(callID string) EndCall {
	return EndCall{Type: TypeEndCall, CallID: callID}
}

func NewCallStarted(callID string) CallStarted {
	return CallStarted{Type: TypeCallStarted, CallID: callID}
}

func NewTranscript(text, speaker string, isFinal bool) Transcript {
	return Transcript{Type: TypeTranscript, Text: text, Speaker: speaker, IsFinal: isFinal}
}

func NewAiSpeaking(speaking bool) AiSpeaking {
	return AiSpeaking{Type: TypeAiSpeaking, Speaking: speaking}
}

func NewAudioResponse(audioData, encoding string, sampleRate int) AudioResponse {
	return AudioResponse{Type: TypeAudioResponse, AudioData: audioData, Encoding: encoding, SampleRate: sampleRate}
}

func NewErrorMessage(message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Error: message}
}

func NewCallEnded(callID string) CallEnded {
	return CallEnded{Type: TypeCallEnded, CallID: callID}
}

// Marshal encodes a message to its wire form.
func Marshal(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal decodes a wire message into its typed form. Unknown or missing
// discriminators return an error so the caller can treat the frame as a
// protocol violation without closing the channel.
func Unmarshal(data []byte) (Message, error) {
	var probe struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("malformed signaling frame: %w", err)
	}

	var msg Message
	switch probe.Type {
	case TypeStartCall:
		msg = &StartCall{}
	case TypeAudioChunk:
		msg = &AudioChunk{}
	case TypeUserText:
		msg = &UserText{}
	case TypeEndCall:
		msg = &EndCall{}
	case TypeCallStarted:
		msg = &CallStarted{}
	case TypeTranscript:
		msg = &Transcript{}
	case TypeAiSpeaking:
		msg = &AiSpeaking{}
	case TypeAudioResponse:
		msg = &AudioResponse{}
	case TypeError:
		msg = &ErrorMessage{}
	case TypeCallEnded:
		msg = &CallEnded{}
	default:
		return nil, fmt.Errorf("unknown signaling message type %q", probe.Type)
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", probe.Type, err)
	}
	return msg, nil
}

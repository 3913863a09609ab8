// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_protocol

import (
	"testing"
)

func TestUnmarshalDispatch(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageType
	}{
		{"start_call", `{"type":"start_call","campaignId":"c1","accountId":"a1","roomName":"r1"}`, TypeStartCall},
		{"audio_chunk", `{"type":"audio_chunk","audioData":"AAA="}`, TypeAudioChunk},
		{"user_text", `{"type":"user_text","text":"hi"}`, TypeUserText},
		{"end_call", `{"type":"end_call","callId":"x"}`, TypeEndCall},
		{"call_started", `{"type":"call_started","callId":"x"}`, TypeCallStarted},
		{"transcript", `{"type":"transcript","text":"hello","speaker":"user","isFinal":true}`, TypeTranscript},
		{"ai_speaking", `{"type":"ai_speaking","speaking":true}`, TypeAiSpeaking},
		{"audio_response", `{"type":"audio_response","audioData":"AAA=","encoding":"linear16","sampleRate":16000}`, TypeAudioResponse},
		{"error", `{"type":"error","error":"boom"}`, TypeError},
		{"call_ended", `{"type":"call_ended","callId":"x"}`, TypeCallEnded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Unmarshal([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if msg.MessageType() != tt.want {
				t.Errorf("expected type %s, got %s", tt.want, msg.MessageType())
			}
		})
	}
}

func TestUnmarshalFieldValues(t *testing.T) {
	raw := `{"type":"start_call","campaignId":"c1","accountId":"a1","roomName":"r1"}`
	msg, err := Unmarshal([]byte(raw))
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	sc, ok := msg.(*StartCall)
	if !ok {
		t.Fatalf("expected *StartCall, got %T", msg)
	}
	if sc.CampaignID != "c1" || sc.AccountID != "a1" || sc.RoomName != "r1" {
		t.Errorf("field mismatch: %+v", sc)
	}
}

func TestUnmarshalUnknownType(t *testing.T) {
	if _, err := Unmarshal([]byte(`{"type":"bogus"}`)); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	if _, err := Unmarshal([]byte(`{not json`)); err == nil {
		t.Error("expected error for malformed frame")
	}
	if _, err := Unmarshal([]byte(`{}`)); err == nil {
		t.Error("expected error for missing discriminator")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	out, err := Marshal(NewTranscript("hello", "assistant", true))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	msg, err := Unmarshal(out)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	tr := msg.(*Transcript)
	if tr.Text != "hello" || tr.Speaker != "assistant" || !tr.IsFinal {
		t.Errorf("round trip mismatch: %+v", tr)
	}
}

func TestConstructorsSetDiscriminator(t *testing.T) {
	msgs := []Message{
		NewStartCall("c", "a", "r"),
		NewAudioChunk("AAA="),
		NewUserText("hi"),
		NewEndCall("id"),
		NewCallStarted("id"),
		NewTranscript("t", "user", false),
		NewAiSpeaking(false),
		NewAudioResponse("AAA=", "linear16", 16000),
		NewErrorMessage("e"),
		NewCallEnded("id"),
	}
	for _, m := range msgs {
		out, err := Marshal(m)
		if err != nil {
			t.Fatalf("marshal %T: %v", m, err)
		}
		decoded, err := Unmarshal(out)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", m, err)
		}
		if decoded.MessageType() != m.MessageType() {
			t.Errorf("%T: discriminator mismatch", m)
		}
	}
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package internal_transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-transport"),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// silentRoomServer accepts the signaling socket and drains inbound messages
// without ever answering, so the handshake can only end by cancellation or
// timeout.
func silentRoomServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestConnectContextCancelled(t *testing.T) {
	reasons := make(chan DisconnectReason, 1)
	m := NewManager(newTestLogger(t), &Config{}, Callbacks{
		OnDisconnected: func(reason DisconnectReason) { reasons <- reason },
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	err := m.Connect(ctx, silentRoomServer(t), "token", "room-1")
	if err == nil {
		t.Fatal("expected connect to fail when the context is cancelled")
	}
	var transportErr *internal_type.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if !internal_type.IsFatal(err) {
		t.Error("transport errors are fatal to the call")
	}

	select {
	case reason := <-reasons:
		if reason != DisconnectReasonContextCancelled {
			t.Errorf("expected %s, got %s", DisconnectReasonContextCancelled, reason)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for OnDisconnected")
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	calls := make(chan DisconnectReason, 2)
	m := NewManager(newTestLogger(t), nil, Callbacks{
		OnDisconnected: func(reason DisconnectReason) { calls <- reason },
	})

	m.Disconnect()
	m.Disconnect()

	select {
	case reason := <-calls:
		if reason != DisconnectReasonNormal {
			t.Errorf("expected %s, got %s", DisconnectReasonNormal, reason)
		}
	case <-time.After(time.Second):
		t.Fatal("OnDisconnected never fired")
	}
	select {
	case reason := <-calls:
		t.Fatalf("OnDisconnected fired twice, second reason %s", reason)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSetMutedWithoutTrackIsNoOp(t *testing.T) {
	m := NewManager(newTestLogger(t), nil, Callbacks{})
	m.SetMuted(true)
	if m.Muted() {
		t.Error("mute flag must not change without a published track")
	}
}

func TestUpsampleToTrackRate(t *testing.T) {
	out := upsampleToTrackRate(nil)
	if len(out) != 0 {
		t.Errorf("empty input: expected no samples, got %d", len(out))
	}

	// 16kHz → 48kHz triples the sample count.
	pcm := make([]byte, 320) // 160 samples
	out = upsampleToTrackRate(pcm)
	if len(out) != 480 {
		t.Errorf("expected 480 samples, got %d", len(out))
	}
}

func TestQuantizeTrackSampleClamps(t *testing.T) {
	tests := []struct {
		input    float32
		expected int16
	}{
		{0, 0},
		{1.0, 32767},
		{-1.0, -32767},
		{2.5, 32767},
		{-2.5, -32767},
	}
	for _, tt := range tests {
		if got := quantizeTrackSample(tt.input); got != tt.expected {
			t.Errorf("quantize(%v): expected %d, got %d", tt.input, tt.expected, got)
		}
	}
}

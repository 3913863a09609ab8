// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_generation "github.com/rapidaai/voice-engine/internal/generation"
	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	internal_usage "github.com/rapidaai/voice-engine/internal/usage"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

func newTestLogger(t *testing.T) commons.Logger {
	t.Helper()
	logger, err := commons.NewApplicationLogger(
		commons.Name("test-session"),
		commons.Level("debug"),
	)
	if err != nil {
		t.Fatalf("failed to create test logger: %v", err)
	}
	return logger
}

// =============================================================================
// Fakes
// =============================================================================

type fakeSTT struct {
	mu       sync.Mutex
	onResult func(internal_transformer.RecognitionResult)
	writes   [][]byte
	closed   bool
}

func (f *fakeSTT) Start(ctx context.Context, onResult func(internal_transformer.RecognitionResult)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onResult = onResult
	return nil
}

func (f *fakeSTT) Write(audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, audio)
	return nil
}

func (f *fakeSTT) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSTT) emit(text string, isFinal bool) {
	f.mu.Lock()
	cb := f.onResult
	f.mu.Unlock()
	if cb != nil {
		cb(internal_transformer.RecognitionResult{Text: text, Confidence: 0.9, IsFinal: isFinal})
	}
}

func (f *fakeSTT) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeTTS struct {
	mu    sync.Mutex
	audio []byte
	err   error
	calls []string
}

func (f *fakeTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeTTS) Encoding() string { return "linear16" }
func (f *fakeTTS) SampleRate() int  { return 16000 }

type fakeGenerator struct {
	mu          sync.Mutex
	replies     []string
	errs        []error
	calls       int
	inFlight    int32
	maxObserved int32
	gate        chan struct{} // when set, Generate blocks until the gate closes
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt string, history []internal_generation.Message, userMessage string) (string, internal_generation.Usage, error) {
	current := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxObserved)
		if current <= max || atomic.CompareAndSwapInt32(&f.maxObserved, max, current) {
			break
		}
	}

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", internal_generation.Usage{}, ctx.Err()
		}
	}

	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if idx < len(f.errs) && f.errs[idx] != nil {
		return "", internal_generation.Usage{}, f.errs[idx]
	}
	reply := "ok"
	if idx < len(f.replies) {
		reply = f.replies[idx]
	} else if len(f.replies) > 0 {
		reply = f.replies[len(f.replies)-1]
	}
	return reply, internal_generation.Usage{PromptTokens: 5, CompletionTokens: 2}, nil
}

type fakeUsageReporter struct {
	mu      sync.Mutex
	reports []internal_usage.CallUsage
}

func (f *fakeUsageReporter) Report(ctx context.Context, usage internal_usage.CallUsage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, usage)
	return nil
}

func (f *fakeUsageReporter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reports)
}

type savedRecording struct {
	callID    string
	user      []byte
	assistant []byte
}

type fakeRecordingStore struct {
	mu    sync.Mutex
	saves []savedRecording
}

func (f *fakeRecordingStore) SaveRecording(ctx context.Context, callID string, user, assistant []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, savedRecording{callID: callID, user: user, assistant: assistant})
	return nil
}

func (f *fakeRecordingStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

// =============================================================================
// Harness
// =============================================================================

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// msgSink records every message the client receives.
type msgSink struct {
	mu   sync.Mutex
	msgs []internal_protocol.Message
}

func (s *msgSink) pump(ch *internal_signaling.Channel) {
	for msg := range ch.Receive() {
		s.mu.Lock()
		s.msgs = append(s.msgs, msg)
		s.mu.Unlock()
	}
}

func (s *msgSink) snapshot() []internal_protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]internal_protocol.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *msgSink) count(pred func(internal_protocol.Message) bool) int {
	n := 0
	for _, m := range s.snapshot() {
		if pred(m) {
			n++
		}
	}
	return n
}

func isAssistantFinal(m internal_protocol.Message) bool {
	tr, ok := m.(*internal_protocol.Transcript)
	return ok && tr.Speaker == "assistant" && tr.IsFinal
}

func isAudioResponse(m internal_protocol.Message) bool {
	_, ok := m.(*internal_protocol.AudioResponse)
	return ok
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type testEnv struct {
	engine *Engine
	client *internal_signaling.Channel
	sink   *msgSink
	stt    *fakeSTT
	tts    *fakeTTS
	gen    *fakeGenerator
	usage  *fakeUsageReporter
}

func newTestEnv(t *testing.T, mutate func(*Config, *Deps)) *testEnv {
	t.Helper()
	logger := newTestLogger(t)

	env := &testEnv{
		stt:   &fakeSTT{},
		tts:   &fakeTTS{audio: make([]byte, 3200)},
		gen:   &fakeGenerator{replies: []string{"hello there"}},
		usage: &fakeUsageReporter{},
	}

	cfg := Config{
		SystemPrompt:  "you are a voice assistant",
		HistoryWindow: 20,
		TurnTimeout:   5 * time.Second,
	}
	deps := Deps{
		STTFactory: func(ctx context.Context) (internal_transformer.SpeechToTextTransformer, error) {
			return env.stt, nil
		},
		TTS:       env.tts,
		Generator: env.gen,
		Usage:     env.usage,
		NewRecorder: func() (internal_type.Recorder, error) {
			return NewCallRecorder(logger)
		},
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}

	env.engine = NewEngine(logger, cfg, deps)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ch := internal_signaling.NewChannel(conn, logger)
		go env.engine.HandleChannel(context.Background(), ch)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := internal_signaling.Dial(ctx, url, nil, logger)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	env.client = client

	env.sink = &msgSink{}
	go env.sink.pump(client)
	return env
}

// startCall drives the handshake and returns the allocated call id.
func (env *testEnv) startCall(t *testing.T) string {
	t.Helper()
	if err := env.client.Send(internal_protocol.NewStartCall("campaign-1", "account-1", "room-1")); err != nil {
		t.Fatalf("start_call send failed: %v", err)
	}
	var callID string
	waitFor(t, "call_started", func() bool {
		for _, m := range env.sink.snapshot() {
			if cs, ok := m.(*internal_protocol.CallStarted); ok {
				callID = cs.CallID
				return true
			}
		}
		return false
	})
	if callID == "" {
		t.Fatal("empty call id")
	}
	return callID
}

// =============================================================================
// Tests
// =============================================================================

func TestStartAndEndCallLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	callID := env.startCall(t)
	if env.engine.ActiveCalls() != 1 {
		t.Fatalf("expected 1 active call, got %d", env.engine.ActiveCalls())
	}

	if err := env.client.Send(internal_protocol.NewEndCall(callID)); err != nil {
		t.Fatalf("end_call send failed: %v", err)
	}
	waitFor(t, "call_ended", func() bool {
		return env.sink.count(func(m internal_protocol.Message) bool {
			ce, ok := m.(*internal_protocol.CallEnded)
			return ok && ce.CallID == callID
		}) == 1
	})
	waitFor(t, "session removal", func() bool { return env.engine.ActiveCalls() == 0 })
	waitFor(t, "usage handoff", func() bool { return env.usage.count() == 1 })

	env.usage.mu.Lock()
	defer env.usage.mu.Unlock()
	report := env.usage.reports[0]
	if report.CallID != callID || report.CampaignID != "campaign-1" {
		t.Errorf("usage report wrong: %+v", report)
	}
}

func TestAudioChunksAndUserTextProduceSingleTurn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startCall(t)

	chunk := internal_audio.Encode(make([]byte, 3200))
	for i := 0; i < 10; i++ {
		if err := env.client.Send(internal_protocol.NewAudioChunk(chunk)); err != nil {
			t.Fatalf("audio chunk %d send failed: %v", i, err)
		}
	}
	if err := env.client.Send(internal_protocol.NewUserText("what time is it?")); err != nil {
		t.Fatalf("user_text send failed: %v", err)
	}

	waitFor(t, "turn completion", func() bool {
		return env.sink.count(isAudioResponse) >= 1
	})
	waitFor(t, "audio reaches recognizer", func() bool {
		return env.stt.writeCount() == 10
	})

	// Exactly one turn: one assistant transcript, one audio response.
	if n := env.sink.count(isAssistantFinal); n != 1 {
		t.Errorf("expected exactly 1 assistant transcript, got %d", n)
	}
	if n := env.sink.count(isAudioResponse); n != 1 {
		t.Errorf("expected exactly 1 audio response, got %d", n)
	}

	// ai_speaking brackets the audio response.
	msgs := env.sink.snapshot()
	var sequence []string
	for _, m := range msgs {
		switch v := m.(type) {
		case *internal_protocol.AiSpeaking:
			sequence = append(sequence, fmt.Sprintf("speaking=%v", v.Speaking))
		case *internal_protocol.AudioResponse:
			sequence = append(sequence, "audio")
		}
	}
	want := []string{"speaking=true", "audio", "speaking=false"}
	if len(sequence) != len(want) {
		t.Fatalf("ai_speaking sequence %v, want %v", sequence, want)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("ai_speaking sequence %v, want %v", sequence, want)
		}
	}
}

func TestInterimAndFinalTranscripts(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startCall(t)

	env.stt.emit("hel", false)
	waitFor(t, "interim transcript", func() bool {
		return env.sink.count(func(m internal_protocol.Message) bool {
			tr, ok := m.(*internal_protocol.Transcript)
			return ok && tr.Speaker == "user" && !tr.IsFinal && tr.Text == "hel"
		}) == 1
	})
	// Interim results never start a turn.
	if n := env.sink.count(isAssistantFinal); n != 0 {
		t.Fatalf("interim transcript must not trigger generation, got %d replies", n)
	}

	env.stt.emit("hello there assistant", true)
	waitFor(t, "turn from final transcript", func() bool {
		return env.sink.count(isAudioResponse) == 1 && env.sink.count(isAssistantFinal) == 1
	})
}

func TestFinalTranscriptOrderingPreserved(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startCall(t)

	inputs := []string{"first utterance", "second utterance", "third utterance"}
	for _, text := range inputs {
		env.stt.emit(text, true)
	}

	waitFor(t, "all turns", func() bool {
		return env.sink.count(isAssistantFinal) == len(inputs)
	})

	var userFinals []string
	for _, m := range env.sink.snapshot() {
		if tr, ok := m.(*internal_protocol.Transcript); ok && tr.Speaker == "user" && tr.IsFinal {
			userFinals = append(userFinals, tr.Text)
		}
	}
	if len(userFinals) != len(inputs) {
		t.Fatalf("expected %d user transcripts, got %d", len(inputs), len(userFinals))
	}
	for i := range inputs {
		if userFinals[i] != inputs[i] {
			t.Fatalf("transcript %d out of order: got %q want %q", i, userFinals[i], inputs[i])
		}
	}
}

func TestAtMostOneConcurrentTurn(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {})
	env.gen.gate = gate
	env.startCall(t)

	if err := env.client.Send(internal_protocol.NewUserText("one")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if err := env.client.Send(internal_protocol.NewUserText("two")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	// Give the second message every chance to (incorrectly) start a turn.
	time.Sleep(200 * time.Millisecond)
	close(gate)

	waitFor(t, "both turns", func() bool {
		return env.sink.count(isAssistantFinal) == 2
	})
	if max := atomic.LoadInt32(&env.gen.maxObserved); max != 1 {
		t.Fatalf("at most one turn may run at a time, saw %d", max)
	}
}

func TestGenerationFailureKeepsSessionActive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gen.errs = []error{
		&internal_type.GenerationError{Provider: "fake", Err: fmt.Errorf("boom")},
	}
	env.gen.replies = []string{"recovered reply", "recovered reply"}
	env.startCall(t)

	if err := env.client.Send(internal_protocol.NewUserText("first")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitFor(t, "error message", func() bool {
		return env.sink.count(func(m internal_protocol.Message) bool {
			_, ok := m.(*internal_protocol.ErrorMessage)
			return ok
		}) == 1
	})
	if env.engine.ActiveCalls() != 1 {
		t.Fatal("recoverable failure must keep the session active")
	}

	if err := env.client.Send(internal_protocol.NewUserText("second")); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	waitFor(t, "recovery turn", func() bool {
		return env.sink.count(isAssistantFinal) == 1
	})
}

func TestSynthesisFailureStillCommitsTurn(t *testing.T) {
	env := newTestEnv(t, nil)
	env.tts.err = &internal_type.SynthesisError{Provider: "fake", Err: fmt.Errorf("voice down")}
	env.startCall(t)

	if err := env.client.Send(internal_protocol.NewUserText("say something")); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, "assistant transcript despite TTS failure", func() bool {
		return env.sink.count(isAssistantFinal) == 1
	})
	waitFor(t, "synthesis error message", func() bool {
		return env.sink.count(func(m internal_protocol.Message) bool {
			_, ok := m.(*internal_protocol.ErrorMessage)
			return ok
		}) == 1
	})
	if n := env.sink.count(isAudioResponse); n != 0 {
		t.Errorf("no audio should be sent when synthesis fails, got %d", n)
	}
}

func TestChannelCloseTearsDownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	env.startCall(t)

	env.client.Close()

	waitFor(t, "session teardown", func() bool { return env.engine.ActiveCalls() == 0 })
	waitFor(t, "usage handoff on close", func() bool { return env.usage.count() == 1 })
}

func TestCallRecordingHandedOffAtEnd(t *testing.T) {
	store := &fakeRecordingStore{}
	env := newTestEnv(t, func(cfg *Config, deps *Deps) {
		deps.Recordings = store
	})
	callID := env.startCall(t)

	// One user chunk and one synthesized reply give both tracks content.
	if err := env.client.Send(internal_protocol.NewAudioChunk(internal_audio.Encode(make([]byte, 3200)))); err != nil {
		t.Fatalf("audio chunk send failed: %v", err)
	}
	if err := env.client.Send(internal_protocol.NewUserText("hello")); err != nil {
		t.Fatalf("user_text send failed: %v", err)
	}
	waitFor(t, "turn completion", func() bool {
		return env.sink.count(isAudioResponse) == 1
	})

	if err := env.client.Send(internal_protocol.NewEndCall(callID)); err != nil {
		t.Fatalf("end_call send failed: %v", err)
	}
	waitFor(t, "recording handoff", func() bool { return store.count() == 1 })

	store.mu.Lock()
	defer store.mu.Unlock()
	saved := store.saves[0]
	if saved.callID != callID {
		t.Errorf("wrong call id: %s", saved.callID)
	}
	for track, wav := range map[string][]byte{"user": saved.user, "assistant": saved.assistant} {
		if len(wav) < 44 {
			t.Fatalf("%s track too short: %d bytes", track, len(wav))
		}
		if string(wav[0:4]) != "RIFF" {
			t.Errorf("%s track is not a WAV file", track)
		}
	}
}

func TestAudioChunkBeforeStartIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil)

	chunk := internal_audio.Encode(make([]byte, 320))
	if err := env.client.Send(internal_protocol.NewAudioChunk(chunk)); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if env.engine.ActiveCalls() != 0 {
		t.Fatal("audio before start_call must not create a session")
	}
	// The channel must survive the violation.
	env.startCall(t)
}

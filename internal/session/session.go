// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_session is the server-side call engine. Each call is one
// actor goroutine draining an inbox of packets; because a turn runs to
// completion before the next packet is taken, at most one turn is ever in
// flight per call. Recognition, generation and synthesis failures end the
// turn with an error message and leave the session active.
package internal_session

import (
	"context"
	"sync"
	"time"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_generation "github.com/rapidaai/voice-engine/internal/generation"
	internal_normalizers "github.com/rapidaai/voice-engine/internal/normalizers"
	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

const (
	// inboxSize bounds queued packets per call (~25s of 100ms audio).
	inboxSize = 256

	defaultTurnTimeout = 12 * time.Second
)

// Generator produces the assistant reply for a committed user turn.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []internal_generation.Message, userMessage string) (string, internal_generation.Usage, error)
}

// Augmenter optionally extends the system prompt per user message.
type Augmenter interface {
	Augment(ctx context.Context, systemPrompt, userMessage string) string
}

// CallStats accumulates usage accounting over a call's lifetime.
type CallStats struct {
	mu               sync.Mutex
	StartedAt        time.Time
	Turns            int
	PromptTokens     int64
	CompletionTokens int64
	AudioInBytes     int
	AudioOutBytes    int
}

func (s *CallStats) addTurn(usage internal_generation.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns++
	s.PromptTokens += usage.PromptTokens
	s.CompletionTokens += usage.CompletionTokens
}

func (s *CallStats) addAudioIn(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioInBytes += n
}

func (s *CallStats) addAudioOut(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AudioOutBytes += n
}

// Snapshot returns a copy safe to read after the call ended.
func (s *CallStats) Snapshot() CallStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CallStats{
		StartedAt:        s.StartedAt,
		Turns:            s.Turns,
		PromptTokens:     s.PromptTokens,
		CompletionTokens: s.CompletionTokens,
		AudioInBytes:     s.AudioInBytes,
		AudioOutBytes:    s.AudioOutBytes,
	}
}

// session is the actor for one call.
type session struct {
	id         string
	campaignID string
	accountID  string
	logger     commons.Logger
	channel    *internal_signaling.Channel
	cfg        Config
	deps       Deps

	stt      internal_transformer.SpeechToTextTransformer
	recorder internal_type.Recorder
	history  *History
	stats    *CallStats

	inbox  chan internal_type.Packet
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

func newSession(logger commons.Logger, id string, channel *internal_signaling.Channel, cfg Config, deps Deps) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		id:      id,
		logger:  logger,
		channel: channel,
		cfg:     cfg,
		deps:    deps,
		history: NewHistory(cfg.HistoryWindow),
		stats:   &CallStats{StartedAt: time.Now()},
		inbox:   make(chan internal_type.Packet, inboxSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// start brings up per-call collaborators and launches the actor.
func (s *session) start() {
	if s.deps.NewRecorder != nil {
		recorder, err := s.deps.NewRecorder()
		if err != nil {
			s.logger.Warnw("call recording disabled", "callId", s.id, "error", err)
		} else {
			s.recorder = recorder
			s.recorder.Start()
		}
	}

	if s.deps.STTFactory != nil {
		stt, err := s.deps.STTFactory(s.ctx)
		if err != nil {
			s.logger.Errorw("speech recognition unavailable", "callId", s.id, "error", err)
			s.sendError("speech recognition unavailable")
		} else if err := stt.Start(s.ctx, s.onRecognition); err != nil {
			s.logger.Errorw("speech recognition failed to start", "callId", s.id, "error", err)
			s.sendError("speech recognition unavailable")
		} else {
			s.stt = stt
		}
	}

	go s.run()
}

// enqueue hands a packet to the actor. Full inbox drops audio (real-time
// stream, loss is recoverable) but never text or committed transcripts.
func (s *session) enqueue(p internal_type.Packet) {
	if _, isAudio := p.(internal_type.UserAudioPacket); isAudio {
		select {
		case s.inbox <- p:
		case <-s.ctx.Done():
		default:
			s.logger.Warnw("session inbox full, dropping audio packet", "callId", s.id)
		}
		return
	}
	select {
	case s.inbox <- p:
	case <-s.ctx.Done():
	}
}

// stop terminates the actor and closes per-call collaborators. Idempotent.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		if s.stt != nil {
			_ = s.stt.Close()
		}
		<-s.done

		if s.recorder != nil {
			if user, assistant, err := s.recorder.Persist(); err == nil {
				s.logger.Infow("call recording persisted",
					"callId", s.id, "userBytes", len(user), "assistantBytes", len(assistant))
				s.handOffRecording(user, assistant)
			} else {
				s.logger.Debugw("no call recording to persist", "callId", s.id, "error", err)
			}
		}
	})
}

// handOffRecording delivers the persisted WAV tracks to the recording store.
// Best-effort, failure never blocks teardown.
func (s *session) handOffRecording(user, assistant []byte) {
	if s.deps.Recordings == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.deps.Recordings.SaveRecording(ctx, s.id, user, assistant); err != nil {
		s.logger.Warnw("recording handoff failed", "callId", s.id, "error", err)
	}
}

// onRecognition runs on the STT provider's callback goroutine. Interims are
// forwarded immediately; finals queue in the inbox so a transcript landing
// mid-turn waits for the running turn to finish.
func (s *session) onRecognition(result internal_transformer.RecognitionResult) {
	if !result.IsFinal {
		s.send(internal_protocol.NewTranscript(result.Text, string(internal_type.SpeakerUser), false))
		return
	}
	s.enqueue(internal_type.FinalTranscriptPacket{
		Text:       result.Text,
		Confidence: result.Confidence,
		Timestamp:  time.Now(),
	})
}

func (s *session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case p := <-s.inbox:
			s.handle(p)
		}
	}
}

func (s *session) handle(p internal_type.Packet) {
	switch pkt := p.(type) {
	case internal_type.UserAudioPacket:
		s.stats.addAudioIn(len(pkt.Audio))
		if s.recorder != nil {
			_ = s.recorder.Record(s.ctx, pkt)
		}
		if s.stt == nil {
			return
		}
		if err := s.stt.Write(pkt.Audio); err != nil {
			s.logger.Warnw("failed to stream audio to recognizer", "callId", s.id, "error", err)
		}

	case internal_type.UserTextPacket:
		// Text mode bypasses recognition but is otherwise a normal turn.
		s.send(internal_protocol.NewTranscript(pkt.Text, string(internal_type.SpeakerUser), true))
		s.runTurn(pkt.Text)

	case internal_type.FinalTranscriptPacket:
		s.send(internal_protocol.NewTranscript(pkt.Text, string(internal_type.SpeakerUser), true))
		s.runTurn(pkt.Text)
	}
}

// runTurn executes the full generation pipeline for one committed user
// message. Stage failures emit an error message and abort the turn; the
// session stays active for the next one.
func (s *session) runTurn(userText string) {
	timeout := s.cfg.TurnTimeout
	if timeout <= 0 {
		timeout = defaultTurnTimeout
	}

	systemPrompt := s.cfg.SystemPrompt
	if s.deps.Retriever != nil {
		retrievalCtx, cancel := context.WithTimeout(s.ctx, timeout)
		systemPrompt = s.deps.Retriever.Augment(retrievalCtx, systemPrompt, userText)
		cancel()
	}

	genCtx, cancelGen := context.WithTimeout(s.ctx, timeout)
	reply, usage, err := s.deps.Generator.Generate(genCtx, systemPrompt, s.history.Messages(), userText)
	cancelGen()
	if err != nil {
		s.logger.Errorw("turn generation failed", "callId", s.id, "error", err)
		s.sendError("assistant is unavailable right now")
		return
	}

	// The turn is committed once generation succeeds; synthesis failure
	// below still leaves the exchange in history.
	s.history.Append(internal_generation.RoleUser, userText)
	s.history.Append(internal_generation.RoleAssistant, reply)
	s.stats.addTurn(usage)
	s.send(internal_protocol.NewTranscript(reply, string(internal_type.SpeakerAssistant), true))

	if s.deps.TTS == nil {
		return
	}

	speakable := internal_normalizers.Apply(reply, s.deps.Normalizers)
	ttsCtx, cancelTTS := context.WithTimeout(s.ctx, timeout)
	audio, err := s.deps.TTS.Synthesize(ttsCtx, speakable)
	cancelTTS()
	if err != nil {
		s.logger.Errorw("turn synthesis failed", "callId", s.id, "error", err)
		s.sendError("could not synthesize the reply")
		return
	}

	s.stats.addAudioOut(len(audio))
	if s.recorder != nil {
		_ = s.recorder.Record(s.ctx, internal_type.AssistantAudioPacket{CallID: s.id, AudioChunk: audio})
	}

	s.send(internal_protocol.NewAiSpeaking(true))
	s.send(internal_protocol.NewAudioResponse(
		internal_audio.Encode(audio), s.deps.TTS.Encoding(), s.deps.TTS.SampleRate()))
	s.send(internal_protocol.NewAiSpeaking(false))
}

func (s *session) send(msg internal_protocol.Message) {
	if err := s.channel.Send(msg); err != nil {
		s.logger.Debugw("dropping outbound message, channel closed",
			"callId", s.id, "type", msg.MessageType())
	}
}

func (s *session) sendError(message string) {
	s.send(internal_protocol.NewErrorMessage(message))
}

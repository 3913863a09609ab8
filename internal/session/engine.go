// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_normalizers "github.com/rapidaai/voice-engine/internal/normalizers"
	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	internal_usage "github.com/rapidaai/voice-engine/internal/usage"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

// Config tunes turn generation for every call the engine serves.
type Config struct {
	SystemPrompt  string
	HistoryWindow int
	TurnTimeout   time.Duration
}

// Deps are the engine's collaborators. Optional members may be nil: no
// STTFactory means audio is recorded but not transcribed, no TTS means
// text-only replies, no Retriever means no prompt augmentation, no
// NewRecorder disables recording, no Recordings discards the persisted
// tracks and no Usage skips accounting handoff.
type Deps struct {
	STTFactory  func(ctx context.Context) (internal_transformer.SpeechToTextTransformer, error)
	TTS         internal_transformer.TextToSpeechTransformer
	Generator   Generator
	Retriever   Augmenter
	Normalizers []internal_normalizers.Normalizer
	NewRecorder func() (internal_type.Recorder, error)
	Recordings  internal_usage.RecordingStore
	Usage       internal_usage.Reporter
}

// Engine owns every live call session.
type Engine struct {
	logger commons.Logger
	cfg    Config
	deps   Deps

	mu       sync.Mutex
	sessions map[string]*session
}

// NewEngine creates the call engine.
func NewEngine(logger commons.Logger, cfg Config, deps Deps) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*session),
	}
}

// ActiveCalls reports the number of live sessions.
func (e *Engine) ActiveCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// HandleChannel serves one signaling connection until it closes. A channel
// carries at most one call; protocol violations are logged and the offending
// message dropped, never fatal.
func (e *Engine) HandleChannel(ctx context.Context, channel *internal_signaling.Channel) {
	var sess *session
	defer func() {
		if sess != nil {
			e.endSession(sess, "channel closed")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-channel.Closed():
			return
		case msg, ok := <-channel.Receive():
			if !ok {
				return
			}
			sess = e.handleMessage(channel, sess, msg)
		}
	}
}

func (e *Engine) handleMessage(channel *internal_signaling.Channel, sess *session, msg internal_protocol.Message) *session {
	switch m := msg.(type) {
	case *internal_protocol.StartCall:
		if sess != nil {
			e.protocolViolation(msg, "call already started on this channel")
			return sess
		}
		return e.startSession(channel, m)

	case *internal_protocol.AudioChunk:
		if sess == nil {
			e.protocolViolation(msg, "no active call")
			return nil
		}
		raw, err := internal_audio.Decode(m.AudioData)
		if err != nil {
			e.protocolViolation(msg, "audio payload is not valid base64")
			return sess
		}
		sess.enqueue(internal_type.UserAudioPacket{Audio: raw})
		return sess

	case *internal_protocol.UserText:
		if sess == nil {
			e.protocolViolation(msg, "no active call")
			return nil
		}
		sess.enqueue(internal_type.UserTextPacket{Text: m.Text})
		return sess

	case *internal_protocol.EndCall:
		if sess == nil {
			e.protocolViolation(msg, "no active call")
			return nil
		}
		if m.CallID != "" && m.CallID != sess.id {
			e.protocolViolation(msg, "call id mismatch")
			return sess
		}
		sess.send(internal_protocol.NewCallEnded(sess.id))
		e.endSession(sess, "end_call")
		return nil

	default:
		e.protocolViolation(msg, "unexpected direction")
		return sess
	}
}

func (e *Engine) startSession(channel *internal_signaling.Channel, m *internal_protocol.StartCall) *session {
	id := uuid.NewString()
	sess := newSession(e.logger, id, channel, e.cfg, e.deps)
	sess.campaignID = m.CampaignID
	sess.accountID = m.AccountID

	e.mu.Lock()
	e.sessions[id] = sess
	e.mu.Unlock()

	sess.start()
	sess.send(internal_protocol.NewCallStarted(id))
	e.logger.Infow("call started",
		"callId", id, "campaignId", m.CampaignID, "accountId", m.AccountID, "room", m.RoomName)
	return sess
}

func (e *Engine) endSession(sess *session, reason string) {
	sess.stop()

	e.mu.Lock()
	delete(e.sessions, sess.id)
	e.mu.Unlock()

	stats := sess.stats.Snapshot()
	e.logger.Infow("call ended",
		"callId", sess.id, "reason", reason, "turns", stats.Turns,
		"audioInBytes", stats.AudioInBytes, "audioOutBytes", stats.AudioOutBytes)

	if e.deps.Usage == nil {
		return
	}
	reportCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.deps.Usage.Report(reportCtx, internal_usage.CallUsage{
		CallID:           sess.id,
		CampaignID:       sess.campaignID,
		AccountID:        sess.accountID,
		StartedAt:        stats.StartedAt,
		EndedAt:          time.Now(),
		Turns:            stats.Turns,
		PromptTokens:     stats.PromptTokens,
		CompletionTokens: stats.CompletionTokens,
		AudioInBytes:     stats.AudioInBytes,
		AudioOutBytes:    stats.AudioOutBytes,
	}); err != nil {
		e.logger.Warnw("usage handoff failed", "callId", sess.id, "error", err)
	}
}

func (e *Engine) protocolViolation(msg internal_protocol.Message, reason string) {
	err := &internal_type.ProtocolError{Type: string(msg.MessageType()), Err: errors.New(reason)}
	e.logger.Warnw("dropping protocol-violating message", "error", err.Error())
}

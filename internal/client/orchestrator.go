// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_client is the participant-side orchestrator: it joins the
// media room, opens the signaling channel, pumps microphone audio upstream
// and plays assistant audio downstream, tracking the call through its state
// machine. One Orchestrator serves one participant; it can run calls
// back-to-back but never two at once.
package internal_client

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transport "github.com/rapidaai/voice-engine/internal/transport"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

// State is the call lifecycle position.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateActive     State = "active"
	StateEnding     State = "ending"
)

const (
	callStartTimeout = 15 * time.Second
	callEndTimeout   = 5 * time.Second
)

// Options configures one Orchestrator.
type Options struct {
	// SignalingURL is the ws:// endpoint of the call-control channel.
	SignalingURL string
	// RoomURL is the room server's signaling socket. Empty disables the
	// media room and the client runs signaling-only.
	RoomURL   string
	RoomToken string
	RoomName  string

	CampaignID string
	AccountID  string

	Capture  internal_type.CaptureSource
	Playback internal_type.PlaybackSink

	// Transport overrides the room configuration; nil uses defaults.
	Transport *internal_transport.Config
}

// Callbacks observe the orchestrator. All callbacks fire from internal
// goroutines and must not block.
type Callbacks struct {
	OnStateChange       func(from, to State)
	OnTranscript        func(text, speaker string, isFinal bool)
	OnAssistantSpeaking func(speaking bool)
	OnError             func(err error)
}

// TranscriptEntry is a committed (final) transcript line.
type TranscriptEntry struct {
	Text      string
	Speaker   string
	Timestamp time.Time
}

// Orchestrator drives the client call state machine.
type Orchestrator struct {
	logger    commons.Logger
	opts      Options
	callbacks Callbacks

	mu          sync.Mutex
	state       State
	callID      string
	transcripts []TranscriptEntry

	// Per-call wiring, replaced on every Connect.
	channel   *internal_signaling.Channel
	transport *internal_transport.Manager
	capture   *capturePump
	playback  *playbackRegistry

	callStartedCh chan string
	callEndedCh   chan struct{}
	callEndedOnce *sync.Once
	teardownOnce  *sync.Once
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(logger commons.Logger, opts Options, callbacks Callbacks) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		opts:      opts,
		callbacks: callbacks,
		state:     StateIdle,
	}
}

// State reports the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CallID reports the server-allocated call id; empty before call_started.
func (o *Orchestrator) CallID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callID
}

// Transcripts returns a snapshot of the final transcripts seen so far.
func (o *Orchestrator) Transcripts() []TranscriptEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]TranscriptEntry, len(o.transcripts))
	copy(out, o.transcripts)
	return out
}

// Connect joins the room (when configured), opens the signaling channel,
// starts the call and begins streaming microphone audio. On any failure the
// orchestrator tears everything down, returns to Idle and returns the error.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return fmt.Errorf("connect: call already in progress (state %s)", state)
	}
	o.state = StateConnecting
	o.callID = ""
	o.transcripts = nil
	o.callStartedCh = make(chan string, 1)
	o.callEndedCh = make(chan struct{})
	o.callEndedOnce = &sync.Once{}
	o.teardownOnce = &sync.Once{}
	o.mu.Unlock()
	o.notifyState(StateIdle, StateConnecting)

	if err := o.connect(ctx); err != nil {
		o.teardown(err)
		return err
	}
	return nil
}

func (o *Orchestrator) connect(ctx context.Context) error {
	// Media room first: there is no point opening a call the participant
	// cannot be heard in.
	if o.opts.RoomURL != "" {
		transport := internal_transport.NewManager(o.logger, o.opts.Transport, internal_transport.Callbacks{
			OnDisconnected: func(reason internal_transport.DisconnectReason) {
				if reason == internal_transport.DisconnectReasonNormal {
					return
				}
				o.teardown(&internal_type.TransportError{
					Op:  "room",
					Err: fmt.Errorf("disconnected: %s", reason),
				})
			},
			OnError: func(err error) {
				o.logger.Errorw("room transport error", "error", err)
			},
		})
		if err := transport.Connect(ctx, o.opts.RoomURL, o.opts.RoomToken, o.opts.RoomName); err != nil {
			return err
		}
		o.mu.Lock()
		o.transport = transport
		o.mu.Unlock()
	}

	channel, err := internal_signaling.Dial(ctx, o.opts.SignalingURL, nil, o.logger)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.channel = channel
	o.playback = newPlaybackRegistry(o.logger, o.opts.Playback)
	o.mu.Unlock()

	go o.eventLoop(channel)

	if err := channel.Send(internal_protocol.NewStartCall(
		o.opts.CampaignID, o.opts.AccountID, o.opts.RoomName)); err != nil {
		return err
	}

	select {
	case callID := <-o.callStartedCh:
		o.mu.Lock()
		o.callID = callID
		o.state = StateActive
		capture := newCapturePump(o.logger, o.opts.Capture, channel, o.transport)
		o.capture = capture
		o.mu.Unlock()
		o.notifyState(StateConnecting, StateActive)

		if err := capture.start(); err != nil {
			return &internal_type.TransportError{Op: "start capture", Err: err}
		}
		o.logger.Infow("call active", "callId", callID)
		return nil
	case <-o.callEndedCh:
		return &internal_type.SignalingError{Op: "start call", Err: fmt.Errorf("channel closed before call_started")}
	case <-time.After(callStartTimeout):
		return &internal_type.SignalingError{Op: "start call", Err: fmt.Errorf("timed out waiting for call_started")}
	case <-ctx.Done():
		return &internal_type.SignalingError{Op: "start call", Err: ctx.Err()}
	}
}

// SendText submits a text-mode user turn, bypassing speech recognition.
func (o *Orchestrator) SendText(text string) error {
	o.mu.Lock()
	channel, state := o.channel, o.state
	o.mu.Unlock()
	if state != StateActive {
		return fmt.Errorf("send text: call not active (state %s)", state)
	}
	return channel.Send(internal_protocol.NewUserText(text))
}

// SetMuted pauses or resumes outbound microphone audio. Playback of
// assistant audio is unaffected.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	capture, transport := o.capture, o.transport
	o.mu.Unlock()
	if capture != nil {
		capture.setMuted(muted)
	}
	if transport != nil {
		transport.SetMuted(muted)
	}
}

// Disconnect ends the call gracefully: end_call is sent, the server's
// call_ended is awaited briefly, then everything is torn down. Safe to call
// in any state.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.state == StateIdle {
		o.mu.Unlock()
		return
	}
	active := o.state == StateActive
	from := o.state
	o.state = StateEnding
	channel, callID, callEndedCh := o.channel, o.callID, o.callEndedCh
	o.mu.Unlock()
	o.notifyState(from, StateEnding)

	if active && channel != nil {
		if err := channel.Send(internal_protocol.NewEndCall(callID)); err == nil {
			select {
			case <-callEndedCh:
			case <-time.After(callEndTimeout):
				o.logger.Warnw("timed out waiting for call_ended", "callId", callID)
			}
		}
	}
	o.teardown(nil)
}

// teardown stops capture and playback, closes the channel and the room, and
// returns to Idle. A non-nil err is surfaced through OnError after the
// resources are released. Idempotent per call.
func (o *Orchestrator) teardown(err error) {
	o.mu.Lock()
	once := o.teardownOnce
	o.mu.Unlock()
	if once == nil {
		return
	}

	once.Do(func() {
		o.mu.Lock()
		from := o.state
		capture, playback, channel, transport := o.capture, o.playback, o.channel, o.transport
		o.capture, o.playback, o.channel, o.transport = nil, nil, nil, nil
		o.state = StateIdle
		o.mu.Unlock()

		if capture != nil {
			capture.stop()
		}
		if playback != nil {
			playback.stopAll()
		}
		if channel != nil {
			_ = channel.Close()
		}
		if transport != nil {
			transport.Disconnect()
		}

		if from != StateIdle {
			o.notifyState(from, StateIdle)
		}
		if err != nil {
			o.logger.Errorw("call terminated", "error", err)
			if o.callbacks.OnError != nil {
				o.callbacks.OnError(err)
			}
		}
	})
}

// =============================================================================
// Inbound message handling
// =============================================================================

func (o *Orchestrator) eventLoop(channel *internal_signaling.Channel) {
	for {
		select {
		case msg, ok := <-channel.Receive():
			if !ok {
				o.onChannelClosed(channel)
				return
			}
			o.handleMessage(msg)
		case <-channel.Closed():
			o.onChannelClosed(channel)
			return
		}
	}
}

func (o *Orchestrator) onChannelClosed(channel *internal_signaling.Channel) {
	o.signalCallEnded()
	o.teardown(channel.Err())
}

func (o *Orchestrator) signalCallEnded() {
	o.mu.Lock()
	once, ch := o.callEndedOnce, o.callEndedCh
	o.mu.Unlock()
	if once == nil {
		return
	}
	once.Do(func() { close(ch) })
}

func (o *Orchestrator) handleMessage(msg internal_protocol.Message) {
	switch m := msg.(type) {
	case *internal_protocol.CallStarted:
		select {
		case o.callStartedCh <- m.CallID:
		default:
		}

	case *internal_protocol.Transcript:
		if m.IsFinal {
			o.mu.Lock()
			o.transcripts = append(o.transcripts, TranscriptEntry{
				Text:      m.Text,
				Speaker:   m.Speaker,
				Timestamp: time.Now(),
			})
			o.mu.Unlock()
		}
		if o.callbacks.OnTranscript != nil {
			o.callbacks.OnTranscript(m.Text, m.Speaker, m.IsFinal)
		}

	case *internal_protocol.AiSpeaking:
		if o.callbacks.OnAssistantSpeaking != nil {
			o.callbacks.OnAssistantSpeaking(m.Speaking)
		}

	case *internal_protocol.AudioResponse:
		o.mu.Lock()
		playback := o.playback
		o.mu.Unlock()
		if playback == nil {
			return
		}
		if err := playback.play(m); err != nil {
			o.logger.Warnw("failed to play assistant audio", "error", err)
		}

	case *internal_protocol.ErrorMessage:
		// Recoverable server-side failure: the session stays active.
		o.logger.Warnw("server reported error", "error", m.Error)
		if o.callbacks.OnError != nil {
			o.callbacks.OnError(fmt.Errorf("server: %s", m.Error))
		}

	case *internal_protocol.CallEnded:
		o.signalCallEnded()
		o.teardown(nil)

	default:
		o.logger.Debugw("ignoring unexpected signaling message", "type", msg.MessageType())
	}
}

func (o *Orchestrator) notifyState(from, to State) {
	o.logger.Debugw("state change", "from", string(from), "to", string(to))
	if o.callbacks.OnStateChange != nil {
		o.callbacks.OnStateChange(from, to)
	}
}

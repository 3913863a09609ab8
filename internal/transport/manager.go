// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package internal_transport owns room membership on the WebRTC media plane:
// it joins a named room through the room server's signaling socket, publishes
// the local microphone track, and surfaces subscribed remote tracks as
// decoded PCM frames. The signaling channel for call control is a separate
// concern — see internal_signaling.
package internal_transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

const (
	connectTimeout = 15 * time.Second

	// opusEncodeBufferSize is large enough for any 20ms voice frame.
	opusEncodeBufferSize = 1400
)

// signalMessage is the room server's signaling envelope (join handshake and
// ICE trickle). Distinct from the call-control protocol.
type signalMessage struct {
	Type      string                        `json:"type"` // join, answer, candidate, bye, error
	Room      string                        `json:"room,omitempty"`
	Token     string                        `json:"token,omitempty"`
	SDP       string                        `json:"sdp,omitempty"`
	Candidate *pionwebrtc.ICECandidateInit  `json:"candidate,omitempty"`
	Audio     *joinAudioConstraints         `json:"audio,omitempty"`
	Error     string                        `json:"error,omitempty"`
}

// joinAudioConstraints advertises the capture processing the publisher wants
// applied on its microphone.
type joinAudioConstraints struct {
	EchoCancellation bool `json:"echoCancellation"`
	NoiseSuppression bool `json:"noiseSuppression"`
	AutoGainControl  bool `json:"autoGainControl"`
}

// Manager owns one room connection. A Manager is single-use: after
// Disconnect it cannot be reconnected — create a new one per call.
type Manager struct {
	mu        sync.Mutex
	logger    commons.Logger
	config    *Config
	callbacks Callbacks

	ctx    context.Context
	cancel context.CancelFunc

	pc         *pionwebrtc.PeerConnection
	localTrack *pionwebrtc.TrackLocalStaticSample

	signal   *websocket.Conn
	signalMu sync.Mutex // serializes writes on the signaling socket

	publishCh chan []byte // 16kHz mono PCM16 awaiting encode

	muted     bool
	connected bool
	closed    bool

	disconnectOnce sync.Once
}

// NewManager creates a transport manager with the given configuration and
// observer callbacks. Nil callbacks are allowed and skipped.
func NewManager(logger commons.Logger, config *Config, callbacks Callbacks) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		logger:    logger,
		config:    config,
		callbacks: callbacks,
		ctx:       ctx,
		cancel:    cancel,
		publishCh: make(chan []byte, PublishQueueSize),
	}
}

// Connect joins roomName through the room server at url, publishes the local
// microphone track and starts track negotiation. It blocks until the peer
// connection is established or the handshake fails/times out, in which case
// a *TransportError is returned and the Manager is left disconnected.
func (m *Manager) Connect(ctx context.Context, url, token, roomName string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return &internal_type.TransportError{Op: "connect", Err: fmt.Errorf("manager already closed")}
	}
	if m.pc != nil {
		m.mu.Unlock()
		return &internal_type.TransportError{Op: "connect", Err: fmt.Errorf("already connected")}
	}
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return &internal_type.TransportError{Op: "dial room server", Err: err}
	}

	pc, track, err := m.newPeerConnection()
	if err != nil {
		_ = conn.Close()
		return &internal_type.TransportError{Op: "create peer connection", Err: err}
	}

	m.mu.Lock()
	m.signal = conn
	m.pc = pc
	m.localTrack = track
	m.mu.Unlock()

	connectedCh := make(chan struct{})
	var connectedOnce sync.Once

	pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			m.mu.Lock()
			m.connected = true
			m.mu.Unlock()
			connectedOnce.Do(func() { close(connectedCh) })
			if m.callbacks.OnConnected != nil {
				m.callbacks.OnConnected()
			}
		case pionwebrtc.PeerConnectionStateFailed:
			// pion has already exhausted its ICE restart attempts by the
			// time the connection reaches failed; only now do we surface
			// the disconnect. Transient "disconnected" is not reported.
			m.teardown(DisconnectReasonConnectionFailed)
		}
	})

	pc.OnICECandidate(func(c *pionwebrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		if err := m.writeSignal(signalMessage{Type: "candidate", Candidate: &init}); err != nil {
			m.logger.Warnw("failed to trickle ICE candidate", "error", err)
		}
	})

	pc.OnTrack(func(remote *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		m.handleRemoteTrack(remote)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		m.teardown(DisconnectReasonConnectionFailed)
		return &internal_type.TransportError{Op: "create offer", Err: err}
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		m.teardown(DisconnectReasonConnectionFailed)
		return &internal_type.TransportError{Op: "set local description", Err: err}
	}

	join := signalMessage{
		Type:  "join",
		Room:  roomName,
		Token: token,
		SDP:   offer.SDP,
		Audio: &joinAudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
	if err := m.writeSignal(join); err != nil {
		m.teardown(DisconnectReasonConnectionFailed)
		return &internal_type.TransportError{Op: "join room", Err: err}
	}

	go m.readSignalLoop()
	go m.runPublisher()

	select {
	case <-connectedCh:
		m.logger.Infow("room connected", "room", roomName)
		return nil
	case <-dialCtx.Done():
		if ctx.Err() != nil {
			m.teardown(DisconnectReasonContextCancelled)
			return &internal_type.TransportError{Op: "connect", Err: ctx.Err()}
		}
		m.teardown(DisconnectReasonConnectionFailed)
		return &internal_type.TransportError{Op: "connect", Err: fmt.Errorf("room handshake timed out")}
	case <-m.ctx.Done():
		return &internal_type.TransportError{Op: "connect", Err: m.ctx.Err()}
	}
}

// Publish enqueues one 16kHz mono PCM16 frame for the local track. It never
// blocks: when the encoder falls behind the frame is dropped, which the
// receiver conceals far better than a stall would.
func (m *Manager) Publish(pcm []byte) {
	m.mu.Lock()
	muted, closed := m.muted, m.closed
	m.mu.Unlock()
	if muted || closed {
		return
	}
	select {
	case m.publishCh <- pcm:
	default:
		m.logger.Warnw("publish queue full, dropping audio frame", "bytes", len(pcm))
	}
}

// SetMuted toggles the local track's mute flag. A warning is logged when no
// track is published yet; the call is a no-op in that case.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localTrack == nil {
		m.logger.Warnw("SetMuted called with no published track", "muted", muted)
		return
	}
	m.muted = muted
}

// Muted reports the local track's mute flag.
func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

// IsConnected reports whether the peer connection is established.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && !m.closed
}

// Disconnect stops the local track, leaves the room and releases all
// subscriptions. Safe to call at any time, any number of times.
func (m *Manager) Disconnect() {
	m.teardown(DisconnectReasonNormal)
}

func (m *Manager) teardown(reason DisconnectReason) {
	m.disconnectOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.connected = false
		pc, signal := m.pc, m.signal
		m.mu.Unlock()

		m.cancel()

		if signal != nil {
			_ = m.writeSignal(signalMessage{Type: "bye"})
			_ = signal.Close()
		}
		if pc != nil {
			_ = pc.Close()
		}

		m.logger.Infow("room disconnected", "reason", string(reason))
		if m.callbacks.OnDisconnected != nil {
			m.callbacks.OnDisconnected(reason)
		}
	})
}

// =============================================================================
// Peer connection setup
// =============================================================================

func (m *Manager) newPeerConnection() (*pionwebrtc.PeerConnection, *pionwebrtc.TrackLocalStaticSample, error) {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   OpusSampleRate,
			Channels:    OpusChannels,
			SDPFmtpLine: OpusSDPFmtpLine,
		},
		PayloadType: OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return nil, nil, fmt.Errorf("register opus codec: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, nil, fmt.Errorf("register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, 0, len(m.config.ICEServers))
	for _, s := range m.config.ICEServers {
		iceServers = append(iceServers, pionwebrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	policy := pionwebrtc.ICETransportPolicyAll
	if m.config.ICETransportPolicy == "relay" {
		policy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pionwebrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := pionwebrtc.NewTrackLocalStaticSample(pionwebrtc.RTPCodecCapability{
		MimeType:  pionwebrtc.MimeTypeOpus,
		ClockRate: OpusSampleRate,
		Channels:  OpusChannels,
	}, "audio", "microphone")
	if err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("new local track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return nil, nil, fmt.Errorf("add local track: %w", err)
	}

	return pc, track, nil
}

// =============================================================================
// Room signaling socket
// =============================================================================

func (m *Manager) writeSignal(msg signalMessage) error {
	m.signalMu.Lock()
	defer m.signalMu.Unlock()
	m.mu.Lock()
	conn := m.signal
	m.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("signaling socket not connected")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (m *Manager) readSignalLoop() {
	for {
		_, data, err := m.signal.ReadMessage()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if !closed {
				m.teardown(DisconnectReasonServerClosed)
			}
			return
		}

		var msg signalMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.logger.Warnw("malformed room signal", "error", err)
			continue
		}

		switch msg.Type {
		case "answer":
			if err := m.pc.SetRemoteDescription(pionwebrtc.SessionDescription{
				Type: pionwebrtc.SDPTypeAnswer,
				SDP:  msg.SDP,
			}); err != nil {
				m.surfaceError(&internal_type.TransportError{Op: "set remote description", Err: err})
			}
		case "candidate":
			if msg.Candidate == nil {
				continue
			}
			if err := m.pc.AddICECandidate(*msg.Candidate); err != nil {
				m.logger.Warnw("failed to add remote ICE candidate", "error", err)
			}
		case "error":
			m.surfaceError(&internal_type.TransportError{Op: "room server", Err: fmt.Errorf("%s", msg.Error)})
		case "bye":
			m.teardown(DisconnectReasonServerClosed)
			return
		default:
			m.logger.Debugw("ignoring room signal", "type", msg.Type)
		}
	}
}

func (m *Manager) surfaceError(err error) {
	m.logger.Errorw("transport error", "error", err)
	if m.callbacks.OnError != nil {
		m.callbacks.OnError(err)
	}
}

// =============================================================================
// Local track publishing
// =============================================================================

// runPublisher drains the publish queue, upsamples 16kHz PCM to the Opus
// track rate, encodes complete 20ms frames and writes them to the local
// track paced at real time so TTS-style bursts do not flood the receiver.
func (m *Manager) runPublisher() {
	encoder, err := opus.NewEncoder(OpusSampleRate, 1, opus.AppVoIP)
	if err != nil {
		m.surfaceError(&internal_type.TransportError{Op: "opus encoder", Err: err})
		return
	}

	pending := make([]int16, 0, OpusFrameSamples*4)
	encodeBuf := make([]byte, opusEncodeBufferSize)

	ticker := time.NewTicker(OpusFrameDuration * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case pcm := <-m.publishCh:
			pending = append(pending, upsampleToTrackRate(pcm)...)
		case <-ticker.C:
			if len(pending) < OpusFrameSamples {
				continue
			}
			frame := pending[:OpusFrameSamples]
			n, err := encoder.Encode(frame, encodeBuf)
			if err != nil {
				m.logger.Warnw("opus encode failed", "error", err)
				pending = pending[OpusFrameSamples:]
				continue
			}
			pending = pending[OpusFrameSamples:]

			sample := media.Sample{
				Data:     append([]byte(nil), encodeBuf[:n]...),
				Duration: OpusFrameDuration * time.Millisecond,
			}
			if err := m.localTrack.WriteSample(sample); err != nil {
				m.logger.Warnw("failed to write track sample", "error", err)
			}
		}
	}
}

// upsampleToTrackRate converts 16kHz mono PCM16 bytes to 48kHz samples by
// linear interpolation (exact 1:3 ratio).
func upsampleToTrackRate(pcm []byte) []int16 {
	in := internal_audio.BytesToFloat32(pcm)
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, 0, len(in)*3)
	for i, s := range in {
		next := s
		if i+1 < len(in) {
			next = in[i+1]
		}
		step := (next - s) / 3
		out = append(out,
			quantizeTrackSample(s),
			quantizeTrackSample(s+step),
			quantizeTrackSample(s+2*step),
		)
	}
	return out
}

func quantizeTrackSample(s float32) int16 {
	if s > 1.0 {
		s = 1.0
	} else if s < -1.0 {
		s = -1.0
	}
	return int16(s * 32767)
}

// =============================================================================
// Remote track handling
// =============================================================================

// handleRemoteTrack decodes a subscribed Opus track to 16kHz mono PCM16
// frames and hands the frame stream to the OnTrackReceived callback.
func (m *Manager) handleRemoteTrack(remote *pionwebrtc.TrackRemote) {
	if remote.Kind() != pionwebrtc.RTPCodecTypeAudio {
		m.logger.Debugw("ignoring non-audio remote track", "kind", remote.Kind().String())
		return
	}

	frames := make(chan []byte, RemoteFrameQueueSize)
	track := &RemoteTrack{
		ID:       remote.ID(),
		StreamID: remote.StreamID(),
		Frames:   frames,
	}
	m.logger.Infow("remote track subscribed", "id", track.ID, "stream", track.StreamID)
	if m.callbacks.OnTrackReceived != nil {
		m.callbacks.OnTrackReceived(track)
	}

	go m.readRemoteAudio(remote, frames)
}

func (m *Manager) readRemoteAudio(remote *pionwebrtc.TrackRemote, frames chan<- []byte) {
	defer close(frames)

	decoder, err := opus.NewDecoder(OpusSampleRate, 1)
	if err != nil {
		m.surfaceError(&internal_type.TransportError{Op: "opus decoder", Err: err})
		return
	}

	pcm48 := make([]int16, OpusFrameSamples*3)
	consecutiveErrors := 0

	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		var pkt *rtp.Packet
		pkt, _, err = remote.ReadRTP()
		if err != nil {
			consecutiveErrors++
			if consecutiveErrors >= MaxConsecutiveErrors {
				m.logger.Warnw("remote track read giving up", "errors", consecutiveErrors)
				return
			}
			continue
		}
		consecutiveErrors = 0
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := decoder.Decode(pkt.Payload, pcm48)
		if err != nil {
			m.logger.Debugw("opus decode failed", "error", err)
			continue
		}

		// Downsample 48kHz → pipeline rate with the box-filter resampler.
		floats := make([]float32, n)
		for i := 0; i < n; i++ {
			floats[i] = float32(pcm48[i]) / 32768.0
		}
		pcm16k := internal_audio.Resample(floats, OpusSampleRate,
			internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate)

		select {
		case frames <- internal_audio.Int16ToBytes(pcm16k):
		default:
			// Receiver is slow; dropping keeps the decoder real-time.
		}
	}
}

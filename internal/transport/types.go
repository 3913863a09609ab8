// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transport

// DisconnectReason describes why the room connection was torn down.
type DisconnectReason string

const (
	DisconnectReasonNormal           DisconnectReason = "normal"            // local Disconnect call
	DisconnectReasonConnectionFailed DisconnectReason = "connection_failed" // ICE/DTLS failure after retries exhausted
	DisconnectReasonServerClosed     DisconnectReason = "server_closed"     // room server closed the signaling socket
	DisconnectReasonContextCancelled DisconnectReason = "context_cancelled" // parent context cancelled
)

// Opus audio constants (WebRTC standard: 48kHz)
const (
	OpusSampleRate    = 48000
	OpusFrameDuration = 20  // milliseconds
	OpusFrameSamples  = 960 // 20ms of mono samples at 48kHz
	OpusChannels      = 2   // Opus RTP always signals 2 encoding channels (opus/48000/2) per RFC 7587, even for mono voice
	OpusPayloadType   = 111 // Standard dynamic payload type for Opus
	OpusSDPFmtpLine   = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"
)

const (
	// RemoteFrameQueueSize buffers inbound decoded PCM frames (~10s of 20ms frames).
	RemoteFrameQueueSize = 500
	// PublishQueueSize buffers outbound PCM frames awaiting opus encode (~10s).
	PublishQueueSize = 500
	// MaxConsecutiveErrors bounds RTP read errors before the reader stops.
	MaxConsecutiveErrors = 50
)

// Config holds WebRTC configuration
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
}

// ICEServer represents a STUN/TURN server
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns default WebRTC configuration
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
	}
}

// Callbacks is the observer set a caller registers before Connect. Side
// effects of the transport are observable only through these.
type Callbacks struct {
	OnConnected     func()
	OnDisconnected  func(reason DisconnectReason)
	OnError         func(err error)
	OnTrackReceived func(track *RemoteTrack)
}

// RemoteTrack is a subscribed participant audio track, decoded to PCM16
// frames at the pipeline rate.
type RemoteTrack struct {
	ID       string
	StreamID string
	// Frames delivers decoded 16kHz mono PCM16 frames. Closed when the
	// remote track ends or the transport disconnects.
	Frames <-chan []byte
}

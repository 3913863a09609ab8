// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_client

import (
	"sync"
	"time"

	internal_audio "github.com/rapidaai/voice-engine/internal/audio"
	internal_protocol "github.com/rapidaai/voice-engine/internal/protocol"
	internal_signaling "github.com/rapidaai/voice-engine/internal/signaling"
	internal_transport "github.com/rapidaai/voice-engine/internal/transport"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

const (
	// captureQueueSize bounds raw device buffers between the audio callback
	// and the consumer. At the usual 10ms device buffer this is ~640ms.
	captureQueueSize = 64

	// chunkDuration is how much audio one audio_chunk carries.
	chunkDuration = 100 * time.Millisecond
)

// capturePump moves microphone audio from the device callback to the wire.
// The device callback only enqueues; a consumer goroutine accumulates,
// resamples to the pipeline rate and ships ~100ms chunks on the signaling
// channel (and into the room when one is connected).
type capturePump struct {
	logger    commons.Logger
	source    internal_type.CaptureSource
	channel   *internal_signaling.Channel
	transport *internal_transport.Manager // may be nil (signaling-only mode)

	queue  chan []float32
	stopCh chan struct{}

	mu      sync.Mutex
	muted   bool
	started bool
	stopped bool
}

func newCapturePump(
	logger commons.Logger,
	source internal_type.CaptureSource,
	channel *internal_signaling.Channel,
	transport *internal_transport.Manager,
) *capturePump {
	return &capturePump{
		logger:    logger,
		source:    source,
		channel:   channel,
		transport: transport,
		queue:     make(chan []float32, captureQueueSize),
		stopCh:    make(chan struct{}),
	}
}

func (p *capturePump) start() error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	if err := p.source.Start(p.onBuffer); err != nil {
		return err
	}
	go p.run()
	return nil
}

// onBuffer runs on the audio thread. It copies the buffer and enqueues it;
// on overflow the oldest pending buffer is dropped so the callback never
// blocks and the stream stays near real time.
func (p *capturePump) onBuffer(samples []float32) {
	buf := make([]float32, len(samples))
	copy(buf, samples)

	select {
	case p.queue <- buf:
		return
	default:
	}
	select {
	case <-p.queue:
	default:
	}
	select {
	case p.queue <- buf:
	default:
	}
}

func (p *capturePump) setMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	p.mu.Unlock()
}

func (p *capturePump) isMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// stop halts the device and the consumer. Idempotent.
func (p *capturePump) stop() {
	p.mu.Lock()
	if p.stopped || !p.started {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	if err := p.source.Stop(); err != nil {
		p.logger.Warnw("capture source stop failed", "error", err)
	}
	close(p.stopCh)
}

func (p *capturePump) run() {
	deviceRate := p.source.SampleRate()
	chunkSamples := int(chunkDuration.Seconds() * float64(deviceRate))
	pending := make([]float32, 0, chunkSamples*2)

	for {
		select {
		case <-p.stopCh:
			return
		case buf := <-p.queue:
			pending = append(pending, buf...)
			for len(pending) >= chunkSamples {
				p.ship(pending[:chunkSamples], deviceRate)
				pending = pending[chunkSamples:]
			}
		}
	}
}

func (p *capturePump) ship(chunk []float32, deviceRate int) {
	if p.isMuted() {
		return
	}

	pcm := internal_audio.Resample(chunk, deviceRate,
		internal_audio.RAPIDA_INTERNAL_AUDIO_CONFIG.SampleRate)
	raw := internal_audio.Int16ToBytes(pcm)

	if err := p.channel.Send(internal_protocol.NewAudioChunk(internal_audio.Encode(raw))); err != nil {
		p.logger.Warnw("failed to send audio chunk", "error", err)
		return
	}
	if p.transport != nil {
		p.transport.Publish(raw)
	}
}

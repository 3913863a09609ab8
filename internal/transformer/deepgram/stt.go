// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_transformer_deepgram

import (
	"context"
	"fmt"
	"sync"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	internal_transformer "github.com/rapidaai/voice-engine/internal/transformer"
	internal_type "github.com/rapidaai/voice-engine/internal/type"
	"github.com/rapidaai/voice-engine/pkg/commons"
)

// liveClient is the slice of the Deepgram websocket client we use.
type liveClient interface {
	Connect() bool
	WriteBinary([]byte) error
	Stop()
}

// speechToText streams PCM16 audio to Deepgram live transcription and
// delivers interim and final results through the Start callback.
type speechToText struct {
	logger commons.Logger
	option *deepgramOption

	mu       sync.Mutex
	client   liveClient
	onResult func(internal_transformer.RecognitionResult)
	closed   bool
}

// NewSpeechToText creates a live transcription transformer. The connection is
// opened by Start.
func NewSpeechToText(logger commons.Logger, option *deepgramOption) internal_transformer.SpeechToTextTransformer {
	return &speechToText{logger: logger, option: option}
}

func (s *speechToText) Start(ctx context.Context, onResult func(internal_transformer.RecognitionResult)) error {
	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		return &internal_type.RecognitionError{Provider: "deepgram", Err: fmt.Errorf("already started")}
	}
	s.onResult = onResult
	s.mu.Unlock()

	client, err := listen.NewWebSocketUsingCallback(
		ctx,
		s.option.GetKey(),
		&interfaces.ClientOptions{},
		s.option.SpeechToTextOptions(),
		&liveCallback{stt: s},
	)
	if err != nil {
		return &internal_type.RecognitionError{Provider: "deepgram", Err: err}
	}
	if !client.Connect() {
		return &internal_type.RecognitionError{Provider: "deepgram", Err: fmt.Errorf("websocket connect failed")}
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.logger.Infow("deepgram live transcription connected",
		"model", s.option.SpeechToTextOptions().Model)
	return nil
}

func (s *speechToText) Write(audio []byte) error {
	s.mu.Lock()
	client, closed := s.client, s.closed
	s.mu.Unlock()
	if client == nil || closed {
		return &internal_type.RecognitionError{Provider: "deepgram", Err: fmt.Errorf("stream not started")}
	}
	if err := client.WriteBinary(audio); err != nil {
		return &internal_type.RecognitionError{Provider: "deepgram", Err: err}
	}
	return nil
}

func (s *speechToText) Close() error {
	s.mu.Lock()
	client := s.client
	s.closed = true
	s.mu.Unlock()
	if client != nil {
		client.Stop()
	}
	return nil
}

func (s *speechToText) deliver(result internal_transformer.RecognitionResult) {
	s.mu.Lock()
	onResult, closed := s.onResult, s.closed
	s.mu.Unlock()
	if onResult != nil && !closed {
		onResult(result)
	}
}

// liveCallback adapts Deepgram's event callbacks onto the transformer result
// stream. Only transcript messages matter; the rest is logged at debug.
type liveCallback struct {
	stt *speechToText
}

func (c *liveCallback) Open(or *msginterfaces.OpenResponse) error {
	c.stt.logger.Debugw("deepgram stream open")
	return nil
}

func (c *liveCallback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	alt := mr.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return nil
	}
	c.stt.deliver(internal_transformer.RecognitionResult{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		IsFinal:    mr.IsFinal,
	})
	return nil
}

func (c *liveCallback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.stt.logger.Debugw("deepgram metadata", "requestId", md.RequestID)
	return nil
}

func (c *liveCallback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error {
	return nil
}

func (c *liveCallback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error {
	return nil
}

func (c *liveCallback) Close(cr *msginterfaces.CloseResponse) error {
	c.stt.logger.Debugw("deepgram stream closed")
	return nil
}

func (c *liveCallback) Error(er *msginterfaces.ErrorResponse) error {
	c.stt.logger.Errorw("deepgram stream error", "type", er.ErrCode, "message", er.ErrMsg)
	return nil
}

func (c *liveCallback) UnhandledEvent(byData []byte) error {
	c.stt.logger.Debugw("deepgram unhandled event", "bytes", len(byData))
	return nil
}

// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_type

import (
	"errors"
	"fmt"
)

// =============================================================================
// Pipeline error taxonomy
// =============================================================================
//
// Fatal errors (transport, signaling) end the call: local capture and playback
// are torn down before the error is surfaced. Recoverable errors (recognition,
// synthesis, generation) are reported over the signaling channel and the
// session stays active so the caller can retry the turn. Protocol errors are
// logged and the offending message dropped.

// TransportError is a room join / track publish failure. Fatal to the call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SignalingError is a signaling channel open/send failure. Fatal to the call.
type SignalingError struct {
	Op  string
	Err error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling: %s: %v", e.Op, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }

// RecognitionError is an STT failure during a turn. Recoverable.
type RecognitionError struct {
	Provider string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition (%s): %v", e.Provider, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// SynthesisError is a TTS failure during a turn. Recoverable.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis (%s): %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// GenerationError is a language-model failure during a turn. Recoverable.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or out-of-sequence signaling message. Logged
// and ignored; does not close the session.
type ProtocolError struct {
	Type string
	Err  error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol (%s): %v", e.Type, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsFatal reports whether err must tear the call down. Only transport and
// signaling failures are fatal; everything else is retried at turn level.
func IsFatal(err error) bool {
	var te *TransportError
	var se *SignalingError
	return errors.As(err, &te) || errors.As(err, &se)
}

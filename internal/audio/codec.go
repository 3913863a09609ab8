// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/rapidaai/voice-engine/pkg/utils"
)

// =============================================================================
// Resampling
// =============================================================================

// Resample converts float samples in [-1, 1] from fromRate to toRate and
// quantizes to int16.
//
// Downsampling uses a box filter: each destination sample is the average of
// the source samples falling inside its time window, which suppresses the
// aliasing a naive decimator would introduce. Upsampling and the equal-rate
// case quantize sample-for-sample without averaging. Input values are clamped
// to [-1, 1] before quantization and rounded half away from zero, so the
// output can never overflow the int16 range.
func Resample(samples []float32, fromRate, toRate int) []int16 {
	if len(samples) == 0 || fromRate <= 0 || toRate <= 0 {
		return []int16{}
	}

	if fromRate <= toRate {
		out := make([]int16, len(samples))
		for i, s := range samples {
			out[i] = quantize(s)
		}
		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Round(float64(len(samples)) / ratio))
	out := make([]int16, 0, outLen)

	for i := 0; i < outLen; i++ {
		start := int(float64(i) * ratio)
		end := int(float64(i+1) * ratio)
		if end > len(samples) {
			end = len(samples)
		}
		if start >= end {
			start = end - 1
		}
		out = append(out, quantize(utils.AverageFloat32(samples[start:end])))
	}
	return out
}

// quantize clamps s to [-1, 1] and converts to int16, rounding half away
// from zero. NaN maps to zero.
func quantize(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	clamped := utils.ClampFloat32(s, -1.0, 1.0)
	return int16(math.Round(float64(clamped) * math.MaxInt16))
}

// =============================================================================
// Wire codec
// =============================================================================

// Encode wraps raw PCM bytes in the transport-safe base64 encoding used by
// audio_chunk / audio_response payloads.
func Encode(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// Decode reverses Encode. Decode(Encode(x)) == x for every byte buffer,
// any length including zero.
func Decode(payload string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(payload)
}

// =============================================================================
// PCM conversions
// =============================================================================

// Int16ToBytes serializes samples as little-endian PCM16.
func Int16ToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// BytesToFloat32 interprets little-endian PCM16 as float samples in [-1, 1).
// A trailing odd byte is ignored.
func BytesToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / (math.MaxInt16 + 1)
	}
	return out
}

// DurationMs returns the playback duration of PCM bytes under the given
// config, in milliseconds.
func DurationMs(pcm []byte, cfg Config) float64 {
	bps := cfg.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(len(pcm)) / float64(bps) * 1000
}

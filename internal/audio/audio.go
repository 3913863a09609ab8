// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_audio

// Config describes a PCM audio shape flowing through the pipeline.
type Config struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Encoding      string
}

// RAPIDA_INTERNAL_AUDIO_CONFIG is the fixed session rate: every frame on the
// signaling channel is mono LINEAR16 at 16 kHz. Resampling happens at the
// capture edge; no resampling occurs after transport.
var RAPIDA_INTERNAL_AUDIO_CONFIG = Config{
	SampleRate:    16000,
	Channels:      1,
	BitsPerSample: 16,
	Encoding:      "linear16",
}

// BytesPerSecond returns the PCM byte rate of the config.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

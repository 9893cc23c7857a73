// Package pcm converts between float audio samples and the wire-level
// little-endian signed 16-bit PCM encoding used by the live session.
package pcm

import (
	"encoding/base64"
	"errors"
	"math"
)

// Wire sample rates for the live session.
const (
	InputRate  = 16000 // microphone audio sent to the model
	OutputRate = 24000 // audio returned by the model
)

// ErrInvalidAudioData is returned when PCM bytes cannot be decoded
// (odd length, or sample count not a multiple of the channel count).
var ErrInvalidAudioData = errors.New("pcm: invalid audio data")

// Buffer holds decoded audio as per-channel float32 samples in [-1, 1].
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// FrameCount returns the number of sample frames per channel.
func (b *Buffer) FrameCount() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback duration in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.FrameCount()) / float64(b.SampleRate)
}

// Mono returns the first channel, or nil for an empty buffer.
func (b *Buffer) Mono() []float32 {
	if len(b.Channels) == 0 {
		return nil
	}
	return b.Channels[0]
}

// Encode converts float samples in [-1, 1] to little-endian PCM16 bytes.
// Values are clamped; negative values scale by 32768 and non-negative by
// 32767 so that +1.0 does not overflow.
func Encode(samples []float32) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}

		data[i*2] = byte(v)
		data[i*2+1] = byte(v >> 8)
	}
	return data
}

// EncodeBase64 encodes float samples as base64 PCM16 for text-safe transports.
func EncodeBase64(samples []float32) string {
	return base64.StdEncoding.EncodeToString(Encode(samples))
}

// Decode converts little-endian PCM16 bytes into a Buffer, de-interleaving
// into per-channel float32 sample arrays. Returns ErrInvalidAudioData for
// odd-length input or a sample count that is not a multiple of channels.
func Decode(data []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 || len(data)%2 != 0 {
		return nil, ErrInvalidAudioData
	}

	total := len(data) / 2
	if total%channels != 0 {
		return nil, ErrInvalidAudioData
	}

	frames := total / channels
	buf := &Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}

	for ch := 0; ch < channels; ch++ {
		buf.Channels[ch] = make([]float32, frames)
	}

	for i := 0; i < total; i++ {
		v := int16(data[i*2]) | int16(data[i*2+1])<<8
		buf.Channels[i%channels][i/channels] = float32(v) / 32768.0
	}

	return buf, nil
}

// DecodeBase64 decodes base64 PCM16 into a Buffer.
func DecodeBase64(encoded string, sampleRate, channels int) (*Buffer, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidAudioData
	}
	return Decode(data, sampleRate, channels)
}

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}
	return data
}

// Resample converts int16 audio from one sample rate to another using
// linear interpolation. Suitable for speech audio.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}
	return result
}

// RMS returns the root-mean-square amplitude of a block of float samples,
// used for microphone level metering. Returns a value in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

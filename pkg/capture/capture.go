// Package capture acquires microphone audio and periodic screen-share frames
// for the live session.
//
// Audio sources deliver fixed-cadence 16 kHz mono PCM16 chunks; visual
// sources deliver downscaled JPEG frames on a fixed timer while sharing is
// active. Stopping either path releases the underlying device and is
// idempotent.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
)

// Errors returned by capture sources.
var (
	// ErrPermissionDenied indicates the microphone or display device
	// could not be opened.
	ErrPermissionDenied = errors.New("capture: device access denied")

	// ErrClosed indicates the source has been closed and cannot restart.
	ErrClosed = errors.New("capture: source closed")
)

// Chunk is one fixed-cadence block of captured audio.
type Chunk struct {
	// Samples contains interleaved PCM16 samples.
	Samples []int16

	// SampleRate is the sample rate of this chunk.
	SampleRate int

	// Channels is the number of channels in this chunk.
	Channels int
}

// Bytes returns the chunk as little-endian PCM16 bytes.
func (c *Chunk) Bytes() []byte {
	return pcm.SamplesToBytes(c.Samples)
}

// Duration returns the chunk duration.
func (c *Chunk) Duration() time.Duration {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	frames := len(c.Samples) / c.Channels
	return time.Duration(float64(frames) / float64(c.SampleRate) * float64(time.Second))
}

// Level returns the RMS amplitude of the chunk in [0, 1].
func (c *Chunk) Level() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	floats := make([]float32, len(c.Samples))
	for i, s := range c.Samples {
		floats[i] = float32(s) / 32768.0
	}
	return pcm.RMS(floats)
}

// Config holds audio capture configuration.
type Config struct {
	// SampleRate is the capture rate in Hz. Default 16000 (live session input).
	SampleRate int

	// Channels is the channel count. Default 1 (mono).
	Channels int

	// BlockDuration is the size of each delivered chunk. Default 20ms.
	BlockDuration time.Duration
}

// DefaultConfig returns the capture defaults for the live session.
func DefaultConfig() Config {
	return Config{
		SampleRate:    pcm.InputRate,
		Channels:      1,
		BlockDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("block_duration must be positive, got %v", c.BlockDuration)
	}
	return nil
}

// BlockSize returns the number of sample frames per chunk.
func (c *Config) BlockSize() int {
	return int(float64(c.SampleRate) * c.BlockDuration.Seconds())
}

// Source captures audio from a microphone or other input.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts capture. Safe to call multiple times.
	Stop() error

	// Stream returns a channel of captured chunks.
	// The channel is closed when the source is stopped.
	Stream() <-chan Chunk

	// Config returns the capture configuration.
	Config() Config

	// Name returns the backend name (e.g. "webrtc", "mock").
	Name() string

	// Close releases all resources. The source cannot be restarted.
	io.Closer
}

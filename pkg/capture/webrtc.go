package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pion/webrtc/v3"
	opus "gopkg.in/hraban/opus.v2"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
)

const (
	// Opus on WebRTC is 48kHz; frames are at most 60ms.
	opusRate     = 48000
	opusMaxFrame = opusRate * 60 / 1000
)

// TrackSource adapts a remote WebRTC audio track into a capture Source.
// Opus payloads are decoded to 48kHz mono PCM and resampled down to the
// configured capture rate.
type TrackSource struct {
	track   *webrtc.TrackRemote
	config  Config
	decoder *opus.Decoder

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	stream  chan Chunk
}

// NewTrackSource wraps a remote track. The track must carry Opus audio.
func NewTrackSource(track *webrtc.TrackRemote, config Config) (*TrackSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return nil, fmt.Errorf("capture: track kind %s is not audio", track.Kind())
	}
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		return nil, fmt.Errorf("capture: unsupported codec %s", track.Codec().MimeType)
	}

	decoder, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		return nil, fmt.Errorf("capture: opus decoder: %w", err)
	}

	return &TrackSource{
		track:   track,
		config:  config,
		decoder: decoder,
	}, nil
}

// Start begins reading RTP packets from the track.
func (t *TrackSource) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.stream = make(chan Chunk, 32)
	t.running = true

	go t.readLoop(ctx)
	return nil
}

// Stop halts reading. Safe to call multiple times.
func (t *TrackSource) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	t.running = false
	t.cancel()
	return nil
}

// Stream returns the chunk channel.
func (t *TrackSource) Stream() <-chan Chunk {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream
}

// Config returns the capture configuration.
func (t *TrackSource) Config() Config { return t.config }

// Name returns "webrtc".
func (t *TrackSource) Name() string { return "webrtc" }

// Close stops the source permanently.
func (t *TrackSource) Close() error {
	if err := t.Stop(); err != nil {
		return err
	}
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *TrackSource) readLoop(ctx context.Context) {
	defer close(t.stream)

	frameBuf := make([]int16, opusMaxFrame)
	for {
		if ctx.Err() != nil {
			return
		}

		packet, _, err := t.track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn("rtp read failed", "error", err)
			}
			return
		}
		if len(packet.Payload) == 0 {
			continue
		}

		n, err := t.decoder.Decode(packet.Payload, frameBuf)
		if err != nil {
			log.Debug("opus decode failed", "error", err)
			continue
		}

		samples := pcm.Resample(frameBuf[:n], opusRate, t.config.SampleRate)
		out := make([]int16, len(samples))
		copy(out, samples)

		chunk := Chunk{
			Samples:    out,
			SampleRate: t.config.SampleRate,
			Channels:   1,
		}
		select {
		case t.stream <- chunk:
		case <-ctx.Done():
			return
		default:
			// Drop when the consumer falls behind.
		}
	}
}

package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/nechamalaber-rgb/jewishdata.com/internal/log"
)

// MicPump drains an audio source and hands each chunk to a frame callback
// as wire-format PCM16 bytes. It tracks a smoothed input level for UI
// metering.
type MicPump struct {
	source  Source
	onFrame func(pcm16 []byte)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	// level holds the smoothed RMS as math.Float64bits.
	level atomic.Uint64
}

// NewMicPump wraps a source with a frame callback. The callback receives
// little-endian PCM16 bytes and must not retain the slice.
func NewMicPump(source Source, onFrame func(pcm16 []byte)) *MicPump {
	return &MicPump{
		source:  source,
		onFrame: onFrame,
	}
}

// Start opens the source and begins pumping frames. Returns an error if
// the pump is already running or the source cannot start.
func (p *MicPump) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("capture: mic pump already running")
	}

	if err := p.source.Start(ctx); err != nil {
		return fmt.Errorf("capture: source start: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	log.Debug("mic pump started", "source", p.source.Name())
	go p.pump(ctx)
	return nil
}

// Stop halts pumping and releases the source. Safe to call multiple times.
func (p *MicPump) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	if err := p.source.Stop(); err != nil {
		log.Warn("mic source stop failed", "error", err)
	}
	<-done
	p.level.Store(0)
	log.Debug("mic pump stopped", "source", p.source.Name())
}

// Running reports whether the pump is active.
func (p *MicPump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Level returns the smoothed input level in [0, 1].
func (p *MicPump) Level() float64 {
	return math.Float64frombits(p.level.Load())
}

func (p *MicPump) pump(ctx context.Context) {
	defer close(p.done)

	stream := p.source.Stream()
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-stream:
			if !ok {
				return
			}
			p.updateLevel(chunk.Level())
			if p.onFrame != nil {
				p.onFrame(chunk.Bytes())
			}
		}
	}
}

// updateLevel applies exponential smoothing so the meter decays rather
// than flickering chunk to chunk.
func (p *MicPump) updateLevel(raw float64) {
	const alpha = 0.3
	prev := math.Float64frombits(p.level.Load())
	p.level.Store(math.Float64bits(prev + alpha*(raw-prev)))
}

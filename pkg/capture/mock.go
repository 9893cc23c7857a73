package capture

import (
	"context"
	"math"
	"sync"
	"time"
)

// MockSource generates audio at the configured cadence without touching
// hardware. By default it emits silence; WithSineWave makes it emit a
// test tone. Used in tests and the live-test command.
type MockSource struct {
	config Config

	sine     bool
	sineFreq float64
	phase    float64

	mu      sync.Mutex
	running bool
	closed  bool
	cancel  context.CancelFunc
	stream  chan Chunk
}

// MockOption configures a MockSource.
type MockOption func(*MockSource)

// WithSineWave makes the source emit a sine tone at the given frequency
// instead of silence.
func WithSineWave(freq float64) MockOption {
	return func(m *MockSource) {
		m.sine = true
		m.sineFreq = freq
	}
}

// NewMockSource creates a mock audio source with the given configuration.
func NewMockSource(config Config, opts ...MockOption) (*MockSource, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &MockSource{config: config}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins emitting chunks on a real-time ticker.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stream = make(chan Chunk, 16)
	m.running = true

	go m.generate(ctx)
	return nil
}

// Stop halts generation and closes the stream. Safe to call multiple times.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	m.cancel()
	return nil
}

// Stream returns the chunk channel.
func (m *MockSource) Stream() <-chan Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Config returns the capture configuration.
func (m *MockSource) Config() Config { return m.config }

// Name returns "mock".
func (m *MockSource) Name() string { return "mock" }

// Close stops the source permanently.
func (m *MockSource) Close() error {
	if err := m.Stop(); err != nil {
		return err
	}
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *MockSource) generate(ctx context.Context) {
	defer close(m.stream)

	ticker := time.NewTicker(m.config.BlockDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk := m.makeChunk()
			select {
			case m.stream <- chunk:
			case <-ctx.Done():
				return
			default:
				// Drop when the consumer falls behind.
			}
		}
	}
}

func (m *MockSource) makeChunk() Chunk {
	n := m.config.BlockSize() * m.config.Channels
	samples := make([]int16, n)

	if m.sine {
		step := 2 * math.Pi * m.sineFreq / float64(m.config.SampleRate)
		for i := 0; i < m.config.BlockSize(); i++ {
			v := int16(math.Sin(m.phase) * 8000)
			for ch := 0; ch < m.config.Channels; ch++ {
				samples[i*m.config.Channels+ch] = v
			}
			m.phase += step
		}
		if m.phase > 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}

	return Chunk{
		Samples:    samples,
		SampleRate: m.config.SampleRate,
		Channels:   m.config.Channels,
	}
}

package playback

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
)

// fakeClock is a manually advanced output clock.
type fakeClock struct {
	mu  sync.Mutex
	now float64
}

func (c *fakeClock) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d float64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// recordSink records Play/Stop calls.
type recordSink struct {
	mu      sync.Mutex
	played  []*Unit
	stopped []*Unit
}

func (s *recordSink) Play(u *Unit) {
	s.mu.Lock()
	s.played = append(s.played, u)
	s.mu.Unlock()
}

func (s *recordSink) Stop(u *Unit) {
	s.mu.Lock()
	s.stopped = append(s.stopped, u)
	s.mu.Unlock()
}

func (s *recordSink) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stopped)
}

func monoBuffer(frames, rate int) *pcm.Buffer {
	return &pcm.Buffer{
		Channels:   [][]float32{make([]float32, frames)},
		SampleRate: rate,
	}
}

func TestEnqueueBackToBack(t *testing.T) {
	clock := &fakeClock{now: 5.0}
	sched := NewScheduler(clock, &recordSink{})

	// Durations 1s, 0.5s, 0.25s at 24kHz.
	d1 := monoBuffer(24000, 24000)
	d2 := monoBuffer(12000, 24000)
	d3 := monoBuffer(6000, 24000)

	t0 := sched.Enqueue(d1)
	t1 := sched.Enqueue(d2)
	t2 := sched.Enqueue(d3)

	if t0 < 5.0 {
		t.Errorf("first unit scheduled before now: %f", t0)
	}
	if math.Abs(t1-(t0+1.0)) > 1e-9 {
		t.Errorf("second unit not contiguous: start %f, want %f", t1, t0+1.0)
	}
	if math.Abs(t2-(t1+0.5)) > 1e-9 {
		t.Errorf("third unit not contiguous: start %f, want %f", t2, t1+0.5)
	}
	if got := sched.Cursor(); math.Abs(got-(t2+0.25)) > 1e-9 {
		t.Errorf("cursor %f, want %f", got, t2+0.25)
	}
	if sched.ActiveCount() != 3 {
		t.Errorf("expected 3 active units, got %d", sched.ActiveCount())
	}
}

func TestEnqueueNeverBeforeNow(t *testing.T) {
	clock := &fakeClock{}
	sched := NewScheduler(clock, &recordSink{})

	sched.Enqueue(monoBuffer(2400, 24000)) // 0.1s, cursor = 0.1

	// Output clock has run past the queued audio.
	clock.advance(3.0)

	start := sched.Enqueue(monoBuffer(2400, 24000))
	if start < 3.0 {
		t.Errorf("unit scheduled at %f, before current clock time 3.0", start)
	}
}

func TestInterruptAll(t *testing.T) {
	clock := &fakeClock{now: 10.0}
	sink := &recordSink{}
	sched := NewScheduler(clock, sink)

	sched.Enqueue(monoBuffer(24000, 24000))
	sched.Enqueue(monoBuffer(24000, 24000))

	sched.InterruptAll()

	if sched.ActiveCount() != 0 {
		t.Errorf("expected empty active set after interrupt, got %d", sched.ActiveCount())
	}
	if sched.Cursor() != 0 {
		t.Errorf("expected cursor reset to 0, got %f", sched.Cursor())
	}

	// Next enqueue schedules relative to now, not the old cursor.
	start := sched.Enqueue(monoBuffer(2400, 24000))
	if math.Abs(start-10.0) > 1e-9 {
		t.Errorf("post-interrupt enqueue at %f, want 10.0", start)
	}
}

func TestInterruptMidPlayback(t *testing.T) {
	sink := &recordSink{}
	sched := NewScheduler(NewSystemClock(), sink)

	// Long unit starts immediately on the real clock.
	sched.Enqueue(monoBuffer(240000, 24000)) // 10s
	time.Sleep(50 * time.Millisecond)

	sched.InterruptAll()

	if sink.stopCount() != 1 {
		t.Errorf("expected 1 stopped unit, got %d", sink.stopCount())
	}
	if sched.ActiveCount() != 0 {
		t.Errorf("expected no active units after interrupt")
	}

	// A second interrupt with nothing queued is a no-op.
	sched.InterruptAll()
}

func TestNaturalCompletionRemovesUnit(t *testing.T) {
	sink := &recordSink{}
	sched := NewScheduler(NewSystemClock(), sink)

	sched.Enqueue(monoBuffer(240, 24000)) // 10ms

	deadline := time.Now().Add(2 * time.Second)
	for sched.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if sched.ActiveCount() != 0 {
		t.Errorf("unit not removed after natural completion")
	}
	if sink.stopCount() != 0 {
		t.Errorf("naturally completed unit should not be stopped")
	}
}

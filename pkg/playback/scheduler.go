// Package playback schedules decoded response audio for gapless sequential
// output with hard-stop support on barge-in.
package playback

import (
	"sync"
	"time"

	"github.com/nechamalaber-rgb/jewishdata.com/pkg/pcm"
)

// Clock reports the current output-clock time in seconds.
// The zero point is arbitrary but must be monotonic.
type Clock interface {
	Now() float64
}

// SystemClock is a monotonic Clock backed by the wall timer.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock whose zero point is now.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns seconds elapsed since the clock was created.
func (c *SystemClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

// Sink receives scheduled audio units when their start time arrives.
type Sink interface {
	// Play begins output of the unit's buffer.
	Play(u *Unit)

	// Stop hard-stops a unit that may be mid-playback.
	Stop(u *Unit)
}

// Unit is one scheduled block of response audio.
type Unit struct {
	Buffer  *pcm.Buffer
	StartAt float64 // output-clock seconds

	id         uint64
	started    bool
	startTimer *time.Timer
	doneTimer  *time.Timer
}

// Duration returns the unit's playback duration in seconds.
func (u *Unit) Duration() float64 {
	return u.Buffer.Duration()
}

// Scheduler queues decoded audio buffers back-to-back against a shared
// output clock. Enqueued units never overlap and never start before "now";
// InterruptAll clears everything and resets the cursor.
type Scheduler struct {
	clock Clock
	sink  Sink

	mu     sync.Mutex
	cursor float64
	nextID uint64
	active map[uint64]*Unit
}

// NewScheduler creates a scheduler over the given output clock and sink.
func NewScheduler(clock Clock, sink Sink) *Scheduler {
	return &Scheduler{
		clock:  clock,
		sink:   sink,
		active: make(map[uint64]*Unit),
	}
}

// Enqueue schedules a decoded buffer to play immediately after whatever is
// already queued, returning the scheduled start time on the output clock.
func (s *Scheduler) Enqueue(buf *pcm.Buffer) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	start := s.cursor
	if now > start {
		start = now
	}

	s.nextID++
	u := &Unit{
		Buffer:  buf,
		StartAt: start,
		id:      s.nextID,
	}
	s.active[u.id] = u
	s.cursor = start + u.Duration()

	delay := time.Duration((start - now) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	u.startTimer = time.AfterFunc(delay, func() { s.startUnit(u) })

	return start
}

// startUnit fires when a unit's scheduled start time arrives.
func (s *Scheduler) startUnit(u *Unit) {
	s.mu.Lock()
	if _, ok := s.active[u.id]; !ok {
		// Interrupted before it started.
		s.mu.Unlock()
		return
	}
	u.started = true
	u.doneTimer = time.AfterFunc(
		time.Duration(u.Duration()*float64(time.Second)),
		func() { s.finishUnit(u) },
	)
	s.mu.Unlock()

	s.sink.Play(u)
}

// finishUnit removes a unit from the active set on natural completion.
func (s *Scheduler) finishUnit(u *Unit) {
	s.mu.Lock()
	delete(s.active, u.id)
	s.mu.Unlock()
}

// InterruptAll immediately stops every active unit, clears the queue and
// resets the cursor so subsequent enqueues schedule relative to "now".
// Call this when the remote endpoint signals a user barge-in.
func (s *Scheduler) InterruptAll() {
	s.mu.Lock()
	stopped := make([]*Unit, 0, len(s.active))
	for id, u := range s.active {
		if u.startTimer != nil {
			u.startTimer.Stop()
		}
		if u.doneTimer != nil {
			u.doneTimer.Stop()
		}
		if u.started {
			stopped = append(stopped, u)
		}
		delete(s.active, id)
	}
	s.cursor = 0
	s.mu.Unlock()

	for _, u := range stopped {
		s.sink.Stop(u)
	}
}

// ActiveCount returns the number of scheduled-but-not-finished units.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor returns the next contiguous start time on the output clock.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

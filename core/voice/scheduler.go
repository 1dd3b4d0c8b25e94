package voice

import (
	"fmt"
	"sync"
	"time"

	"github.com/ultrachat/ultrachat-go/core/audio"
)

// Output is the playback surface the scheduler drives. ClockPosition reads
// the output device clock; ScheduleAt enqueues samples to begin at an
// absolute position on that clock.
type Output interface {
	ClockPosition() time.Duration
	ScheduleAt(frame audio.Frame, start time.Duration) error
}

// Scheduler lines response audio buffers up back to back on the device
// clock. A single cursor tracks where the previously scheduled buffer
// ends; each new buffer starts at that cursor or at the current clock
// position, whichever is later. Buffers therefore never overlap, and
// audio that arrives faster than it plays queues up seamlessly instead of
// cutting the previous buffer short.
//
// The cursor belongs to one session and is never shared.
type Scheduler struct {
	mu sync.Mutex

	output    Output
	primed    bool
	nextStart time.Duration
}

func NewScheduler(output Output) *Scheduler {
	return &Scheduler{output: output}
}

// Enqueue schedules a frame for playback and returns its start position.
// The first frame primes the cursor from the device clock, never from
// zero: a device that has been running for a while would otherwise get a
// start position far in its past.
func (s *Scheduler) Enqueue(frame audio.Frame) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.output.ClockPosition()
	if !s.primed {
		s.nextStart = now
		s.primed = true
	}

	start := s.nextStart
	if now > start {
		start = now
	}

	if err := s.output.ScheduleAt(frame, start); err != nil {
		return 0, fmt.Errorf("failed to schedule frame: %w", err)
	}

	s.nextStart = start + frame.Duration()
	return start, nil
}

// Horizon reports where the last scheduled frame ends on the device clock,
// or zero before the first frame.
func (s *Scheduler) Horizon() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Reset forgets the cursor so the next frame re-primes from the device
// clock. Used between responses and after barge-in, when continuity with
// the previous buffer no longer matters.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primed = false
	s.nextStart = 0
}

// Package scheduler runs the single-shot phase deadline timers of game sessions.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Stamp identifies the phase a timer was scheduled for. A session compares the
// stamp handed to its callback against its own current stamp and ignores
// callbacks for superseded phases.
type Stamp struct {
	Phase string
	Round int
}

func (s Stamp) String() string {
	return fmt.Sprintf("%s#%d", s.Phase, s.Round)
}

// FireFunc is invoked on the timer goroutine when a deadline passes.
type FireFunc func(Stamp)

type entry struct {
	timer    clockwork.Timer
	stamp    Stamp
	deadline time.Time
	done     chan struct{}
}

// Scheduler keeps at most one live timer per session.
type Scheduler struct {
	clock Clock

	mu      sync.Mutex
	timers  map[uuid.UUID]*entry
	stopped bool
}

func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		clock:  clock,
		timers: make(map[uuid.UUID]*entry),
	}
}

// Clock returns the clock timers are created from.
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Schedule arms a timer for sessionID that calls fire with stamp after d.
// Any timer already pending for the session is cancelled first.
func (s *Scheduler) Schedule(sessionID uuid.UUID, stamp Stamp, d time.Duration, fire FireFunc) time.Time {
	if d < 0 {
		d = 0
	}
	deadline := s.clock.Now().Add(d)
	e := &entry{
		timer:    s.clock.NewTimer(d),
		stamp:    stamp,
		deadline: deadline,
		done:     make(chan struct{}),
	}

	if !s.replaceTimer(sessionID, e) {
		stopAndDrainTimer(e.timer)
		log.Warn().Str("session_id", sessionID.String()).Str("stamp", stamp.String()).Msg("scheduler stopped - timer dropped")
		return deadline
	}

	go func(id uuid.UUID, e *entry) {
		select {
		case <-e.timer.Chan():
			if !s.removeTimer(id, e) {
				// replaced between firing and removal
				return
			}
			log.Debug().Str("session_id", id.String()).Str("stamp", e.stamp.String()).Msg("timer fired")
			fire(e.stamp)
		case <-e.done:
			stopAndDrainTimer(e.timer)
		}
	}(sessionID, e)

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("stamp", stamp.String()).
		Time("deadline", deadline).
		Dur("duration", d).
		Msg("scheduled one-shot timer")

	return deadline
}

// replaceTimer atomically swaps the session's timer, cancelling the old one.
func (s *Scheduler) replaceTimer(sessionID uuid.UUID, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	if existing, ok := s.timers[sessionID]; ok {
		close(existing.done)
		log.Debug().
			Str("session_id", sessionID.String()).
			Str("stale", existing.stamp.String()).
			Msg("replaced existing timer")
	}
	s.timers[sessionID] = e
	return true
}

// removeTimer drops e if it is still the session's current timer.
func (s *Scheduler) removeTimer(sessionID uuid.UUID, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[sessionID] != e {
		return false
	}
	delete(s.timers, sessionID)
	return true
}

// Cancel stops the session's pending timer, if any.
func (s *Scheduler) Cancel(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.timers[sessionID]; ok {
		close(e.done)
		delete(s.timers, sessionID)
		log.Debug().Str("session_id", sessionID.String()).Str("stamp", e.stamp.String()).Msg("cancelled timer")
	}
}

// Pending reports the stamp and deadline of the session's live timer.
func (s *Scheduler) Pending(sessionID uuid.UUID) (Stamp, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[sessionID]
	if !ok {
		return Stamp{}, time.Time{}, false
	}
	return e.stamp, e.deadline, true
}

// Len returns the number of live timers.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer and rejects further scheduling.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.timers {
		close(e.done)
		delete(s.timers, id)
	}
	s.stopped = true
	log.Info().Msg("scheduler stopped")
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

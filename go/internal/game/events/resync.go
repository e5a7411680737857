package events

import (
	"sync"

	"github.com/google/uuid"
)

// ResyncPayload tells clients that events were lost and the session state
// should be fetched again.
type ResyncPayload struct {
	Dropped int `json:"dropped"`
}

// LossTracker remembers which sessions lost events to a full queue so the
// queue owner can send them a RESYNC once it has caught up.
type LossTracker struct {
	mu   sync.Mutex
	lost map[uuid.UUID]int
	wake chan struct{}
}

func NewLossTracker() *LossTracker {
	return &LossTracker{
		lost: make(map[uuid.UUID]int),
		wake: make(chan struct{}, 1),
	}
}

// Mark records one dropped event for the session.
func (t *LossTracker) Mark(sessionID uuid.UUID) {
	t.mu.Lock()
	t.lost[sessionID]++
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Wake fires after Mark so an idle queue owner can flush.
func (t *LossTracker) Wake() <-chan struct{} {
	return t.wake
}

// Take returns the dropped counts per session and resets them.
func (t *LossTracker) Take() map[uuid.UUID]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lost) == 0 {
		return nil
	}
	out := t.lost
	t.lost = make(map[uuid.UUID]int)
	return out
}

// Resync is the event sent to a session after it lost dropped events.
func Resync(dropped int) Event {
	return Event{Type: TypeResync, Data: ResyncPayload{Dropped: dropped}}
}

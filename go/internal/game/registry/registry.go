// Package registry tracks the running game sessions of this process.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyStarted  = fmt.Errorf("%w: game already started for this lobby", session.ErrDuplicateAction)
	ErrSessionNotFound = fmt.Errorf("%w: no running game for this lobby", session.ErrNotFound)
)

// Builder constructs the session for a lobby. It runs only for the first
// caller of Create for that id.
type Builder func() (*session.Session, error)

// Registry maps lobby ids to running sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
	pending  map[uuid.UUID]struct{}
}

func New() *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*session.Session),
		pending:  make(map[uuid.UUID]struct{}),
	}
}

// Create registers the session built by build under id. Concurrent creates
// for one id produce a single session; the others get ErrAlreadyStarted.
// The entry is evicted once the session is done.
func (r *Registry) Create(id uuid.UUID, build Builder) (*session.Session, error) {
	if err := r.reserve(id); err != nil {
		return nil, err
	}

	s, err := build()
	if err != nil {
		r.release(id)
		return nil, fmt.Errorf("build session %s: %w", id, err)
	}
	if s.ID() != id {
		r.release(id)
		return nil, fmt.Errorf("build session %s: builder returned session %s", id, s.ID())
	}

	r.mu.Lock()
	delete(r.pending, id)
	r.sessions[id] = s
	r.mu.Unlock()

	go r.evictWhenDone(s)

	log.Info().Str("session_id", id.String()).Msg("session registered")
	return s, nil
}

func (r *Registry) reserve(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		if !finished(s) {
			return ErrAlreadyStarted
		}
		// ended but not evicted yet
		delete(r.sessions, id)
	}
	if _, ok := r.pending[id]; ok {
		return ErrAlreadyStarted
	}
	r.pending[id] = struct{}{}
	return nil
}

func finished(s *session.Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

func (r *Registry) release(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, id)
}

func (r *Registry) evictWhenDone(s *session.Session) {
	<-s.Done()
	if r.remove(s.ID(), s) {
		log.Info().Str("session_id", s.ID().String()).Msg("session evicted")
	}
}

// remove deletes id only while it still maps to s.
func (r *Registry) remove(id uuid.UUID, s *session.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[id]; !ok || current != s {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Lookup returns the running session for id.
func (r *Registry) Lookup(id uuid.UUID) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove aborts and drops the session for id.
func (r *Registry) Remove(id uuid.UUID, reason string) error {
	s, err := r.Lookup(id)
	if err != nil {
		return err
	}
	s.Abort(reason)
	r.remove(id, s)
	return nil
}

// List returns the running sessions ordered by id.
func (r *Registry) List() []*session.Session {
	r.mu.RLock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown aborts every running session.
func (r *Registry) Shutdown(reason string) {
	for _, s := range r.List() {
		s.Abort(reason)
	}
}

// IsAlreadyStarted reports whether err came from a duplicate Create.
func IsAlreadyStarted(err error) bool {
	return errors.Is(err, ErrAlreadyStarted)
}

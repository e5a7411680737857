// Package session implements the state machine of one lobby's game.
//
// Every mutating call, player action or timer callback, runs under the
// session mutex and completes before the next one starts. Phase deadlines are
// driven by a shared scheduler; each timer carries the phase+round stamp it
// was armed for so callbacks for superseded phases are ignored.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/cards"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/geo"
	"github.com/mcdev12/geoguess/go/internal/game/scheduler"
	"github.com/rs/zerolog/log"
)

const (
	maxForcedAdvances = 3
	recordTimeout     = 10 * time.Second
)

// Session is one running game.
type Session struct {
	id        uuid.UUID
	cfg       Config
	deps      Deps
	clock     scheduler.Clock
	createdAt time.Time

	mu       sync.Mutex
	roster   []Player
	slots    map[string]*PlayerSlot
	phase    Phase
	round    int
	started  bool
	target   geo.Point
	targets  []geo.Point
	rs       *roundState
	guesses  map[int]map[string]*Guess
	deadline time.Time
	forced   int
	aborted  bool
	finished bool
	reason   string
	winner   string
	done     chan struct{}
}

// New validates the roster and config and returns a session in WAITING.
func New(id uuid.UUID, roster []Player, cfg Config, deps Deps) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(roster) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRoster, len(roster))
	}
	if deps.Scheduler == nil || deps.Broadcaster == nil || deps.Targets == nil {
		return nil, fmt.Errorf("%w: scheduler, broadcaster and targets are required", ErrInvalidConfig)
	}
	if cfg.CardPhases && deps.Catalog == nil {
		return nil, fmt.Errorf("%w: card phases need a catalog", ErrInvalidConfig)
	}

	slots := make(map[string]*PlayerSlot, len(roster))
	snapshot := make([]Player, 0, len(roster))
	for i, p := range roster {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: empty player id", ErrInvalidRoster)
		}
		if _, dup := slots[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate player %s", ErrInvalidRoster, p.ID)
		}
		if p.Username == "" {
			p.Username = p.ID
		}
		slots[p.ID] = &PlayerSlot{Player: p, Order: i, Connected: true}
		snapshot = append(snapshot, p)
	}

	clock := deps.Scheduler.Clock()
	return &Session{
		id:        id,
		cfg:       cfg,
		deps:      deps,
		clock:     clock,
		createdAt: clock.Now(),
		roster:    snapshot,
		slots:     slots,
		phase:     PhaseWaiting,
		guesses:   make(map[int]map[string]*Guess),
		done:      make(chan struct{}),
	}, nil
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

// Done is closed once the game has ended or was aborted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start deals the opening hands and schedules the first round after the grace delay.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended() {
		return ErrSessionEnded
	}
	if s.started || s.phase != PhaseWaiting {
		return phaseError("start", s.phase)
	}
	s.started = true

	if s.cfg.CardPhases {
		for _, p := range s.roster {
			slot := s.slots[p.ID]
			slot.RoundCards = append(slot.RoundCards, s.deps.Catalog.AssignRoundCards(p.ID, s.cfg.RoundCardsPerPlayer)...)
			slot.ActionCards = append(slot.ActionCards, s.deps.Catalog.DealActionCard(p.ID))
		}
	}

	s.schedule(s.cfg.GraceDelay)

	players := make([]events.PlayerInfo, 0, len(s.roster))
	for _, p := range s.roster {
		players = append(players, events.PlayerInfo{PlayerID: p.ID, Username: p.Username})
	}
	s.publish(events.TypeGameStart, events.GameStartPayload{
		Players:          players,
		RoundCount:       s.cfg.RoundCount,
		RoundTimeSeconds: s.cfg.RoundTimeSeconds,
		CardPhases:       s.cfg.CardPhases,
		FirstRoundAt:     s.deadline,
	})
	if s.cfg.CardPhases {
		for _, p := range s.roster {
			s.sendHand(p.ID)
		}
	}

	log.Info().
		Str("session_id", s.id.String()).
		Int("players", len(s.roster)).
		Int("rounds", s.cfg.RoundCount).
		Bool("card_phases", s.cfg.CardPhases).
		Msg("game started")
	return nil
}

// Abort ends the game immediately and tells every player why.
func (s *Session) Abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortLocked(reason)
}

// Leave marks a player as disconnected. The game is aborted once nobody is left.
func (s *Session) Leave(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return nil
	}
	slot.Connected = false
	log.Info().Str("session_id", s.id.String()).Str("player_id", playerID).Msg("player left")

	for _, other := range s.slots {
		if other.Connected {
			if s.phase == PhaseActionCardPlay && !slot.Acted {
				s.markSkipped(slot, skipReasonOffline)
				s.transition("leave", s.maybeStartGuessing)
			}
			return nil
		}
	}
	s.abortLocked("all players disconnected")
	return nil
}

// Rejoin marks a player as connected again.
func (s *Session) Rejoin(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return ErrSessionEnded
	}
	slot.Connected = true
	s.sendHand(playerID)
	return nil
}

// Snapshot returns the current state without the secret target.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		Phase:      s.phase,
		Round:      s.round,
		RoundCount: s.cfg.RoundCount,
		RoundTime:  s.cfg.RoundTimeSeconds,
		CardPhases: s.cfg.CardPhases,
		Deadline:   s.deadline,
		CreatedAt:  s.createdAt,
		Aborted:    s.aborted,
		Reason:     s.reason,
	}
	if s.rs != nil {
		snap.Submitter = s.rs.submitter
		snap.RoundTime = int(s.rs.roundTime / time.Second)
	}
	for _, p := range s.roster {
		slot := s.slots[p.ID]
		view := PlayerView{
			ID:        p.ID,
			Username:  p.Username,
			Score:     slot.Score,
			Acted:     slot.Acted,
			Connected: slot.Connected,
		}
		for _, c := range slot.RoundCards {
			view.RoundCards = append(view.RoundCards, c.ID)
		}
		for _, c := range slot.ActionCards {
			view.ActionCards = append(view.ActionCards, c.ID)
		}
		snap.Players = append(snap.Players, view)
	}
	return snap
}

// Guesses returns the guesses recorded for a round in roster order.
func (s *Session) Guesses(round int) []Guess {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Guess
	for _, p := range s.roster {
		if g, ok := s.guesses[round][p.ID]; ok {
			out = append(out, *g)
		}
	}
	return out
}

func (s *Session) ended() bool {
	return s.phase == PhaseGameEnd
}

func (s *Session) stamp() scheduler.Stamp {
	return scheduler.Stamp{Phase: string(s.phase), Round: s.round}
}

// schedule arms the single deadline for the current phase.
func (s *Session) schedule(d time.Duration) {
	s.deadline = s.deps.Scheduler.Schedule(s.id, s.stamp(), d, s.onTimer)
}

// onTimer runs on the scheduler goroutine.
func (s *Session) onTimer(stamp scheduler.Stamp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended() {
		return
	}
	if stamp != s.stamp() {
		log.Debug().
			Str("session_id", s.id.String()).
			Str("stale", stamp.String()).
			Str("current", s.stamp().String()).
			Msg("ignoring stale timer")
		return
	}
	s.transition("timeout "+stamp.String(), s.handleTimeout)
}

// handleTimeout advances the current phase with default values.
func (s *Session) handleTimeout() error {
	switch s.phase {
	case PhaseWaiting:
		return s.beginRound(1)
	case PhaseRoundCardSelect:
		return s.autoSelectRoundCard()
	case PhaseActionCardPlay:
		s.skipRemaining(skipReasonTimeout)
		return s.startGuessing()
	case PhaseGuessing:
		s.synthesizeTimeouts()
		return s.endRound()
	case PhaseRoundResult:
		return s.beginRound(s.round + 1)
	default:
		return fmt.Errorf("%w: timeout in phase %s", ErrInvariant, s.phase)
	}
}

// transition runs fn and keeps the session moving when it fails. A failure
// before fn committed the next phase forces the current phase through its
// timeout path; a failure after it keeps the deadline the new phase armed.
// Invariant violations, or too many forced advances in a row, end the session.
func (s *Session) transition(name string, fn func() error) {
	before := s.stamp()
	err := s.runGuarded(fn)
	if err == nil {
		s.forced = 0
		return
	}
	if errors.Is(err, ErrInvariant) {
		log.Error().Err(err).Str("session_id", s.id.String()).Str("transition", name).Msg("invariant violated - aborting session")
		s.abortLocked("internal error")
		return
	}

	s.forced++
	log.Error().
		Err(err).
		Str("session_id", s.id.String()).
		Str("transition", name).
		Str("phase", string(s.phase)).
		Int("forced", s.forced).
		Msg("transition failed - forcing phase advance")
	if s.ended() {
		s.finish()
		return
	}
	if s.forced > maxForcedAdvances {
		s.abortLocked("internal error")
		return
	}
	if now := s.stamp(); now != before {
		if pending, _, ok := s.deps.Scheduler.Pending(s.id); ok && pending == now {
			return
		}
	}
	s.schedule(0)
}

func (s *Session) runGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Session) abortLocked(reason string) {
	if s.ended() {
		return
	}
	s.aborted = true
	s.reason = reason
	s.phase = PhaseGameEnd
	s.deps.Scheduler.Cancel(s.id)
	if err := s.runGuarded(func() error {
		s.publish(events.TypeGameAborted, events.GameAbortedPayload{Reason: reason})
		return nil
	}); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to broadcast abort")
	}
	log.Warn().Str("session_id", s.id.String()).Str("reason", reason).Int("round", s.round).Msg("game aborted")
	s.finish()
}

// finish releases the session once. Callers hold the lock and have set GAME_END.
func (s *Session) finish() {
	if s.finished {
		return
	}
	s.finished = true
	s.deps.Scheduler.Cancel(s.id)
	s.deadline = time.Time{}
	close(s.done)

	if s.deps.Recorder != nil {
		go s.record(s.summary())
	}
}

func (s *Session) publish(t events.Type, data any) {
	s.deps.Broadcaster.Publish(s.id, events.Event{Type: t, Data: data})
}

func (s *Session) unicast(playerID string, t events.Type, data any) {
	s.deps.Broadcaster.PublishToPlayer(s.id, playerID, events.Event{Type: t, Data: data})
}

func (s *Session) sendHand(playerID string) {
	if !s.cfg.CardPhases {
		return
	}
	slot := s.slots[playerID]
	hand := events.HandPayload{
		RoundCards:  make([]events.CardInfo, 0, len(slot.RoundCards)),
		ActionCards: make([]events.CardInfo, 0, len(slot.ActionCards)),
	}
	for _, c := range slot.RoundCards {
		hand.RoundCards = append(hand.RoundCards, roundCardInfo(c))
	}
	for _, c := range slot.ActionCards {
		hand.ActionCards = append(hand.ActionCards, actionCardInfo(c))
	}
	s.unicast(playerID, events.TypeHand, hand)
}

func roundCardInfo(c cards.RoundCard) events.CardInfo {
	return events.CardInfo{ID: c.ID, Name: c.Name, Description: c.Description, Kind: "round"}
}

func actionCardInfo(c cards.ActionCard) events.CardInfo {
	return events.CardInfo{ID: c.ID, Name: c.Name, Description: c.Description, Kind: string(c.Kind)}
}

func (s *Session) username(playerID string) string {
	if slot, ok := s.slots[playerID]; ok {
		return slot.Username
	}
	return playerID
}

func (s *Session) summary() Summary {
	sum := Summary{
		SessionID:  s.id,
		CreatedAt:  s.createdAt,
		EndedAt:    s.clock.Now(),
		RoundCount: s.cfg.RoundCount,
		Aborted:    s.aborted,
		Reason:     s.reason,
		Winner:     s.winner,
		Targets:    append([]geo.Point(nil), s.targets...),
	}
	for _, p := range s.roster {
		ps := PlayerSummary{PlayerID: p.ID, Username: p.Username, Total: s.slots[p.ID].Score}
		for round := 1; round <= s.round; round++ {
			if g, ok := s.guesses[round][p.ID]; ok {
				ps.Guesses = append(ps.Guesses, *g)
			}
		}
		sum.Players = append(sum.Players, ps)
	}
	return sum
}

func (s *Session) record(sum Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.deps.Recorder.RecordGame(ctx, sum); err != nil {
		log.Error().Err(err).Str("session_id", s.id.String()).Msg("failed to record game")
		return
	}
	log.Debug().Str("session_id", s.id.String()).Msg("game recorded")
}

package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/mcdev12/geoguess/go/internal/game/cards"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/geo"
	"github.com/mcdev12/geoguess/go/internal/game/scoring"
	"github.com/rs/zerolog/log"
)

const (
	targetDrawAttempts = 5
	fallbackShiftDeg   = 0.01
)

// roundState is the bookkeeping of the round in progress.
type roundState struct {
	number     int
	submitter  string
	card       cards.RoundCard
	roundTime  time.Duration
	effects    []AppliedEffect
	punished   map[string]map[cards.Effect]bool
	multiplier map[string]float64
	timeBonus  map[string]time.Duration
	blocked    map[string]bool
	shielded   map[string]bool
	guessStart time.Time
	sealed     bool
}

func newRoundState(number int, roundTime time.Duration) *roundState {
	return &roundState{
		number:     number,
		roundTime:  roundTime,
		punished:   make(map[string]map[cards.Effect]bool),
		multiplier: make(map[string]float64),
		timeBonus:  make(map[string]time.Duration),
		blocked:    make(map[string]bool),
		shielded:   make(map[string]bool),
	}
}

func (rs *roundState) multiplierFor(playerID string) float64 {
	if m, ok := rs.multiplier[playerID]; ok {
		return m
	}
	return 1
}

func (rs *roundState) maxBonus() time.Duration {
	var longest time.Duration
	for _, b := range rs.timeBonus {
		if b > longest {
			longest = b
		}
	}
	return longest
}

// SubmitRoundCard plays the round card chosen by this round's submitter.
func (s *Session) SubmitRoundCard(playerID, cardID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return ErrSessionEnded
	}
	if s.phase != PhaseRoundCardSelect {
		return phaseError("submit-round-card", s.phase)
	}
	if playerID != s.rs.submitter {
		return ErrNotYourTurn
	}
	idx := slices.IndexFunc(slot.RoundCards, func(c cards.RoundCard) bool { return c.ID == cardID })
	if idx < 0 {
		if _, known := s.deps.Catalog.RoundCard(cardID); !known {
			return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
		}
		return ErrCardNotOwned
	}

	card := slot.RoundCards[idx]
	slot.RoundCards = slices.Delete(slot.RoundCards, idx, idx+1)
	log.Info().
		Str("session_id", s.id.String()).
		Int("round", s.round).
		Str("player_id", playerID).
		Str("card_id", card.ID).
		Msg("round card selected")

	s.transition("submit-round-card", func() error {
		return s.applyRoundCard(card)
	})
	return nil
}

// SubmitGuess records a player's guess for the current round.
func (s *Session) SubmitGuess(playerID string, lat, lon float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return ErrSessionEnded
	}
	if s.phase != PhaseGuessing {
		return phaseError("submit-guess", s.phase)
	}
	if _, dup := s.guesses[s.round][playerID]; dup {
		return ErrAlreadyGuessed
	}
	point := geo.Point{Lat: lat, Lon: lon}
	if err := point.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCoordinates, err)
	}
	now := s.clock.Now()
	if now.After(s.personalDeadline(playerID)) {
		return ErrTimeUp
	}

	distance := scoring.Distance(lat, lon, s.target.Lat, s.target.Lon)
	g := &Guess{
		PlayerID:   playerID,
		Round:      s.round,
		Point:      &point,
		Distance:   distance,
		Scored:     scoring.Apply(distance, s.rs.multiplierFor(playerID)),
		RecordedAt: now,
	}
	s.guesses[s.round][playerID] = g

	s.publish(events.TypeRoundGuess, events.RoundGuessPayload{Username: slot.Username, Round: s.round})
	s.unicast(playerID, events.TypeRoundGuess, events.RoundGuessPayload{
		Username: slot.Username,
		Lat:      &point.Lat,
		Lon:      &point.Lon,
		Distance: &g.Scored,
		Round:    s.round,
	})

	log.Debug().
		Str("session_id", s.id.String()).
		Int("round", s.round).
		Str("player_id", playerID).
		Int("distance", distance).
		Msg("guess recorded")

	if len(s.guesses[s.round]) == len(s.roster) {
		s.deps.Scheduler.Cancel(s.id)
		s.transition("end-round", s.endRound)
	}
	return nil
}

// beginRound opens round n with the round-card phase, or with guessing when
// card phases are off. Nothing is committed until the target and hand are
// drawn, so a failed attempt can be retried for the same n.
func (s *Session) beginRound(n int) error {
	if n != s.round+1 || n > s.cfg.RoundCount {
		return fmt.Errorf("%w: cannot begin round %d after %d of %d", ErrInvariant, n, s.round, s.cfg.RoundCount)
	}
	rs := newRoundState(n, time.Duration(s.cfg.RoundTimeSeconds)*time.Second)

	if !s.cfg.CardPhases {
		target := s.drawTarget(nil)
		s.commitRound(rs)
		s.setTarget(target)
		return s.startGuessing()
	}

	submitter := s.roster[(n-1)%len(s.roster)].ID
	rs.submitter = submitter
	slot := s.slots[submitter]
	var dealt []cards.RoundCard
	if len(slot.RoundCards) == 0 {
		dealt = s.deps.Catalog.AssignRoundCards(submitter, s.cfg.RoundCardsPerPlayer)
	}

	s.commitRound(rs)
	if dealt != nil {
		slot.RoundCards = dealt
	}
	s.phase = PhaseRoundCardSelect
	s.schedule(s.cfg.RoundCardTimeout)

	if dealt != nil {
		s.sendHand(submitter)
	}
	s.publish(events.TypeRoundCardSelectStart, events.RoundCardSelectStartPayload{
		Round:     n,
		Submitter: s.username(submitter),
		Deadline:  s.deadline,
	})
	log.Info().Str("session_id", s.id.String()).Int("round", n).Str("submitter", submitter).Msg("round started")
	return nil
}

func (s *Session) commitRound(rs *roundState) {
	s.round = rs.number
	s.rs = rs
	for _, slot := range s.slots {
		slot.Acted = false
	}
}

// autoSelectRoundCard plays the submitter's first card, or the default card
// when their hand is empty.
func (s *Session) autoSelectRoundCard() error {
	card := s.deps.Catalog.DefaultRoundCard()
	if slot := s.slots[s.rs.submitter]; slot != nil && len(slot.RoundCards) > 0 {
		card = slot.RoundCards[0]
		slot.RoundCards = slot.RoundCards[1:]
	}
	log.Info().
		Str("session_id", s.id.String()).
		Int("round", s.round).
		Str("card_id", card.ID).
		Msg("round card auto-selected")
	return s.applyRoundCard(card)
}

func (s *Session) applyRoundCard(card cards.RoundCard) error {
	target := s.drawTarget(card.Region)

	s.rs.card = card
	if card.TimeSeconds > 0 {
		s.rs.roundTime = time.Duration(card.TimeSeconds) * time.Second
	}
	s.setTarget(target)
	s.enterActionPhase()

	payload := events.RoundCardSelectedPayload{
		Round:     s.round,
		Username:  s.username(s.rs.submitter),
		CardID:    card.ID,
		CardName:  card.Name,
		RoundTime: int(s.rs.roundTime / time.Second),
	}
	if card.Region != nil {
		payload.Region = card.Region.Name
	}
	s.publish(events.TypeRoundCardSelected, payload)
	return s.announceActionPhase()
}

// drawTarget picks a target that no earlier round has used.
func (s *Session) drawTarget(region *geo.Box) geo.Point {
	for i := 0; i < targetDrawAttempts; i++ {
		p := s.deps.Targets.Next(region)
		if p.Validate() == nil && !slices.Contains(s.targets, p) {
			return p
		}
	}
	log.Warn().Str("session_id", s.id.String()).Int("round", s.round).Msg("target draw exhausted - using fallback")
	p := s.deps.Targets.Fallback()
	for slices.Contains(s.targets, p) {
		p = shiftEast(p)
	}
	return p
}

// shiftEast moves p a little east, wrapping at the antimeridian.
func shiftEast(p geo.Point) geo.Point {
	p.Lon += fallbackShiftDeg
	if p.Lon > 180 {
		p.Lon -= 360
	}
	return p
}

func (s *Session) setTarget(p geo.Point) {
	s.target = p
	s.targets = append(s.targets, p)
}

func (s *Session) startGuessing() error {
	base := s.rs.roundTime
	s.phase = PhaseGuessing
	s.rs.guessStart = s.clock.Now()
	if s.guesses[s.round] == nil {
		s.guesses[s.round] = make(map[string]*Guess, len(s.roster))
	}
	s.schedule(base + s.rs.maxBonus())

	hints := append([]string{}, s.rs.card.Modifiers...)
	if s.rs.card.Region != nil {
		hints = append(hints, s.rs.card.Region.Name)
	}
	s.publish(events.TypeRoundStart, events.RoundStartPayload{
		Round:        s.round,
		RoundTime:    int(base / time.Second),
		VisibleHints: hints,
		Deadline:     s.rs.guessStart.Add(base),
	})
	return nil
}

// personalDeadline is the last instant a player may guess this round.
func (s *Session) personalDeadline(playerID string) time.Time {
	budget := s.rs.roundTime + s.rs.timeBonus[playerID]
	if budget < s.cfg.MinPersonalTime {
		budget = s.cfg.MinPersonalTime
	}
	return s.rs.guessStart.Add(budget)
}

func (s *Session) synthesizeTimeouts() {
	now := s.clock.Now()
	for _, p := range s.roster {
		if _, ok := s.guesses[s.round][p.ID]; ok {
			continue
		}
		s.guesses[s.round][p.ID] = &Guess{
			PlayerID:   p.ID,
			Round:      s.round,
			Distance:   scoring.TimeoutPenalty,
			Scored:     scoring.TimeoutPenalty,
			RecordedAt: now,
		}
	}
}

// endRound scores the round and either ends the game or schedules the next
// round. Calling it twice for one round does nothing. Scores and the next
// phase are committed before anything is published.
func (s *Session) endRound() error {
	if s.rs == nil || s.rs.sealed {
		return nil
	}
	if s.phase != PhaseGuessing {
		return fmt.Errorf("%w: end of round %d during %s", ErrInvariant, s.round, s.phase)
	}
	s.synthesizeTimeouts()

	last := s.round == s.cfg.RoundCount
	totals := make([]int, len(s.roster))
	entries := make([]scoring.Entry, 0, len(s.roster))
	results := make([]events.PlayerResult, 0, len(s.roster))
	for i, p := range s.roster {
		slot := s.slots[p.ID]
		g := s.guesses[s.round][p.ID]
		totals[i] = slot.Score + g.Scored

		entries = append(entries, scoring.Entry{
			PlayerID:    p.ID,
			Distance:    g.Scored,
			Timeout:     g.Timeout(),
			SubmittedAt: g.RecordedAt,
			Order:       slot.Order,
		})
		view := events.GuessView{Distance: g.Scored, Timeout: g.Timeout()}
		if g.Point != nil {
			view.Lat, view.Lon = &g.Point.Lat, &g.Point.Lon
		}
		results = append(results, events.PlayerResult{
			Username: p.Username,
			Score:    totals[i],
			Guess:    view,
			Target:   s.target,
		})
	}
	roundWinner, hasRoundWinner := scoring.RoundWinner(entries)

	for i, p := range s.roster {
		slot := s.slots[p.ID]
		slot.Score = totals[i]
		slot.Cumulative = append(slot.Cumulative, totals[i])
	}
	s.rs.sealed = true

	var gameWinner scoring.Standing
	var hasGameWinner bool
	if last {
		standings := make([]scoring.Standing, 0, len(s.roster))
		for _, p := range s.roster {
			slot := s.slots[p.ID]
			standings = append(standings, scoring.Standing{PlayerID: p.ID, Cumulative: slot.Cumulative, Order: slot.Order})
		}
		if gameWinner, hasGameWinner = scoring.GameWinner(standings); hasGameWinner {
			s.winner = gameWinner.PlayerID
		}
		s.phase = PhaseGameEnd
		s.deps.Scheduler.Cancel(s.id)
	} else {
		s.phase = PhaseRoundResult
		s.schedule(s.cfg.ResultDelay)
	}

	s.publish(events.TypeRoundResult, events.RoundResultPayload{Round: s.round, GameEnd: last, PerPlayer: results})
	if hasRoundWinner {
		s.publish(events.TypeRoundWinner, events.RoundWinnerPayload{
			Username: s.username(roundWinner.PlayerID),
			Round:    s.round,
			Distance: roundWinner.Distance,
		})
	}
	log.Info().Str("session_id", s.id.String()).Int("round", s.round).Bool("last", last).Msg("round ended")
	if !last {
		return nil
	}

	if hasGameWinner {
		s.publish(events.TypeGameWinner, events.GameWinnerPayload{Username: s.username(gameWinner.PlayerID)})
	}
	log.Info().Str("session_id", s.id.String()).Str("winner", s.winner).Msg("game ended")
	s.finish()
	return nil
}

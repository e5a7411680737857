package session

import (
	"context"
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
	defaultTimeSwing     = 15 * time.Second
	defaultHalfFactor    = 0.5
	defaultDoubleFactor  = 2.0
	hintLookupTimeout    = 5 * time.Second
	skipReasonSkipped    = "skipped"
	skipReasonTimeout    = "timeout"
	skipReasonBlocked    = "blocked"
	skipReasonOffline    = "disconnected"
	hintValueUnavailable = "unavailable"
)

func (s *Session) enterActionPhase() {
	s.phase = PhaseActionCardPlay
	for _, slot := range s.slots {
		slot.Acted = false
	}
	s.schedule(s.cfg.ActionCardTimeout)
}

func (s *Session) announceActionPhase() error {
	s.publish(events.TypeActionCardPhaseStart, events.ActionCardPhaseStartPayload{
		Round:    s.round,
		Deadline: s.deadline,
	})

	for _, p := range s.roster {
		if slot := s.slots[p.ID]; !slot.Connected {
			s.markSkipped(slot, skipReasonOffline)
		}
	}
	return s.maybeStartGuessing()
}

// SubmitActionCard plays an action card, aimed at targetID for punishments.
func (s *Session) SubmitActionCard(playerID, cardID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return ErrSessionEnded
	}
	if s.phase != PhaseActionCardPlay {
		return phaseError("submit-action-card", s.phase)
	}
	if s.rs.blocked[playerID] {
		return ErrCardsBlocked
	}
	if slot.Acted {
		return ErrAlreadyActed
	}
	idx := slices.IndexFunc(slot.ActionCards, func(c cards.ActionCard) bool { return c.ID == cardID })
	if idx < 0 {
		if _, known := s.deps.Catalog.ActionCard(cardID); !known {
			return fmt.Errorf("%w: %s", ErrUnknownCard, cardID)
		}
		return ErrCardNotOwned
	}
	card := slot.ActionCards[idx]

	var target *PlayerSlot
	if card.NeedsTarget() {
		switch {
		case targetID == "":
			return ErrTargetRequired
		case targetID == playerID:
			return ErrSelfTarget
		}
		if target, ok = s.slots[targetID]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlayer, targetID)
		}
		if s.rs.punished[targetID][card.Effect] {
			return ErrAlreadyPunished
		}
	}

	slot.ActionCards = slices.Delete(slot.ActionCards, idx, idx+1)
	slot.Acted = true
	applied := AppliedEffect{Round: s.round, CardID: card.ID, Effect: card.Effect, From: playerID}
	if target != nil {
		applied.Target = target.ID
		if s.rs.punished[target.ID] == nil {
			s.rs.punished[target.ID] = make(map[cards.Effect]bool)
		}
		s.rs.punished[target.ID][card.Effect] = true
	}
	s.rs.effects = append(s.rs.effects, applied)

	log.Info().
		Str("session_id", s.id.String()).
		Int("round", s.round).
		Str("player_id", playerID).
		Str("card_id", card.ID).
		Str("effect", string(card.Effect)).
		Str("target_id", applied.Target).
		Msg("action card played")

	s.transition("submit-action-card", func() error {
		s.applyEffect(slot, card, target)
		return s.maybeStartGuessing()
	})
	return nil
}

// SkipActionCard passes on this round's action-card play.
func (s *Session) SkipActionCard(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[playerID]
	if !ok {
		return ErrNotInRoster
	}
	if s.ended() {
		return ErrSessionEnded
	}
	if s.phase != PhaseActionCardPlay {
		return phaseError("skip-action-card", s.phase)
	}
	if slot.Acted {
		return ErrAlreadyActed
	}

	s.markSkipped(slot, skipReasonSkipped)
	s.transition("skip-action-card", s.maybeStartGuessing)
	return nil
}

func (s *Session) markSkipped(slot *PlayerSlot, reason string) {
	if slot.Acted {
		return
	}
	slot.Acted = true
	s.publish(events.TypeActionCardSkipped, events.ActionCardSkippedPayload{
		Round:    s.round,
		Username: slot.Username,
		Reason:   reason,
	})
}

// skipRemaining marks everyone who has not acted yet as skipped.
func (s *Session) skipRemaining(reason string) {
	for _, p := range s.roster {
		s.markSkipped(s.slots[p.ID], reason)
	}
}

func (s *Session) maybeStartGuessing() error {
	if s.phase != PhaseActionCardPlay {
		return nil
	}
	for _, slot := range s.slots {
		if !slot.Acted {
			return nil
		}
	}
	return s.startGuessing()
}

// applyEffect resolves a played card. Emission order is the played
// broadcast, then any follow-up skip, then the player's hint and their
// replacement cards.
func (s *Session) applyEffect(from *PlayerSlot, card cards.ActionCard, target *PlayerSlot) {
	played := events.ActionCardPlayedPayload{
		Round:       s.round,
		Username:    from.Username,
		CardID:      card.ID,
		Effect:      string(card.Effect),
		DurationSec: card.DurationSec,
	}
	if target != nil {
		played.TargetUsername = target.Username
	}

	var (
		hint    string
		lookup  bool
		blocked *PlayerSlot
		dealt   = []cards.ActionCard{s.deps.Catalog.DealActionCard(from.ID)}
	)

	switch card.Effect {
	case cards.EffectContinentReveal:
		hint = string(geo.ContinentOf(s.target))
	case cards.EffectHeightReveal, cards.EffectTemperature:
		lookup = true
	case cards.EffectDistanceReveal:
		ref := *card.Reference
		km := scoring.Distance(ref.Lat, ref.Lon, s.target.Lat, s.target.Lon) / 1000
		hint = fmt.Sprintf("%d km from (%.4f, %.4f)", km, ref.Lat, ref.Lon)
	case cards.EffectDrawAgain:
		dealt = append(dealt, s.deps.Catalog.DealActionCard(from.ID))
	case cards.EffectClearVision:
		s.rs.shielded[from.ID] = true
		if s.rs.multiplier[from.ID] > 1 {
			delete(s.rs.multiplier, from.ID)
		}
		if s.rs.timeBonus[from.ID] < 0 {
			delete(s.rs.timeBonus, from.ID)
		}
	case cards.EffectHalfDistance:
		s.scaleDistance(from.ID, factor(card.Multiplier, defaultHalfFactor))
	case cards.EffectAddTime:
		swing := seconds(card.Seconds)
		s.rs.timeBonus[from.ID] += swing
		played.DurationSec = int(swing / time.Second)
	case cards.EffectDoubleDistance:
		if s.rs.shielded[target.ID] {
			played.Value = "shielded"
			break
		}
		s.scaleDistance(target.ID, factor(card.Multiplier, defaultDoubleFactor))
	case cards.EffectReduceTime:
		if s.rs.shielded[target.ID] {
			played.Value = "shielded"
			break
		}
		swing := seconds(card.Seconds)
		s.rs.timeBonus[target.ID] -= swing
		played.DurationSec = int(swing / time.Second)
	case cards.EffectBlockCards:
		s.rs.blocked[target.ID] = true
		blocked = target
	case cards.EffectDiscardCard:
		if n := len(target.RoundCards); n > 0 {
			played.Value = target.RoundCards[n-1].Name
			target.RoundCards = target.RoundCards[:n-1]
		}
	}

	from.ActionCards = append(from.ActionCards, dealt...)

	s.publish(events.TypeActionCardPlayed, played)
	if blocked != nil {
		s.markSkipped(blocked, skipReasonBlocked)
	}
	if hint != "" {
		s.unicast(from.ID, events.TypeHint, events.HintPayload{
			Round:  s.round,
			CardID: card.ID,
			Effect: string(card.Effect),
			Value:  hint,
		})
	}
	if lookup {
		s.lookupHint(from.ID, card)
	}

	replacement := events.ActionCardReplacementPayload{Round: s.round}
	for _, c := range dealt {
		replacement.Cards = append(replacement.Cards, actionCardInfo(c))
	}
	s.unicast(from.ID, events.TypeActionCardReplaced, replacement)
}

func (s *Session) scaleDistance(playerID string, f float64) {
	s.rs.multiplier[playerID] = s.rs.multiplierFor(playerID) * f
}

func factor(m, fallback float64) float64 {
	if m > 0 {
		return m
	}
	return fallback
}

func seconds(n int) time.Duration {
	if n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultTimeSwing
}

// lookupHint resolves elevation or temperature at the target without holding
// the session lock. The hint is dropped if the round moved on meanwhile.
func (s *Session) lookupHint(playerID string, card cards.ActionCard) {
	round, target := s.round, s.target
	if s.deps.Hints == nil {
		s.unicast(playerID, events.TypeHint, events.HintPayload{
			Round:  round,
			CardID: card.ID,
			Effect: string(card.Effect),
			Value:  hintValueUnavailable,
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), hintLookupTimeout)
		defer cancel()

		var (
			value float64
			err   error
			text  string
		)
		switch card.Effect {
		case cards.EffectHeightReveal:
			value, err = s.deps.Hints.Elevation(ctx, target)
			text = fmt.Sprintf("%.0f m", value)
		default:
			value, err = s.deps.Hints.Temperature(ctx, target)
			text = fmt.Sprintf("%.1f °C", value)
		}
		if err != nil {
			log.Warn().Err(err).Str("session_id", s.id.String()).Str("effect", string(card.Effect)).Msg("hint lookup failed")
			text = hintValueUnavailable
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ended() || s.round != round {
			return
		}
		s.unicast(playerID, events.TypeHint, events.HintPayload{
			Round:  round,
			CardID: card.ID,
			Effect: string(card.Effect),
			Value:  text,
		})
	}()
}

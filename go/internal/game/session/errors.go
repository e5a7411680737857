package session

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by a session action wraps exactly one.
var (
	ErrAuthorization   = errors.New("not authorized")
	ErrPhase           = errors.New("wrong phase")
	ErrDuplicateAction = errors.New("duplicate action")
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("invalid input")

	// ErrInvariant marks corrupted session state. It ends the session.
	ErrInvariant = errors.New("invariant violated")
)

var (
	ErrInvalidRoster      = fmt.Errorf("%w: roster needs at least 2 distinct players", ErrValidation)
	ErrInvalidConfig      = fmt.Errorf("%w: invalid game configuration", ErrValidation)
	ErrInvalidCoordinates = fmt.Errorf("%w: coordinates out of range", ErrValidation)
	ErrTargetRequired     = fmt.Errorf("%w: punishment cards need a target player", ErrValidation)
	ErrSelfTarget         = fmt.Errorf("%w: you cannot target yourself", ErrValidation)

	ErrWrongPhase   = ErrPhase
	ErrTimeUp       = fmt.Errorf("%w: your guessing time is up", ErrPhase)
	ErrSessionEnded = fmt.Errorf("%w: game already ended", ErrPhase)

	ErrNotInRoster  = fmt.Errorf("%w: player is not in this game", ErrAuthorization)
	ErrNotYourTurn  = fmt.Errorf("%w: not your turn", ErrAuthorization)
	ErrCardNotOwned = fmt.Errorf("%w: you do not hold this card", ErrAuthorization)
	ErrCardsBlocked = fmt.Errorf("%w: your action cards are blocked this round", ErrAuthorization)

	ErrAlreadyActed    = fmt.Errorf("%w: you already played a card this round", ErrDuplicateAction)
	ErrAlreadyGuessed  = fmt.Errorf("%w: you already guessed this round", ErrDuplicateAction)
	ErrAlreadyPunished = fmt.Errorf("%w: target player already has this punishment", ErrDuplicateAction)

	ErrUnknownCard   = fmt.Errorf("%w: unknown card", ErrNotFound)
	ErrUnknownPlayer = fmt.Errorf("%w: unknown player", ErrNotFound)
)

// Error codes sent to clients.
const (
	CodeAuthorization   = "AUTHORIZATION_ERROR"
	CodePhase           = "PHASE_ERROR"
	CodeDuplicateAction = "DUPLICATE_ACTION"
	CodeNotFound        = "NOT_FOUND"
	CodeValidation      = "VALIDATION_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
)

// Code maps an error onto its client-facing class.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrAuthorization):
		return CodeAuthorization
	case errors.Is(err, ErrPhase):
		return CodePhase
	case errors.Is(err, ErrDuplicateAction):
		return CodeDuplicateAction
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

func phaseError(action string, phase Phase) error {
	return fmt.Errorf("%w: %s is not allowed during %s", ErrWrongPhase, action, phase)
}

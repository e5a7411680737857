// Package game is the action boundary of the engine: it decodes player
// actions, routes them to the running session of their lobby and reports
// rejected actions back to the acting player only.
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/registry"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// Inbound action types.
const (
	ActionStartGame        = "start-game"
	ActionSubmitRoundCard  = "submit-round-card"
	ActionSubmitActionCard = "submit-action-card"
	ActionSkipActionCard   = "skip-action-card"
	ActionSubmitGuess      = "submit-guess"
	ActionLeave            = "leave"
)

var (
	ErrUnknownAction  = fmt.Errorf("%w: unknown action", session.ErrValidation)
	ErrMalformed      = fmt.Errorf("%w: malformed payload", session.ErrValidation)
	ErrNotHost        = fmt.Errorf("%w: only the lobby host can start the game", session.ErrAuthorization)
	ErrLobbyNotFound  = fmt.Errorf("%w: lobby not found", session.ErrNotFound)
	ErrMissingPlayer  = fmt.Errorf("%w: missing player id", session.ErrAuthorization)
	ErrMissingSession = fmt.Errorf("%w: missing session id", session.ErrValidation)
)

// Action is one player request. PlayerID is filled in by the transport from
// the authenticated connection, never from the payload.
type Action struct {
	Type      string          `json:"type"`
	SessionID uuid.UUID       `json:"sessionId"`
	PlayerID  string          `json:"-"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type StartGamePayload struct {
	RoundCount *int  `json:"roundCount,omitempty"`
	RoundTime  *int  `json:"roundTime,omitempty"`
	CardPhases *bool `json:"cardPhases,omitempty"`
}

type RoundCardPayload struct {
	CardID string `json:"cardId"`
}

type ActionCardPayload struct {
	CardID         string `json:"cardId"`
	TargetPlayerID string `json:"targetPlayerId,omitempty"`
}

type GuessPayload struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Lobbies is the roster collaborator.
type Lobbies interface {
	Join(lobbyID uuid.UUID, p session.Player)
	Leave(lobbyID uuid.UUID, playerID string)
	Roster(lobbyID uuid.UUID) ([]session.Player, error)
	Host(lobbyID uuid.UUID) (string, error)
}

// Service routes actions to sessions.
type Service struct {
	registry *registry.Registry
	lobbies  Lobbies
	deps     session.Deps
	defaults session.Config
}

func NewService(reg *registry.Registry, lobbies Lobbies, deps session.Deps, defaults session.Config) *Service {
	return &Service{
		registry: reg,
		lobbies:  lobbies,
		deps:     deps,
		defaults: defaults,
	}
}

// HandleAction applies a. A rejected action produces exactly one ERROR event,
// sent to the acting player, and is returned to the caller.
func (s *Service) HandleAction(ctx context.Context, a Action) error {
	err := s.dispatch(ctx, a)
	if err == nil {
		return nil
	}

	log.Warn().
		Err(err).
		Str("session_id", a.SessionID.String()).
		Str("player_id", a.PlayerID).
		Str("action", a.Type).
		Msg("action rejected")

	if a.PlayerID != "" {
		s.deps.Broadcaster.PublishToPlayer(a.SessionID, a.PlayerID, events.Event{
			Type: events.TypeError,
			Data: events.ErrorPayload{
				Code:    session.Code(err),
				Message: err.Error(),
				Action:  a.Type,
			},
		})
	}
	return err
}

func (s *Service) dispatch(ctx context.Context, a Action) error {
	if a.PlayerID == "" {
		return ErrMissingPlayer
	}
	if a.SessionID == uuid.Nil {
		return ErrMissingSession
	}

	log.Debug().
		Str("action", a.Type).
		Str("session_id", a.SessionID.String()).
		Str("player_id", a.PlayerID).
		Msg("handling action")

	switch a.Type {
	case ActionStartGame:
		var p StartGamePayload
		if err := decode(a.Payload, &p); err != nil {
			return err
		}
		_, err := s.StartGame(ctx, a.SessionID, a.PlayerID, p)
		return err

	case ActionSubmitRoundCard:
		var p RoundCardPayload
		if err := decode(a.Payload, &p); err != nil {
			return err
		}
		return s.withSession(a.SessionID, func(sess *session.Session) error {
			return sess.SubmitRoundCard(a.PlayerID, p.CardID)
		})

	case ActionSubmitActionCard:
		var p ActionCardPayload
		if err := decode(a.Payload, &p); err != nil {
			return err
		}
		return s.withSession(a.SessionID, func(sess *session.Session) error {
			return sess.SubmitActionCard(a.PlayerID, p.CardID, p.TargetPlayerID)
		})

	case ActionSkipActionCard:
		return s.withSession(a.SessionID, func(sess *session.Session) error {
			return sess.SkipActionCard(a.PlayerID)
		})

	case ActionSubmitGuess:
		var p GuessPayload
		if err := decode(a.Payload, &p); err != nil {
			return err
		}
		if p.Lat == nil || p.Lon == nil {
			return fmt.Errorf("%w: lat and lon are required", ErrMalformed)
		}
		return s.withSession(a.SessionID, func(sess *session.Session) error {
			return sess.SubmitGuess(a.PlayerID, *p.Lat, *p.Lon)
		})

	case ActionLeave:
		return s.Disconnect(a.SessionID, a.PlayerID)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a.Type)
	}
}

// StartGame creates and starts the session for a lobby. Only the host may
// start, the lobby needs at least two players and each lobby runs one game
// at a time.
func (s *Service) StartGame(_ context.Context, lobbyID uuid.UUID, playerID string, p StartGamePayload) (*session.Session, error) {
	host, err := s.lobbies.Host(lobbyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLobbyNotFound, err)
	}
	if host != playerID {
		return nil, ErrNotHost
	}
	roster, err := s.lobbies.Roster(lobbyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLobbyNotFound, err)
	}

	cfg := s.defaults
	if p.RoundCount != nil {
		cfg.RoundCount = *p.RoundCount
	}
	if p.RoundTime != nil {
		cfg.RoundTimeSeconds = *p.RoundTime
	}
	if p.CardPhases != nil {
		cfg.CardPhases = *p.CardPhases
	}

	sess, err := s.registry.Create(lobbyID, func() (*session.Session, error) {
		return session.New(lobbyID, roster, cfg, s.deps)
	})
	if err != nil {
		return nil, err
	}
	if err := sess.Start(); err != nil {
		sess.Abort("start failed")
		return nil, fmt.Errorf("start session %s: %w", lobbyID, err)
	}
	return sess, nil
}

// Connect adds a player to the lobby and marks them present again if the
// lobby has a game running.
func (s *Service) Connect(lobbyID uuid.UUID, p session.Player) error {
	s.lobbies.Join(lobbyID, p)

	err := s.withSession(lobbyID, func(sess *session.Session) error {
		return sess.Rejoin(p.ID)
	})
	switch {
	case err == nil,
		errors.Is(err, registry.ErrSessionNotFound),
		errors.Is(err, session.ErrNotInRoster),
		errors.Is(err, session.ErrSessionEnded):
		return nil
	}
	return err
}

// Disconnect removes a player from the lobby and marks them gone from its
// running game.
func (s *Service) Disconnect(lobbyID uuid.UUID, playerID string) error {
	s.lobbies.Leave(lobbyID, playerID)

	err := s.withSession(lobbyID, func(sess *session.Session) error {
		return sess.Leave(playerID)
	})
	if errors.Is(err, registry.ErrSessionNotFound) {
		return nil
	}
	return err
}

// SessionState returns a snapshot of a running game.
func (s *Service) SessionState(_ context.Context, id uuid.UUID) (*session.Snapshot, error) {
	sess, err := s.registry.Lookup(id)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	return &snap, nil
}

// ActiveSessions returns snapshots of every running game, ordered by id.
func (s *Service) ActiveSessions(_ context.Context) ([]session.Snapshot, error) {
	running := s.registry.List()
	out := make([]session.Snapshot, 0, len(running))
	for _, sess := range running {
		out = append(out, sess.Snapshot())
	}
	return out, nil
}

// AbortSession ends a running game early.
func (s *Service) AbortSession(_ context.Context, id uuid.UUID, reason string) error {
	return s.registry.Remove(id, reason)
}

func (s *Service) withSession(id uuid.UUID, fn func(*session.Session) error) error {
	sess, err := s.registry.Lookup(id)
	if err != nil {
		return err
	}
	return fn(sess)
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the client-visible name of a game event.
type Type string

const (
	TypeGameStart            Type = "GAME_START"
	TypeRoundCardSelectStart Type = "ROUNDCARD_SELECT_START"
	TypeRoundCardSelected    Type = "ROUNDCARD_SELECTED"
	TypeActionCardPhaseStart Type = "ACTIONCARD_PHASE_START"
	TypeActionCardPlayed     Type = "ACTION_CARD_PLAYED"
	TypeActionCardSkipped    Type = "ACTION_CARD_SKIPPED"
	TypeActionCardReplaced   Type = "ACTION_CARD_REPLACEMENT"
	TypeHint                 Type = "HINT"
	TypeHand                 Type = "HAND"
	TypeRoundStart           Type = "ROUND_START"
	TypeRoundGuess           Type = "ROUND_GUESS"
	TypeRoundResult          Type = "ROUND_RESULT"
	TypeRoundWinner          Type = "ROUND_WINNER"
	TypeGameWinner           Type = "GAME_WINNER"
	TypeGameAborted          Type = "GAME_ABORTED"
	TypeError                Type = "ERROR"
	TypeResync               Type = "RESYNC"
)

// Event is what a session emits. Data is one of the payload structs below.
type Event struct {
	Type Type
	Data any
}

// Envelope is the wire form shared by the websocket gateway and the JetStream stream.
// PlayerID is set for events addressed to a single player.
type Envelope struct {
	ID        string          `json:"id"`
	SessionID string          `json:"sessionId"`
	PlayerID  string          `json:"playerId,omitempty"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope assigns an event id and marshals the payload.
func NewEnvelope(sessionID uuid.UUID, e Event) (*Envelope, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Type, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		SessionID: sessionID.String(),
		Type:      e.Type,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/cards"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/geo"
	"github.com/mcdev12/geoguess/go/internal/game/scheduler"
)

// Phase is one stage of a round.
type Phase string

const (
	PhaseWaiting         Phase = "WAITING"
	PhaseRoundCardSelect Phase = "ROUNDCARD_SELECT"
	PhaseActionCardPlay  Phase = "ACTIONCARD_PLAY"
	PhaseGuessing        Phase = "GUESSING"
	PhaseRoundResult     Phase = "ROUND_RESULT"
	PhaseGameEnd         Phase = "GAME_END"
)

// Player is a roster entry.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Config holds the per-lobby game settings.
type Config struct {
	RoundCount       int
	RoundTimeSeconds int
	// CardPhases enables round-card selection and action-card play before
	// each guessing phase. When false a round goes straight to guessing.
	CardPhases          bool
	GraceDelay          time.Duration
	RoundCardTimeout    time.Duration
	ActionCardTimeout   time.Duration
	ResultDelay         time.Duration
	RoundCardsPerPlayer int
	MinPersonalTime     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RoundCount:          5,
		RoundTimeSeconds:    30,
		CardPhases:          true,
		GraceDelay:          10 * time.Second,
		RoundCardTimeout:    30 * time.Second,
		ActionCardTimeout:   30 * time.Second,
		ResultDelay:         5 * time.Second,
		RoundCardsPerPlayer: 2,
		MinPersonalTime:     5 * time.Second,
	}
}

func (c Config) validate() error {
	switch {
	case c.RoundCount < 1:
		return ErrInvalidConfig
	case c.RoundTimeSeconds < 1:
		return ErrInvalidConfig
	case c.GraceDelay < 0 || c.RoundCardTimeout <= 0 || c.ActionCardTimeout <= 0 || c.ResultDelay < 0:
		return ErrInvalidConfig
	}
	return nil
}

// CardCatalog is the card collaborator: validation, dealing and replacement.
type CardCatalog interface {
	RoundCard(id string) (cards.RoundCard, bool)
	ActionCard(id string) (cards.ActionCard, bool)
	DefaultRoundCard() cards.RoundCard
	AssignRoundCards(playerID string, n int) []cards.RoundCard
	DealActionCard(playerID string) cards.ActionCard
}

// TargetSource draws round targets.
type TargetSource interface {
	Next(region *geo.Box) geo.Point
	Fallback() geo.Point
}

// HintProvider resolves location facts revealed by powerup cards.
type HintProvider interface {
	Elevation(ctx context.Context, p geo.Point) (float64, error)
	Temperature(ctx context.Context, p geo.Point) (float64, error)
}

// Recorder archives finished games.
type Recorder interface {
	RecordGame(ctx context.Context, summary Summary) error
}

// Deps are the collaborators a session calls into.
type Deps struct {
	Scheduler   *scheduler.Scheduler
	Broadcaster events.Broadcaster
	Catalog     CardCatalog
	Targets     TargetSource
	Hints       HintProvider // optional
	Recorder    Recorder     // optional
}

// PlayerSlot is a player's in-game state.
type PlayerSlot struct {
	Player
	Order       int
	RoundCards  []cards.RoundCard
	ActionCards []cards.ActionCard
	Score       int
	Cumulative  []int
	Acted       bool
	Connected   bool
}

// Guess is a player's answer for one round. A nil Point is a timeout.
type Guess struct {
	PlayerID   string     `json:"player_id"`
	Round      int        `json:"round"`
	Point      *geo.Point `json:"point,omitempty"`
	Distance   int        `json:"distance"`
	Scored     int        `json:"scored"`
	RecordedAt time.Time  `json:"recorded_at"`
}

func (g Guess) Timeout() bool {
	return g.Point == nil
}

// AppliedEffect records a played action card.
type AppliedEffect struct {
	Round  int
	CardID string
	Effect cards.Effect
	From   string
	Target string
}

// Summary is the archived outcome of a finished game.
type Summary struct {
	SessionID  uuid.UUID
	CreatedAt  time.Time
	EndedAt    time.Time
	RoundCount int
	Aborted    bool
	Reason     string
	Winner     string
	Players    []PlayerSummary
	Targets    []geo.Point
}

type PlayerSummary struct {
	PlayerID string
	Username string
	Total    int
	Guesses  []Guess
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID         uuid.UUID    `json:"id"`
	Phase      Phase        `json:"phase"`
	Round      int          `json:"round"`
	RoundCount int          `json:"round_count"`
	RoundTime  int          `json:"round_time"`
	CardPhases bool         `json:"card_phases"`
	Submitter  string       `json:"submitter,omitempty"`
	Deadline   time.Time    `json:"deadline"`
	CreatedAt  time.Time    `json:"created_at"`
	Aborted    bool         `json:"aborted"`
	Reason     string       `json:"reason,omitempty"`
	Players    []PlayerView `json:"players"`
}

type PlayerView struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Score       int      `json:"score"`
	Acted       bool     `json:"acted"`
	Connected   bool     `json:"connected"`
	RoundCards  []string `json:"round_cards"`
	ActionCards []string `json:"action_cards"`
}

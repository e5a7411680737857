package events

import (
	"time"

	"github.com/mcdev12/geoguess/go/internal/game/geo"
)

// Event payload types shared between the session engine and the transports.

type PlayerInfo struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
}

type GameStartPayload struct {
	Players          []PlayerInfo `json:"players"`
	RoundCount       int          `json:"roundCount"`
	RoundTimeSeconds int          `json:"roundTime"`
	CardPhases       bool         `json:"cardPhases"`
	FirstRoundAt     time.Time    `json:"firstRoundAt"`
}

type RoundCardSelectStartPayload struct {
	Round     int       `json:"round"`
	Submitter string    `json:"submitter"`
	Deadline  time.Time `json:"deadline"`
}

type RoundCardSelectedPayload struct {
	Round     int    `json:"round"`
	Username  string `json:"username"`
	CardID    string `json:"cardId"`
	CardName  string `json:"cardName"`
	RoundTime int    `json:"roundTime"`
	Region    string `json:"region,omitempty"`
}

type ActionCardPhaseStartPayload struct {
	Round    int       `json:"round"`
	Deadline time.Time `json:"deadline"`
}

type ActionCardPlayedPayload struct {
	Round          int    `json:"round"`
	Username       string `json:"username"`
	CardID         string `json:"cardId"`
	Effect         string `json:"effect"`
	TargetUsername string `json:"targetUsername,omitempty"`
	DurationSec    int    `json:"duration,omitempty"`
	Value          string `json:"value,omitempty"`
}

type ActionCardSkippedPayload struct {
	Round    int    `json:"round"`
	Username string `json:"username"`
	Reason   string `json:"reason"`
}

type CardInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
}

type ActionCardReplacementPayload struct {
	Round int        `json:"round"`
	Cards []CardInfo `json:"cards"`
}

type HandPayload struct {
	RoundCards  []CardInfo `json:"roundCards"`
	ActionCards []CardInfo `json:"actionCards"`
}

type HintPayload struct {
	Round  int    `json:"round"`
	CardID string `json:"cardId"`
	Effect string `json:"effect"`
	Value  string `json:"value"`
}

type RoundStartPayload struct {
	Round        int       `json:"round"`
	RoundTime    int       `json:"roundTime"`
	VisibleHints []string  `json:"visibleHints"`
	Deadline     time.Time `json:"deadline"`
}

type RoundGuessPayload struct {
	Username string   `json:"username"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	Distance *int     `json:"distance,omitempty"`
	Round    int      `json:"round"`
}

type GuessView struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Distance int      `json:"distance"`
	Timeout  bool     `json:"timeout"`
}

type PlayerResult struct {
	Username string    `json:"username"`
	Score    int       `json:"score"`
	Guess    GuessView `json:"guess"`
	Target   geo.Point `json:"target"`
}

type RoundResultPayload struct {
	Round     int            `json:"round"`
	GameEnd   bool           `json:"gameEnd"`
	PerPlayer []PlayerResult `json:"perPlayer"`
}

type RoundWinnerPayload struct {
	Username string `json:"username"`
	Round    int    `json:"round"`
	Distance int    `json:"distance"`
}

type GameWinnerPayload struct {
	Username string `json:"username"`
}

type GameAbortedPayload struct {
	Reason string `json:"reason"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

package cards

import (
	"fmt"

	"github.com/mcdev12/geoguess/go/internal/game/geo"
)

// Kind classifies action cards.
type Kind string

const (
	KindPowerup    Kind = "powerup"
	KindPunishment Kind = "punishment"
)

// Effect is what the engine does when an action card is played.
type Effect string

const (
	EffectContinentReveal Effect = "CONTINENT_REVEAL"
	EffectHeightReveal    Effect = "HEIGHT_REVEAL"
	EffectTemperature     Effect = "TEMPERATURE_REVEAL"
	EffectDistanceReveal  Effect = "DISTANCE_REVEAL"
	EffectDrawAgain       Effect = "DRAW_AGAIN"
	EffectClearVision     Effect = "CLEAR_VISION"
	EffectHalfDistance    Effect = "HALF_DISTANCE"
	EffectAddTime         Effect = "ADD_TIME"

	EffectBlurScreen     Effect = "BLUR_SCREEN"
	EffectNoLabels       Effect = "NO_LABELS"
	EffectNoMovement     Effect = "NO_MOVEMENT"
	EffectDoubleDistance Effect = "DOUBLE_DISTANCE"
	EffectReduceTime     Effect = "REDUCE_TIME"
	EffectBlockCards     Effect = "BLOCK_CARDS"
	EffectDiscardCard    Effect = "DISCARD_CARD"
)

var knownEffects = map[Effect]Kind{
	EffectContinentReveal: KindPowerup,
	EffectHeightReveal:    KindPowerup,
	EffectTemperature:     KindPowerup,
	EffectDistanceReveal:  KindPowerup,
	EffectDrawAgain:       KindPowerup,
	EffectClearVision:     KindPowerup,
	EffectHalfDistance:    KindPowerup,
	EffectAddTime:         KindPowerup,
	EffectBlurScreen:      KindPunishment,
	EffectNoLabels:        KindPunishment,
	EffectNoMovement:      KindPunishment,
	EffectDoubleDistance:  KindPunishment,
	EffectReduceTime:      KindPunishment,
	EffectBlockCards:      KindPunishment,
	EffectDiscardCard:     KindPunishment,
}

// RoundCard modifies one round. It is chosen by the round's submitter.
type RoundCard struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	TimeSeconds int      `yaml:"time_seconds"` // 0 keeps the lobby round time
	Region      *geo.Box `yaml:"region,omitempty"`
	Modifiers   []string `yaml:"modifiers,omitempty"`
}

func (c RoundCard) validate() error {
	if c.ID == "" {
		return fmt.Errorf("round card %q: missing id", c.Name)
	}
	if c.TimeSeconds < 0 {
		return fmt.Errorf("round card %s: negative time", c.ID)
	}
	if c.Region != nil && !c.Region.Valid() {
		return fmt.Errorf("round card %s: invalid region", c.ID)
	}
	return nil
}

// ActionCard is a one-shot powerup or punishment.
type ActionCard struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Kind        Kind       `yaml:"kind"`
	Effect      Effect     `yaml:"effect"`
	DurationSec int        `yaml:"duration_sec,omitempty"`
	Seconds     int        `yaml:"seconds,omitempty"`
	Multiplier  float64    `yaml:"multiplier,omitempty"`
	Reference   *geo.Point `yaml:"reference,omitempty"`
}

// NeedsTarget reports whether the card must be aimed at another player.
func (c ActionCard) NeedsTarget() bool {
	return c.Kind == KindPunishment
}

func (c ActionCard) validate() error {
	if c.ID == "" {
		return fmt.Errorf("action card %q: missing id", c.Name)
	}
	kind, ok := knownEffects[c.Effect]
	if !ok {
		return fmt.Errorf("action card %s: unknown effect %q", c.ID, c.Effect)
	}
	if kind != c.Kind {
		return fmt.Errorf("action card %s: effect %s is a %s, not a %s", c.ID, c.Effect, kind, c.Kind)
	}
	if c.Effect == EffectDistanceReveal && c.Reference == nil {
		return fmt.Errorf("action card %s: distance reveal needs a reference point", c.ID)
	}
	return nil
}

// Package cards holds the round and action card catalog and deals cards to players.
package cards

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalog []byte

var (
	ErrDuplicateCard = errors.New("card already registered")
	ErrEmptyCatalog  = errors.New("catalog has no cards")
)

// File is the YAML layout of a catalog.
type File struct {
	DefaultRoundCard  string       `yaml:"default_round_card"`
	StarterRoundCards []string     `yaml:"starter_round_cards"`
	RoundCards        []RoundCard  `yaml:"round_cards"`
	ActionCards       []ActionCard `yaml:"action_cards"`
}

// Catalog is the registry of known cards. It is safe for concurrent use.
type Catalog struct {
	mu          sync.RWMutex
	roundCards  map[string]RoundCard
	actionCards map[string]ActionCard
	roundIDs    []string
	powerups    []string
	punishments []string
	defaultID   string
	starter     []string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewCatalog returns an empty catalog dealing from a rand seeded with seed.
func NewCatalog(seed int64) *Catalog {
	return &Catalog{
		roundCards:  make(map[string]RoundCard),
		actionCards: make(map[string]ActionCard),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// Default loads the embedded catalog.
func Default(seed int64) (*Catalog, error) {
	return Load(defaultCatalog, seed)
}

// Load parses a YAML catalog.
func Load(data []byte, seed int64) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse card catalog: %w", err)
	}
	return FromFile(f, seed)
}

// FromFile builds a catalog from an already decoded file.
func FromFile(f File, seed int64) (*Catalog, error) {
	c := NewCatalog(seed)
	for _, rc := range f.RoundCards {
		if err := c.RegisterRoundCard(rc); err != nil {
			return nil, err
		}
	}
	for _, ac := range f.ActionCards {
		if err := c.RegisterActionCard(ac); err != nil {
			return nil, err
		}
	}
	if len(c.roundIDs) == 0 || len(c.actionCards) == 0 {
		return nil, ErrEmptyCatalog
	}

	c.defaultID = f.DefaultRoundCard
	if c.defaultID == "" {
		c.defaultID = c.roundIDs[0]
	}
	if _, ok := c.roundCards[c.defaultID]; !ok {
		return nil, fmt.Errorf("default round card %q not in catalog", c.defaultID)
	}
	for _, id := range f.StarterRoundCards {
		if _, ok := c.roundCards[id]; !ok {
			return nil, fmt.Errorf("starter round card %q not in catalog", id)
		}
	}
	c.starter = f.StarterRoundCards

	log.Info().
		Int("round_cards", len(c.roundCards)).
		Int("powerups", len(c.powerups)).
		Int("punishments", len(c.punishments)).
		Msg("card catalog loaded")
	return c, nil
}

// RegisterRoundCard adds a round card to the catalog.
func (c *Catalog) RegisterRoundCard(card RoundCard) error {
	if err := card.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.roundCards[card.ID]; exists {
		return fmt.Errorf("%w: round card %s", ErrDuplicateCard, card.ID)
	}
	c.roundCards[card.ID] = card
	c.roundIDs = append(c.roundIDs, card.ID)
	return nil
}

// RegisterActionCard adds an action card to the catalog.
func (c *Catalog) RegisterActionCard(card ActionCard) error {
	if err := card.validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.actionCards[card.ID]; exists {
		return fmt.Errorf("%w: action card %s", ErrDuplicateCard, card.ID)
	}
	c.actionCards[card.ID] = card
	if card.Kind == KindPunishment {
		c.punishments = append(c.punishments, card.ID)
	} else {
		c.powerups = append(c.powerups, card.ID)
	}
	return nil
}

func (c *Catalog) RoundCard(id string) (RoundCard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.roundCards[id]
	return card, ok
}

func (c *Catalog) ActionCard(id string) (ActionCard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	card, ok := c.actionCards[id]
	return card, ok
}

// DefaultRoundCard is used when a submitter lets the selection time out.
func (c *Catalog) DefaultRoundCard() RoundCard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roundCards[c.defaultID]
}

// AssignRoundCards deals n round cards: the starter set first, random cards after.
func (c *Catalog) AssignRoundCards(playerID string, n int) []RoundCard {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dealt := make([]RoundCard, 0, n)
	for i := 0; i < n; i++ {
		var id string
		if i < len(c.starter) {
			id = c.starter[i]
		} else {
			id = c.roundIDs[c.intn(len(c.roundIDs))]
		}
		dealt = append(dealt, c.roundCards[id])
	}

	log.Debug().Str("player_id", playerID).Int("count", len(dealt)).Msg("assigned round cards")
	return dealt
}

// DealActionCard draws a fresh action card, powerup or punishment with equal odds.
func (c *Catalog) DealActionCard(playerID string) ActionCard {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pool := c.powerups
	if len(c.punishments) > 0 && (len(pool) == 0 || c.intn(2) == 1) {
		pool = c.punishments
	}
	card := c.actionCards[pool[c.intn(len(pool))]]

	log.Debug().Str("player_id", playerID).Str("card_id", card.ID).Msg("dealt action card")
	return card
}

// RoundCards lists every round card sorted by id.
func (c *Catalog) RoundCards() []RoundCard {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]RoundCard, 0, len(c.roundCards))
	for _, card := range c.roundCards {
		out = append(out, card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) intn(n int) int {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.rng.Intn(n)
}

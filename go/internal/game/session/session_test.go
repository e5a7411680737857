package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/geoguess/go/internal/game/cards"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/mcdev12/geoguess/go/internal/game/geo"
	"github.com/mcdev12/geoguess/go/internal/game/scheduler"
	"github.com/mcdev12/geoguess/go/internal/game/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type sent struct {
	PlayerID string // empty for broadcasts
	Event    events.Event
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recordingBroadcaster) Publish(_ uuid.UUID, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{Event: e})
}

func (r *recordingBroadcaster) PublishToPlayer(_ uuid.UUID, playerID string, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{PlayerID: playerID, Event: e})
}

// broadcasts returns the types of every topic-wide event in order.
func (r *recordingBroadcaster) broadcasts() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Type
	for _, s := range r.sent {
		if s.PlayerID == "" {
			out = append(out, s.Event.Type)
		}
	}
	return out
}

func (r *recordingBroadcaster) all(t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, s := range r.sent {
		if s.PlayerID == "" && s.Event.Type == t {
			out = append(out, s.Event)
		}
	}
	return out
}

func (r *recordingBroadcaster) unicasts(playerID string, t events.Type) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, s := range r.sent {
		if s.PlayerID == playerID && s.Event.Type == t {
			out = append(out, s.Event)
		}
	}
	return out
}

type fixedTargets struct {
	mu     sync.Mutex
	points []geo.Point
	next   int
}

func (f *fixedTargets) Next(*geo.Box) geo.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.points[f.next%len(f.points)]
	f.next++
	return p
}

func (f *fixedTargets) Fallback() geo.Point {
	return geo.Point{Lat: -33.8688, Lon: 151.2093}
}

var testRoundCards = []cards.RoundCard{
	{ID: "world", Name: "World"},
	{ID: "flash", Name: "Flash", TimeSeconds: 10},
	{ID: "euro", Name: "Euro Trip", Region: &geo.Box{Name: "Europe", MinLat: 36, MaxLat: 70, MinLon: -10, MaxLon: 40}},
}

var testActionCards = []cards.ActionCard{
	{ID: "continent", Name: "7 Choices", Kind: cards.KindPowerup, Effect: cards.EffectContinentReveal},
	{ID: "height", Name: "High Hopes", Kind: cards.KindPowerup, Effect: cards.EffectHeightReveal},
	{ID: "half", Name: "Cheat Code", Kind: cards.KindPowerup, Effect: cards.EffectHalfDistance, Multiplier: 0.5},
	{ID: "drawagain", Name: "Draw Again", Kind: cards.KindPowerup, Effect: cards.EffectDrawAgain},
	{ID: "double", Name: "Bad Guess", Kind: cards.KindPunishment, Effect: cards.EffectDoubleDistance, Multiplier: 2},
	{ID: "reduce", Name: "Time Rush", Kind: cards.KindPunishment, Effect: cards.EffectReduceTime, Seconds: 15},
	{ID: "block", Name: "No Help", Kind: cards.KindPunishment, Effect: cards.EffectBlockCards},
	{ID: "discard", Name: "Discard", Kind: cards.KindPunishment, Effect: cards.EffectDiscardCard},
}

type stubCatalog struct {
	panicOnDeal bool
}

func (stubCatalog) RoundCard(id string) (cards.RoundCard, bool) {
	for _, c := range testRoundCards {
		if c.ID == id {
			return c, true
		}
	}
	return cards.RoundCard{}, false
}

func (stubCatalog) ActionCard(id string) (cards.ActionCard, bool) {
	for _, c := range testActionCards {
		if c.ID == id {
			return c, true
		}
	}
	return cards.ActionCard{}, false
}

func (stubCatalog) DefaultRoundCard() cards.RoundCard {
	return testRoundCards[0]
}

func (stubCatalog) AssignRoundCards(_ string, n int) []cards.RoundCard {
	return append([]cards.RoundCard(nil), testRoundCards[:n]...)
}

func (c stubCatalog) DealActionCard(string) cards.ActionCard {
	if c.panicOnDeal {
		panic("deck exploded")
	}
	return testActionCards[0]
}

// flakyBroadcaster panics the first time it is asked to publish failOn.
type flakyBroadcaster struct {
	*recordingBroadcaster
	failOn  events.Type
	tripped atomic.Bool
}

func (f *flakyBroadcaster) Publish(id uuid.UUID, e events.Event) {
	if e.Type == f.failOn && f.tripped.CompareAndSwap(false, true) {
		panic("broker unavailable")
	}
	f.recordingBroadcaster.Publish(id, e)
}

// flakyTargets panics on its first draw.
type flakyTargets struct {
	*fixedTargets
	tripped atomic.Bool
}

func (f *flakyTargets) Next(region *geo.Box) geo.Point {
	if f.tripped.CompareAndSwap(false, true) {
		panic("imagery lookup failed")
	}
	return f.fixedTargets.Next(region)
}

type stubHints struct{}

func (stubHints) Elevation(context.Context, geo.Point) (float64, error) {
	return 35, nil
}

func (stubHints) Temperature(context.Context, geo.Point) (float64, error) {
	return 0, errors.New("offline")
}

type recordingRecorder struct {
	ch chan Summary
}

func (r *recordingRecorder) RecordGame(_ context.Context, s Summary) error {
	r.ch <- s
	return nil
}

// --- harness ---

var (
	origin = geo.Point{Lat: 0, Lon: 0}
	paris  = geo.Point{Lat: 48.8566, Lon: 2.3522}
	tokyo  = geo.Point{Lat: 35.6762, Lon: 139.6503}
)

type harness struct {
	t       *testing.T
	clock   *clockwork.FakeClock
	bc      *recordingBroadcaster
	targets *fixedTargets
	rec     *recordingRecorder
	s       *Session
}

func testConfig(cardPhases bool) Config {
	return Config{
		RoundCount:          2,
		RoundTimeSeconds:    30,
		CardPhases:          cardPhases,
		GraceDelay:          time.Second,
		RoundCardTimeout:    10 * time.Second,
		ActionCardTimeout:   10 * time.Second,
		ResultDelay:         2 * time.Second,
		RoundCardsPerPlayer: 2,
		MinPersonalTime:     5 * time.Second,
	}
}

func newHarness(t *testing.T, cfg Config, deps Deps, players ...string) *harness {
	t.Helper()
	clock := clockwork.NewFakeClock()
	h := &harness{
		t:       t,
		clock:   clock,
		bc:      &recordingBroadcaster{},
		targets: &fixedTargets{points: []geo.Point{origin, paris, tokyo}},
		rec:     &recordingRecorder{ch: make(chan Summary, 1)},
	}
	sched := scheduler.New(clock)
	t.Cleanup(sched.Stop)

	deps.Scheduler = sched
	deps.Broadcaster = h.bc
	deps.Targets = h.targets
	deps.Recorder = h.rec
	if deps.Catalog == nil {
		deps.Catalog = stubCatalog{}
	}

	roster := make([]Player, 0, len(players))
	for _, p := range players {
		roster = append(roster, Player{ID: p, Username: p + "-name"})
	}
	s, err := New(uuid.New(), roster, cfg, deps)
	require.NoError(t, err)
	h.s = s
	return h
}

func (h *harness) waitPhase(phase Phase, round int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		snap := h.s.Snapshot()
		return snap.Phase == phase && snap.Round == round
	}, time.Second, 5*time.Millisecond, "waiting for %s round %d", phase, round)
}

// advanceUntil ticks the clock until the session reaches phase and round.
func (h *harness) advanceUntil(phase Phase, round int) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		h.clock.Advance(time.Millisecond)
		snap := h.s.Snapshot()
		return snap.Phase == phase && snap.Round == round
	}, time.Second, 5*time.Millisecond, "advancing to %s round %d", phase, round)
}

// playRound has every player guess the target's neighbourhood.
func (h *harness) playRound(round int, players ...string) {
	h.t.Helper()
	h.waitPhase(PhaseGuessing, round)
	for i, p := range players {
		require.NoError(h.t, h.s.SubmitGuess(p, float64(i), float64(i)))
	}
}

// startRound starts the game and fires the grace timer.
func (h *harness) startRound() {
	h.t.Helper()
	require.NoError(h.t, h.s.Start())
	h.clock.Advance(time.Second)
}

// toGuessing takes a card-phase round from ROUNDCARD_SELECT to GUESSING with
// the world card and everybody skipping.
func (h *harness) toGuessing(round int, submitter string, players ...string) {
	h.t.Helper()
	h.waitPhase(PhaseRoundCardSelect, round)
	require.NoError(h.t, h.s.SubmitRoundCard(submitter, "world"))
	for _, p := range players {
		require.NoError(h.t, h.s.SkipActionCard(p))
	}
	h.waitPhase(PhaseGuessing, round)
}

func (h *harness) give(playerID, cardID string) {
	h.t.Helper()
	card, ok := stubCatalog{}.ActionCard(cardID)
	require.True(h.t, ok)
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	h.s.slots[playerID].ActionCards = append(h.s.slots[playerID].ActionCards, card)
}

// --- tests ---

func TestNewValidatesRoster(t *testing.T) {
	deps := Deps{
		Scheduler:   scheduler.New(clockwork.NewFakeClock()),
		Broadcaster: events.Discard{},
		Targets:     &fixedTargets{points: []geo.Point{origin}},
		Catalog:     stubCatalog{},
	}

	tests := []struct {
		name   string
		roster []Player
	}{
		{"empty", nil},
		{"single", []Player{{ID: "a"}}},
		{"duplicate", []Player{{ID: "a"}, {ID: "a"}}},
		{"blank id", []Player{{ID: "a"}, {ID: ""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(uuid.New(), tt.roster, DefaultConfig(), deps)
			require.ErrorIs(t, err, ErrInvalidRoster)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, CodeValidation, Code(err))
		})
	}

	cfg := DefaultConfig()
	cfg.RoundCount = 0
	_, err := New(uuid.New(), []Player{{ID: "a"}, {ID: "b"}}, cfg, deps)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartTwiceIsPhaseError(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	require.NoError(t, h.s.Start())

	err := h.s.Start()
	assert.ErrorIs(t, err, ErrPhase)
	assert.Equal(t, CodePhase, Code(err))
}

func TestGameWithoutCardPhases(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	require.NoError(t, h.s.SubmitGuess("a", 0.5, 0))
	require.NoError(t, h.s.SubmitGuess("b", 1, 0))
	h.waitPhase(PhaseRoundResult, 1)

	h.clock.Advance(2 * time.Second)
	h.waitPhase(PhaseGuessing, 2)
	require.NoError(t, h.s.SubmitGuess("b", paris.Lat, paris.Lon))
	require.NoError(t, h.s.SubmitGuess("a", 40.4168, -3.7038))

	select {
	case <-h.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}

	assert.Equal(t, []events.Type{
		events.TypeGameStart,
		events.TypeRoundStart,
		events.TypeRoundGuess,
		events.TypeRoundGuess,
		events.TypeRoundResult,
		events.TypeRoundWinner,
		events.TypeRoundStart,
		events.TypeRoundGuess,
		events.TypeRoundGuess,
		events.TypeRoundResult,
		events.TypeRoundWinner,
		events.TypeGameWinner,
	}, h.bc.broadcasts())

	winners := h.bc.all(events.TypeRoundWinner)
	assert.Equal(t, "a-name", winners[0].Data.(events.RoundWinnerPayload).Username)
	assert.Equal(t, "b-name", winners[1].Data.(events.RoundWinnerPayload).Username)
	assert.Equal(t, 0, winners[1].Data.(events.RoundWinnerPayload).Distance)

	// a: ~55.6 km + ~1053 km, b: ~111 km + 0
	game := h.bc.all(events.TypeGameWinner)[0].Data.(events.GameWinnerPayload)
	assert.Equal(t, "b-name", game.Username)

	results := h.bc.all(events.TypeRoundResult)
	last := results[1].Data.(events.RoundResultPayload)
	assert.True(t, last.GameEnd)
	assert.False(t, results[0].Data.(events.RoundResultPayload).GameEnd)
	assert.Equal(t, paris, last.PerPlayer[0].Target)

	assert.Equal(t, PhaseGameEnd, h.s.Snapshot().Phase)

	select {
	case sum := <-h.rec.ch:
		assert.Equal(t, "b", sum.Winner)
		assert.Len(t, sum.Players, 2)
		assert.Len(t, sum.Players[0].Guesses, 2)
		assert.Equal(t, []geo.Point{origin, paris}, sum.Targets)
	case <-time.After(time.Second):
		t.Fatal("game was not recorded")
	}
}

func TestRoundWinnerIgnoresTimeouts(t *testing.T) {
	cfg := testConfig(false)
	cfg.RoundCount = 1
	h := newHarness(t, cfg, Deps{}, "a", "b", "c")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	// distances to the origin: a ~111 km, b ~56 km, c never guesses
	require.NoError(t, h.s.SubmitGuess("a", 1, 0))
	require.NoError(t, h.s.SubmitGuess("b", 0.5, 0))

	h.clock.Advance(30 * time.Second)
	h.waitPhase(PhaseGameEnd, 1)

	result := h.bc.all(events.TypeRoundResult)[0].Data.(events.RoundResultPayload)
	require.Len(t, result.PerPlayer, 3)
	c := result.PerPlayer[2]
	assert.Equal(t, "c-name", c.Username)
	assert.True(t, c.Guess.Timeout)
	assert.Nil(t, c.Guess.Lat)
	assert.Equal(t, scoring.TimeoutPenalty, c.Score)

	winner := h.bc.all(events.TypeRoundWinner)[0].Data.(events.RoundWinnerPayload)
	assert.Equal(t, "b-name", winner.Username)
	assert.Equal(t, "b-name", h.bc.all(events.TypeGameWinner)[0].Data.(events.GameWinnerPayload).Username)

	// exactly one guess per roster member
	assert.Len(t, h.s.Guesses(1), 3)
}

func TestAllTimeoutsHaveNoWinners(t *testing.T) {
	cfg := testConfig(false)
	cfg.RoundCount = 1
	h := newHarness(t, cfg, Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	h.clock.Advance(30 * time.Second)
	h.waitPhase(PhaseGameEnd, 1)

	assert.Empty(t, h.bc.all(events.TypeRoundWinner))
	assert.Empty(t, h.bc.all(events.TypeGameWinner))
	assert.Len(t, h.bc.all(events.TypeRoundResult), 1)
}

func TestStaleTimerIsIgnored(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	require.NoError(t, h.s.SubmitGuess("a", 1, 1))
	require.NoError(t, h.s.SubmitGuess("b", 2, 2))
	h.waitPhase(PhaseRoundResult, 1)

	// the guessing timeout racing the early end
	h.s.onTimer(scheduler.Stamp{Phase: string(PhaseGuessing), Round: 1})

	assert.Equal(t, PhaseRoundResult, h.s.Snapshot().Phase)
	assert.Len(t, h.bc.all(events.TypeRoundResult), 1)
	assert.Len(t, h.s.Guesses(1), 2)
}

func TestEndRoundIsIdempotent(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)
	require.NoError(t, h.s.SubmitGuess("a", 1, 1))
	require.NoError(t, h.s.SubmitGuess("b", 2, 2))

	h.s.mu.Lock()
	err := h.s.endRound()
	h.s.mu.Unlock()

	require.NoError(t, err)
	assert.Len(t, h.bc.all(events.TypeRoundResult), 1)
}

func TestSubmitGuessErrors(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")

	err := h.s.SubmitGuess("a", 1, 1)
	assert.ErrorIs(t, err, ErrPhase)

	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	assert.ErrorIs(t, h.s.SubmitGuess("z", 1, 1), ErrAuthorization)
	assert.ErrorIs(t, h.s.SubmitGuess("a", 91, 0), ErrValidation)
	require.NoError(t, h.s.SubmitGuess("a", 1, 1))

	err = h.s.SubmitGuess("a", 2, 2)
	assert.ErrorIs(t, err, ErrAlreadyGuessed)
	assert.Equal(t, CodeDuplicateAction, Code(err))
	assert.Len(t, h.s.Guesses(1), 1)
}

func TestGuessIsBroadcastWithoutLocation(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)
	require.NoError(t, h.s.SubmitGuess("a", 1, 0))

	public := h.bc.all(events.TypeRoundGuess)[0].Data.(events.RoundGuessPayload)
	assert.Equal(t, "a-name", public.Username)
	assert.Nil(t, public.Lat)
	assert.Nil(t, public.Distance)

	private := h.bc.unicasts("a", events.TypeRoundGuess)[0].Data.(events.RoundGuessPayload)
	require.NotNil(t, private.Distance)
	assert.InDelta(t, 111_195, *private.Distance, 100)
}

func TestRoundNumbersIncreaseAndTargetsAreFresh(t *testing.T) {
	cfg := testConfig(false)
	cfg.RoundCount = 3
	h := newHarness(t, cfg, Deps{}, "a", "b")
	h.targets.points = []geo.Point{origin, origin, paris, tokyo}
	h.startRound()

	for round := 1; round <= 3; round++ {
		h.waitPhase(PhaseGuessing, round)
		h.clock.Advance(30 * time.Second)
		if round < 3 {
			h.waitPhase(PhaseRoundResult, round)
			h.clock.Advance(2 * time.Second)
		}
	}
	h.waitPhase(PhaseGameEnd, 3)

	var rounds []int
	for _, e := range h.bc.all(events.TypeRoundStart) {
		rounds = append(rounds, e.Data.(events.RoundStartPayload).Round)
	}
	assert.Equal(t, []int{1, 2, 3}, rounds)

	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	assert.Equal(t, []geo.Point{origin, paris, tokyo}, h.s.targets)
}

func TestRoundCardSelection(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)

	snap := h.s.Snapshot()
	assert.Equal(t, "a", snap.Submitter)
	assert.Equal(t, []string{"world", "flash"}, snap.Players[0].RoundCards)

	assert.ErrorIs(t, h.s.SubmitRoundCard("b", "world"), ErrNotYourTurn)
	assert.ErrorIs(t, h.s.SubmitRoundCard("a", "nope"), ErrNotFound)
	assert.ErrorIs(t, h.s.SubmitRoundCard("a", "euro"), ErrCardNotOwned)
	assert.ErrorIs(t, h.s.SubmitGuess("a", 1, 1), ErrPhase)
	assert.ErrorIs(t, h.s.SkipActionCard("a"), ErrPhase)

	require.NoError(t, h.s.SubmitRoundCard("a", "flash"))
	h.waitPhase(PhaseActionCardPlay, 1)

	selected := h.bc.all(events.TypeRoundCardSelected)[0].Data.(events.RoundCardSelectedPayload)
	assert.Equal(t, "flash", selected.CardID)
	assert.Equal(t, 10, selected.RoundTime)
	assert.Equal(t, []string{"world"}, h.s.Snapshot().Players[0].RoundCards)

	require.NoError(t, h.s.SkipActionCard("a"))
	assert.ErrorIs(t, h.s.SkipActionCard("a"), ErrAlreadyActed)
	require.NoError(t, h.s.SkipActionCard("b"))
	h.waitPhase(PhaseGuessing, 1)

	start := h.bc.all(events.TypeRoundStart)[0].Data.(events.RoundStartPayload)
	assert.Equal(t, 10, start.RoundTime)

	assert.Equal(t, []events.Type{
		events.TypeGameStart,
		events.TypeRoundCardSelectStart,
		events.TypeRoundCardSelected,
		events.TypeActionCardPhaseStart,
		events.TypeActionCardSkipped,
		events.TypeActionCardSkipped,
		events.TypeRoundStart,
	}, h.bc.broadcasts())
}

func TestSubmitterRotates(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.startRound()
	h.toGuessing(1, "a", "a", "b")
	require.NoError(t, h.s.SubmitGuess("a", 1, 1))
	require.NoError(t, h.s.SubmitGuess("b", 1, 1))
	h.waitPhase(PhaseRoundResult, 1)

	h.clock.Advance(2 * time.Second)
	h.waitPhase(PhaseRoundCardSelect, 2)
	assert.Equal(t, "b", h.s.Snapshot().Submitter)
}

func TestPhaseTimeoutsUseDefaults(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)

	h.clock.Advance(10 * time.Second)
	h.waitPhase(PhaseActionCardPlay, 1)
	selected := h.bc.all(events.TypeRoundCardSelected)[0].Data.(events.RoundCardSelectedPayload)
	assert.Equal(t, "world", selected.CardID)

	require.NoError(t, h.s.SkipActionCard("a"))
	h.clock.Advance(10 * time.Second)
	h.waitPhase(PhaseGuessing, 1)

	skipped := h.bc.all(events.TypeActionCardSkipped)
	require.Len(t, skipped, 2)
	assert.Equal(t, "timeout", skipped[1].Data.(events.ActionCardSkippedPayload).Reason)
}

func TestPunishmentRules(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b", "c")
	h.give("a", "double")
	h.give("c", "double")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	assert.ErrorIs(t, h.s.SubmitActionCard("a", "double", ""), ErrTargetRequired)
	assert.ErrorIs(t, h.s.SubmitActionCard("a", "double", "a"), ErrSelfTarget)
	assert.ErrorIs(t, h.s.SubmitActionCard("a", "double", "z"), ErrUnknownPlayer)
	assert.ErrorIs(t, h.s.SubmitActionCard("a", "block", "b"), ErrCardNotOwned)
	assert.ErrorIs(t, h.s.SubmitActionCard("a", "nope", "b"), ErrUnknownCard)

	require.NoError(t, h.s.SubmitActionCard("a", "double", "b"))
	assert.ErrorIs(t, h.s.SubmitActionCard("a", "continent", ""), ErrAlreadyActed)
	assert.ErrorIs(t, h.s.SubmitActionCard("c", "double", "b"), ErrAlreadyPunished)

	played := h.bc.all(events.TypeActionCardPlayed)[0].Data.(events.ActionCardPlayedPayload)
	assert.Equal(t, "a-name", played.Username)
	assert.Equal(t, "b-name", played.TargetUsername)
	assert.Equal(t, "DOUBLE_DISTANCE", played.Effect)

	replacement := h.bc.unicasts("a", events.TypeActionCardReplaced)
	require.Len(t, replacement, 1)
	assert.Equal(t, "continent", replacement[0].Data.(events.ActionCardReplacementPayload).Cards[0].ID)

	require.NoError(t, h.s.SkipActionCard("b"))
	require.NoError(t, h.s.SkipActionCard("c"))
	h.waitPhase(PhaseGuessing, 1)

	require.NoError(t, h.s.SubmitGuess("b", 1, 0))
	guesses := h.s.Guesses(1)
	require.Len(t, guesses, 1)
	assert.Equal(t, guesses[0].Distance*2, guesses[0].Scored)
}

func TestBlockCards(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.give("a", "block")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SubmitActionCard("a", "block", "b"))
	h.waitPhase(PhaseGuessing, 1)

	skipped := h.bc.all(events.TypeActionCardSkipped)
	require.Len(t, skipped, 1)
	assert.Equal(t, events.ActionCardSkippedPayload{Round: 1, Username: "b-name", Reason: "blocked"}, skipped[0].Data)
	assert.ErrorIs(t, h.s.SubmitActionCard("b", "continent", ""), ErrPhase)
}

func TestBlockedPlayerCannotPlay(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b", "c")
	h.give("a", "block")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SubmitActionCard("a", "block", "b"))
	err := h.s.SubmitActionCard("b", "continent", "")
	assert.ErrorIs(t, err, ErrCardsBlocked)
	assert.Equal(t, CodeAuthorization, Code(err))
	assert.Equal(t, PhaseActionCardPlay, h.s.Snapshot().Phase)
}

func TestContinentHintIsUnicast(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.targets.points = []geo.Point{paris}
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	// everyone is dealt the continent card at start
	require.NoError(t, h.s.SubmitActionCard("b", "continent", ""))

	hints := h.bc.unicasts("b", events.TypeHint)
	require.Len(t, hints, 1)
	assert.Equal(t, string(geo.Europe), hints[0].Data.(events.HintPayload).Value)
	assert.Empty(t, h.bc.unicasts("a", events.TypeHint))
	assert.Empty(t, h.bc.all(events.TypeHint))
}

func TestHeightHintResolvesAsync(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{Hints: stubHints{}}, "a", "b")
	h.give("a", "height")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SubmitActionCard("a", "height", ""))

	require.Eventually(t, func() bool {
		return len(h.bc.unicasts("a", events.TypeHint)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "35 m", h.bc.unicasts("a", events.TypeHint)[0].Data.(events.HintPayload).Value)
}

func TestReduceTimeShortensPersonalDeadline(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.give("a", "reduce")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)
	require.NoError(t, h.s.SubmitActionCard("a", "reduce", "b"))
	require.NoError(t, h.s.SkipActionCard("b"))
	h.waitPhase(PhaseGuessing, 1)

	h.clock.Advance(16 * time.Second)

	err := h.s.SubmitGuess("b", 1, 1)
	assert.ErrorIs(t, err, ErrTimeUp)
	assert.Equal(t, CodePhase, Code(err))
	require.NoError(t, h.s.SubmitGuess("a", 1, 1))
}

func TestDrawAgainDealsExtraCard(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.give("a", "drawagain")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SubmitActionCard("a", "drawagain", ""))

	replacement := h.bc.unicasts("a", events.TypeActionCardReplaced)[0].Data.(events.ActionCardReplacementPayload)
	assert.Len(t, replacement.Cards, 2)
	assert.Len(t, h.s.Snapshot().Players[0].ActionCards, 3)
}

func TestDiscardRemovesRoundCard(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.give("a", "discard")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SubmitActionCard("a", "discard", "b"))

	assert.Equal(t, []string{"world"}, h.s.Snapshot().Players[1].RoundCards)
	played := h.bc.all(events.TypeActionCardPlayed)[0].Data.(events.ActionCardPlayedPayload)
	assert.Equal(t, "Flash", played.Value)
}

func TestTransitionFailureForcesAdvance(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{Catalog: stubCatalog{panicOnDeal: false}}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	h.s.mu.Lock()
	h.s.deps.Catalog = stubCatalog{panicOnDeal: true}
	h.s.mu.Unlock()

	require.NoError(t, h.s.SubmitActionCard("a", "continent", ""))
	h.clock.Advance(time.Millisecond)
	h.waitPhase(PhaseGuessing, 1)

	assert.False(t, h.s.Snapshot().Aborted)
}

func TestFailedResultBroadcastKeepsGameMoving(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	flaky := &flakyBroadcaster{recordingBroadcaster: h.bc, failOn: events.TypeRoundResult}
	h.s.mu.Lock()
	h.s.deps.Broadcaster = flaky
	h.s.mu.Unlock()

	h.startRound()
	h.playRound(1, "a", "b")
	h.waitPhase(PhaseRoundResult, 1)

	_, _, pending := h.s.deps.Scheduler.Pending(h.s.ID())
	assert.True(t, pending, "result delay must stay armed")

	h.clock.Advance(2 * time.Second)
	h.playRound(2, "a", "b")

	select {
	case <-h.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}
	assert.True(t, flaky.tripped.Load())

	snap := h.s.Snapshot()
	assert.False(t, snap.Aborted)
	assert.Equal(t, PhaseGameEnd, snap.Phase)

	results := h.bc.all(events.TypeRoundResult)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Data.(events.RoundResultPayload).Round)
	assert.Len(t, h.bc.all(events.TypeGameWinner), 1)
	assert.Len(t, h.s.slots["a"].Cumulative, 2)
}

func TestFailedLastRoundBroadcastStillFinishes(t *testing.T) {
	cfg := testConfig(false)
	cfg.RoundCount = 1
	h := newHarness(t, cfg, Deps{}, "a", "b")
	flaky := &flakyBroadcaster{recordingBroadcaster: h.bc, failOn: events.TypeGameWinner}
	h.s.mu.Lock()
	h.s.deps.Broadcaster = flaky
	h.s.mu.Unlock()

	h.startRound()
	h.playRound(1, "a", "b")

	select {
	case <-h.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}
	assert.False(t, h.s.Snapshot().Aborted)

	select {
	case sum := <-h.rec.ch:
		assert.Equal(t, "a", sum.Winner)
	case <-time.After(time.Second):
		t.Fatal("finished game was not recorded")
	}
}

func TestFailedTargetDrawIsRetried(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	flaky := &flakyTargets{fixedTargets: h.targets}
	h.s.mu.Lock()
	h.s.deps.Targets = flaky
	h.s.mu.Unlock()

	h.startRound()
	h.advanceUntil(PhaseGuessing, 1)
	assert.True(t, flaky.tripped.Load())

	snap := h.s.Snapshot()
	assert.False(t, snap.Aborted)
	starts := h.bc.all(events.TypeRoundStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 1, starts[0].Data.(events.RoundStartPayload).Round)

	h.playRound(1, "a", "b")
	h.waitPhase(PhaseRoundResult, 1)
}

func TestExhaustedDrawsNeverRepeatTargets(t *testing.T) {
	cfg := testConfig(false)
	cfg.RoundCount = 3
	h := newHarness(t, cfg, Deps{}, "a", "b")
	h.targets.points = []geo.Point{origin}

	h.startRound()
	for round := 1; round <= cfg.RoundCount; round++ {
		h.playRound(round, "a", "b")
		if round < cfg.RoundCount {
			h.waitPhase(PhaseRoundResult, round)
			h.clock.Advance(2 * time.Second)
		}
	}
	select {
	case <-h.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}

	seen := make(map[geo.Point]bool)
	for _, e := range h.bc.all(events.TypeRoundResult) {
		target := e.Data.(events.RoundResultPayload).PerPlayer[0].Target
		assert.False(t, seen[target], "target %v reused", target)
		seen[target] = true
	}
	assert.Len(t, seen, 3)
	assert.True(t, seen[origin])
	assert.True(t, seen[h.targets.Fallback()])
}

func TestConcurrentGuessesAreAllRecorded(t *testing.T) {
	players := make([]string, 16)
	for i := range players {
		players[i] = fmt.Sprintf("p%02d", i)
	}
	h := newHarness(t, testConfig(false), Deps{}, players...)
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	var wg sync.WaitGroup
	for i, p := range players {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			assert.NoError(t, h.s.SubmitGuess(p, float64(i), float64(-i)))
		}(i, p)
	}
	wg.Wait()
	h.waitPhase(PhaseRoundResult, 1)

	guesses := h.s.Guesses(1)
	require.Len(t, guesses, len(players))
	for _, g := range guesses {
		assert.False(t, g.Timeout(), "%s was recorded as a timeout", g.PlayerID)
	}
	assert.Len(t, h.bc.all(events.TypeRoundGuess), len(players))
	assert.Len(t, h.bc.all(events.TypeRoundResult), 1)
	assert.Len(t, h.bc.all(events.TypeRoundWinner), 1)
}

func TestLeaveAbortsWhenEveryoneIsGone(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseGuessing, 1)

	require.NoError(t, h.s.Leave("a"))
	assert.Equal(t, PhaseGuessing, h.s.Snapshot().Phase)
	assert.ErrorIs(t, h.s.Leave("z"), ErrNotInRoster)

	require.NoError(t, h.s.Leave("b"))

	select {
	case <-h.s.Done():
	default:
		t.Fatal("session not done after everyone left")
	}
	snap := h.s.Snapshot()
	assert.True(t, snap.Aborted)
	assert.Equal(t, "all players disconnected", snap.Reason)

	aborted := h.bc.all(events.TypeGameAborted)
	require.Len(t, aborted, 1)
	assert.ErrorIs(t, h.s.SubmitGuess("a", 1, 1), ErrSessionEnded)

	select {
	case sum := <-h.rec.ch:
		assert.True(t, sum.Aborted)
	case <-time.After(time.Second):
		t.Fatal("aborted game was not recorded")
	}
}

func TestLeaveDuringActionPhaseSkips(t *testing.T) {
	h := newHarness(t, testConfig(true), Deps{}, "a", "b")
	h.startRound()
	h.waitPhase(PhaseRoundCardSelect, 1)
	require.NoError(t, h.s.SubmitRoundCard("a", "world"))
	h.waitPhase(PhaseActionCardPlay, 1)

	require.NoError(t, h.s.SkipActionCard("a"))
	require.NoError(t, h.s.Leave("b"))
	h.waitPhase(PhaseGuessing, 1)

	skipped := h.bc.all(events.TypeActionCardSkipped)
	require.Len(t, skipped, 2)
	assert.Equal(t, "disconnected", skipped[1].Data.(events.ActionCardSkippedPayload).Reason)
}

func TestAbortCancelsTimer(t *testing.T) {
	h := newHarness(t, testConfig(false), Deps{}, "a", "b")
	require.NoError(t, h.s.Start())

	h.s.Abort("admin")
	h.clock.Advance(time.Minute)

	assert.Equal(t, PhaseGameEnd, h.s.Snapshot().Phase)
	assert.Empty(t, h.bc.all(events.TypeRoundStart))
	assert.Equal(t, 0, h.s.deps.Scheduler.Len())
}

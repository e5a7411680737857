// Package scoring computes guess distances and round/game outcomes.
//
// Scores are golf-style: a lower distance is always better.
package scoring

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// TimeoutPenalty is the distance charged for a missing guess. It is larger
// than any great-circle distance on earth (~20,015 km).
const TimeoutPenalty = 25_000_000

// Distance returns the haversine distance in meters between a guess and the target.
func Distance(guessLat, guessLon, targetLat, targetLon float64) int {
	lat1 := toRadians(guessLat)
	lat2 := toRadians(targetLat)
	dLat := toRadians(targetLat - guessLat)
	dLon := toRadians(targetLon - guessLon)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return int(math.Round(earthRadiusKm * c * 1000))
}

// MaxScored is the worst score a real guess can get, so a placed guess
// always beats a timeout however it was multiplied.
const MaxScored = TimeoutPenalty - 1

// Apply scales a raw distance by a multiplier, capped at MaxScored.
// Non-positive multipliers are ignored.
func Apply(distance int, multiplier float64) int {
	scored := float64(distance)
	if multiplier > 0 {
		scored = math.Round(scored * multiplier)
	}
	if scored > MaxScored {
		return MaxScored
	}
	return int(scored)
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Entry is one player's result for a single round.
type Entry struct {
	PlayerID    string
	Distance    int
	Timeout     bool
	SubmittedAt time.Time
	Order       int // roster position, last-resort tie-break
}

// RoundWinner picks the closest non-timeout guess. Ties go to the earliest
// submission. ok is false when every entry timed out.
func RoundWinner(entries []Entry) (winner Entry, ok bool) {
	for _, e := range entries {
		if e.Timeout {
			continue
		}
		if !ok || better(e, winner) {
			winner, ok = e, true
		}
	}
	return winner, ok
}

func better(a, b Entry) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.Order < b.Order
}

// Standing is a player's cumulative score after each completed round.
type Standing struct {
	PlayerID string
	// Cumulative[i] is the running total after round i+1.
	Cumulative []int
	Order      int
}

// Total returns the final cumulative distance.
func (s Standing) Total() int {
	if len(s.Cumulative) == 0 {
		return 0
	}
	return s.Cumulative[len(s.Cumulative)-1]
}

// GameWinner picks the lowest cumulative total. Tied players are separated by
// the first round at which their running totals differ, the lower one winning;
// roster order decides after that. ok is false when nobody placed a single
// real guess over the whole game.
func GameWinner(standings []Standing) (winner Standing, ok bool) {
	for _, s := range standings {
		if allTimeouts(s) {
			continue
		}
		if !ok || ahead(s, winner) {
			winner, ok = s, true
		}
	}
	return winner, ok
}

func allTimeouts(s Standing) bool {
	return len(s.Cumulative) > 0 && s.Total() == len(s.Cumulative)*TimeoutPenalty
}

func ahead(a, b Standing) bool {
	if a.Total() != b.Total() {
		return a.Total() < b.Total()
	}
	n := min(len(a.Cumulative), len(b.Cumulative))
	for i := 0; i < n; i++ {
		if a.Cumulative[i] != b.Cumulative[i] {
			return a.Cumulative[i] < b.Cumulative[i]
		}
	}
	return a.Order < b.Order
}

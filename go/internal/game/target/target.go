// Package target draws the secret location of each round.
package target

import (
	"math/rand"
	"sync"

	"github.com/mcdev12/geoguess/go/internal/game/geo"
)

// Coverage areas with dense street-level imagery.
var DefaultCoverage = []geo.Box{
	{Name: "New York", MinLat: 40.70, MaxLat: 40.80, MinLon: -74.02, MaxLon: -73.93},
	{Name: "Los Angeles", MinLat: 34.00, MaxLat: 34.10, MinLon: -118.30, MaxLon: -118.20},
	{Name: "London", MinLat: 51.48, MaxLat: 51.53, MinLon: -0.15, MaxLon: -0.05},
	{Name: "Paris", MinLat: 48.84, MaxLat: 48.88, MinLon: 2.30, MaxLon: 2.38},
	{Name: "Tokyo", MinLat: 35.65, MaxLat: 35.72, MinLon: 139.70, MaxLon: 139.80},
}

// Fallbacks are well-known locations used when no target could be drawn.
var Fallbacks = []geo.Point{
	{Lat: 51.5074, Lon: -0.1278},
	{Lat: 40.7128, Lon: -74.0060},
	{Lat: 48.8566, Lon: 2.3522},
	{Lat: 35.6762, Lon: 139.6503},
	{Lat: -33.8688, Lon: 151.2093},
}

var world = geo.Box{Name: "World", MinLat: -85, MaxLat: 85, MinLon: -180, MaxLon: 180}

// Generator is a seedable source of round targets. It is safe for concurrent use.
type Generator struct {
	mu            sync.Mutex
	rng           *rand.Rand
	coverage      []geo.Box
	coverageRatio float64
}

type Option func(*Generator)

// WithCoverage replaces the coverage boxes.
func WithCoverage(boxes []geo.Box) Option {
	return func(g *Generator) { g.coverage = boxes }
}

// WithCoverageRatio sets the share of targets drawn from coverage boxes.
func WithCoverageRatio(r float64) Option {
	return func(g *Generator) { g.coverageRatio = r }
}

func NewGenerator(seed int64, opts ...Option) *Generator {
	g := &Generator{
		rng:           rand.New(rand.NewSource(seed)),
		coverage:      DefaultCoverage,
		coverageRatio: 0.7,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next draws a target. A non-nil region constrains the draw to that box.
func (g *Generator) Next(region *geo.Box) geo.Point {
	g.mu.Lock()
	defer g.mu.Unlock()

	if region != nil && region.Valid() {
		return region.Lerp(g.rng.Float64(), g.rng.Float64())
	}
	if len(g.coverage) > 0 && g.rng.Float64() < g.coverageRatio {
		box := g.coverage[g.rng.Intn(len(g.coverage))]
		return box.Lerp(g.rng.Float64(), g.rng.Float64())
	}
	return world.Lerp(g.rng.Float64(), g.rng.Float64())
}

// Fallback returns one of the fixed fallback locations.
func (g *Generator) Fallback() geo.Point {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Fallbacks[g.rng.Intn(len(Fallbacks))]
}

// Package geo holds the coordinate primitives shared by target generation,
// scoring and hint lookups.
package geo

import (
	"errors"
	"fmt"
	"math"
)

var ErrOutOfRange = errors.New("coordinates out of range")

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate reports whether p is a usable coordinate.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return fmt.Errorf("%w: NaN", ErrOutOfRange)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: lat %.4f", ErrOutOfRange, p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: lon %.4f", ErrOutOfRange, p.Lon)
	}
	return nil
}

// Box is a lat/lon bounding box. Boxes crossing the antimeridian are not supported.
type Box struct {
	Name   string  `json:"name" yaml:"name"`
	MinLat float64 `json:"min_lat" yaml:"min_lat"`
	MaxLat float64 `json:"max_lat" yaml:"max_lat"`
	MinLon float64 `json:"min_lon" yaml:"min_lon"`
	MaxLon float64 `json:"max_lon" yaml:"max_lon"`
}

func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

func (b Box) Valid() bool {
	return b.MinLat < b.MaxLat && b.MinLon < b.MaxLon &&
		b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}

// Lerp maps fractions in [0,1) onto the box.
func (b Box) Lerp(latFrac, lonFrac float64) Point {
	return Point{
		Lat: b.MinLat + latFrac*(b.MaxLat-b.MinLat),
		Lon: b.MinLon + lonFrac*(b.MaxLon-b.MinLon),
	}
}

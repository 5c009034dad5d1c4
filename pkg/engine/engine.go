// Package engine provides the positional providers of the pipeline. Two
// implementations share one capability contract: the simplified engine
// computes deterministic pseudo-positions offline, the swiss engine wraps
// the precision ephemeris backend under the process-wide guard.
package engine

import (
	"context"
	"math"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

// JD of the J2000.0 epoch (2000-01-01T12:00 UT).
const J2000 = 2451545.0

// RawPlanet is one computed body before sign and house attribution.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type RawPlanet struct {
	Code           string
	Longitude      float64
	SpeedLongitude float64
	Retrograde     bool
}

// HouseAngles is the house computation output: twelve cusps in house
// order plus the chart angles, all normalized to [0, 360).
//
//nolint:govet // fieldalignment: struct layout is human-readable
type HouseAngles struct {
	Cusps      [12]float64
	Ascendant  float64
	MC         float64
	SystemName contracts.HouseSystem
}

// Options carries the algorithmic regime of one computation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Options struct {
	Zodiac    contracts.Zodiac
	Ayanamsa  contracts.Ayanamsa
	Frame     contracts.Frame
	Lat       float64
	Lon       float64
	AltitudeM float64
}

// Provider is the capability shared by both engines. The assembler
// selects a provider once; nothing deeper in the stack branches on the
// engine again.
type Provider interface {
	Name() contracts.Engine
	CalculatePlanets(ctx context.Context, jdUT float64, opts Options) ([]RawPlanet, error)
	CalculateHouses(ctx context.Context, jdUT, lat, lon float64, system contracts.HouseSystem, opts Options) (HouseAngles, error)
}

// Normalize360 maps any angle onto [0, 360).
func Normalize360(deg float64) float64 {
	m := math.Mod(deg, 360)
	if m < 0 {
		m += 360
	}
	if m == 360 {
		return 0
	}
	return m
}

// ayanamsaNames is the effective-value label for debug logging.
func ayanamsaLabel(opts Options) string {
	if opts.Zodiac != contracts.ZodiacSidereal {
		return "n/a"
	}
	return string(opts.Ayanamsa)
}

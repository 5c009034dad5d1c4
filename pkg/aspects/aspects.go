// Package aspects enumerates the major aspects of a chart from raw
// longitudes and a versioned ruleset. The calculator is pure: the same
// positions and definitions always produce the same sorted output.
package aspects

import (
	"math"
	"sort"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
)

// Position is one body entering the aspect search.
type Position struct {
	Code      string
	Longitude float64
}

// Calculate enumerates every unordered pair of positions against the
// major definitions of the ruleset and keeps the pairs whose deviation
// fits the resolved orb. Output is sorted by (aspect_code, planet_a,
// planet_b).
func Calculate(positions []Position, defs []contracts.AspectDef, school contracts.AspectSchool, sink observability.MetricsSink) []contracts.AspectResult {
	sink = observability.OrNop(sink)

	majors := make([]contracts.AspectDef, 0, len(defs))
	for _, d := range defs {
		if contracts.MajorAspects[d.Code] {
			majors = append(majors, d)
		}
	}

	var out []contracts.AspectResult
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			a, b := orderPair(positions[i], positions[j])
			dev := deviation(a.Longitude, b.Longitude)
			for _, d := range majors {
				orbUsed := math.Abs(dev - d.Angle)
				orbMax := resolveOrb(d, a.Code, b.Code)
				if orbUsed > orbMax {
					continue
				}
				out = append(out, contracts.AspectResult{
					AspectCode: d.Code,
					PlanetA:    a.Code,
					PlanetB:    b.Code,
					Angle:      d.Angle,
					Orb:        orbUsed,
					OrbUsed:    orbUsed,
					OrbMax:     orbMax,
				})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AspectCode != out[j].AspectCode {
			return out[i].AspectCode < out[j].AspectCode
		}
		if out[i].PlanetA != out[j].PlanetA {
			return out[i].PlanetA < out[j].PlanetA
		}
		return out[i].PlanetB < out[j].PlanetB
	})

	pairs := int64(len(positions)) * int64(len(positions)-1) / 2
	sink.IncrCounter("aspects_calculated_total_"+string(school), int64(len(out)))
	sink.IncrCounter("aspects_rejected_orb_total", pairs*int64(len(majors))-int64(len(out)))

	return out
}

// resolveOrb walks the strict priority chain: pair override, then
// luminary override, then the definition default.
func resolveOrb(d contracts.AspectDef, a, b string) float64 {
	if d.OrbPairOverrides != nil {
		if orb, ok := d.OrbPairOverrides[a+"-"+b]; ok {
			return orb
		}
	}
	if d.OrbLuminaries != nil && (contracts.Luminaries[a] || contracts.Luminaries[b]) {
		return *d.OrbLuminaries
	}
	return d.DefaultOrbDeg
}

// deviation is the angular separation of two longitudes folded onto
// [0, 180].
func deviation(la, lb float64) float64 {
	d := math.Mod(math.Abs(la-lb), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func orderPair(p, q Position) (Position, Position) {
	if p.Code <= q.Code {
		return p, q
	}
	return q, p
}

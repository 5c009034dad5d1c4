package contracts

import "encoding/json"

// ReferenceData is the versioned bundle of planets, signs, houses and the
// aspect ruleset. It is seeded once by a collaborator and read-only at
// compute time.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type ReferenceData struct {
	Version        string      `json:"version" yaml:"version"`
	RulesetVersion string      `json:"ruleset_version" yaml:"ruleset_version"`
	Planets        []Planet    `json:"planets" yaml:"planets"`
	Signs          []Sign      `json:"signs" yaml:"signs"`
	Houses         []House     `json:"houses" yaml:"houses"`
	Aspects        []AspectDef `json:"aspects" yaml:"aspects"`
}

// Planet names one computable body.
type Planet struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// Sign names one zodiac sign. Signs are ordered aries through pisces.
type Sign struct {
	Code string `json:"code" yaml:"code"`
	Name string `json:"name" yaml:"name"`
}

// House names one of the twelve houses.
type House struct {
	Number int    `json:"number" yaml:"number"`
	Name   string `json:"name" yaml:"name"`
}

// AspectDef is one ruleset entry: a nominal angle plus the orb thresholds
// resolved by the priority chain pair override > luminary > default.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type AspectDef struct {
	Code             string             `json:"code" yaml:"code"`
	Angle            float64            `json:"angle" yaml:"angle"`
	DefaultOrbDeg    float64            `json:"default_orb_deg" yaml:"default_orb_deg"`
	OrbLuminaries    *float64           `json:"orb_luminaries,omitempty" yaml:"orb_luminaries,omitempty"`
	OrbPairOverrides map[string]float64 `json:"orb_pair_overrides,omitempty" yaml:"orb_pair_overrides,omitempty"`
}

// UnmarshalJSON accepts the legacy ruleset keys orb_pairs and
// orb_overrides as aliases of orb_pair_overrides. Canonical wins when both
// are present.
func (d *AspectDef) UnmarshalJSON(data []byte) error {
	type alias AspectDef
	var a struct {
		alias
		OrbPairs     map[string]float64 `json:"orb_pairs,omitempty"`
		OrbOverrides map[string]float64 `json:"orb_overrides,omitempty"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.alias.OrbPairOverrides == nil {
		if a.OrbPairs != nil {
			a.alias.OrbPairOverrides = a.OrbPairs
		} else if a.OrbOverrides != nil {
			a.alias.OrbPairOverrides = a.OrbOverrides
		}
	}
	*d = AspectDef(a.alias)
	return nil
}

// SignForLongitude maps a normalized longitude onto the bundle's sign list.
// The caller guarantees lon is in [0, 360) and the bundle carries 12 signs.
func (r ReferenceData) SignForLongitude(lon float64) string {
	idx := int(lon/30.0) % 12
	return r.Signs[idx].Code
}

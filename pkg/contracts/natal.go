package contracts

import "encoding/json"

// PlanetPosition is one computed body in the final result.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type PlanetPosition struct {
	PlanetCode     string   `json:"planet_code"`
	Longitude      float64  `json:"longitude"`
	SignCode       string   `json:"sign_code"`
	HouseNumber    int      `json:"house_number"`
	SpeedLongitude *float64 `json:"speed_longitude,omitempty"`
	IsRetrograde   *bool    `json:"is_retrograde,omitempty"`
}

// HouseCusp is the starting longitude of one house.
type HouseCusp struct {
	Number        int     `json:"number"`
	CuspLongitude float64 `json:"cusp_longitude"`
}

// AspectResult is one accepted major aspect between two bodies.
// PlanetA < PlanetB alphabetically, always.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type AspectResult struct {
	AspectCode string  `json:"aspect_code"`
	PlanetA    string  `json:"planet_a"`
	PlanetB    string  `json:"planet_b"`
	Angle      float64 `json:"angle"`
	Orb        float64 `json:"orb"`
	OrbUsed    float64 `json:"orb_used"`
	OrbMax     float64 `json:"orb_max"`
}

// NatalResult is the fully assembled, reproducible chart computation.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type NatalResult struct {
	ReferenceVersion    string           `json:"reference_version"`
	RulesetVersion      string           `json:"ruleset_version"`
	HouseSystem         HouseSystem      `json:"house_system"`
	Engine              Engine           `json:"engine"`
	Zodiac              Zodiac           `json:"zodiac"`
	Frame               Frame            `json:"frame"`
	Ayanamsa            *Ayanamsa        `json:"ayanamsa,omitempty"`
	AltitudeM           *float64         `json:"altitude_m,omitempty"`
	EphemerisPathVersion string          `json:"ephemeris_path_version,omitempty"`
	EphemerisPathHash   string           `json:"ephemeris_path_hash,omitempty"`
	TimeScale           TimeScale        `json:"time_scale"`
	AspectSchool        AspectSchool     `json:"aspect_school"`
	AspectRulesVersion  string           `json:"aspect_rules_version"`
	PreparedInput       BirthPrepared    `json:"prepared_input"`
	PlanetPositions     []PlanetPosition `json:"planet_positions"`
	Houses              []HouseCusp      `json:"houses"`
	Aspects             []AspectResult   `json:"aspects"`
}

// UnmarshalJSON applies legacy defaults: payloads written before the
// engine/zodiac/frame fields existed validate as simplified tropical
// geocentric.
func (r *NatalResult) UnmarshalJSON(data []byte) error {
	type alias NatalResult
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Engine == "" {
		a.Engine = EngineSimplified
	}
	if a.Zodiac == "" {
		a.Zodiac = ZodiacTropical
	}
	if a.Frame == "" {
		a.Frame = FrameGeocentric
	}
	*r = NatalResult(a)
	return nil
}

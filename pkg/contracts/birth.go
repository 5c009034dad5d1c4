package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MaxBirthPlaceLength bounds the free-text place field.
const MaxBirthPlaceLength = 255

// BirthInput is the raw birth event as supplied by a collaborator.
// Unknown fields are rejected at decode time.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type BirthInput struct {
	BirthDate       string   `json:"birth_date"`
	BirthTime       string   `json:"birth_time,omitempty"`
	BirthPlace      string   `json:"birth_place"`
	BirthTimezone   string   `json:"birth_timezone,omitempty"`
	BirthLat        *float64 `json:"birth_lat,omitempty"`
	BirthLon        *float64 `json:"birth_lon,omitempty"`
	PlaceResolvedID string   `json:"place_resolved_id,omitempty"`
}

// DecodeBirthInput parses JSON into a BirthInput, rejecting unknown fields.
func DecodeBirthInput(data []byte) (BirthInput, error) {
	var input BirthInput
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&input); err != nil {
		return BirthInput{}, fmt.Errorf("birth input decode: %w", err)
	}
	return input, nil
}

// HasCoordinates reports whether both latitude and longitude are present.
func (b BirthInput) HasCoordinates() bool {
	return b.BirthLat != nil && b.BirthLon != nil
}

// BirthPrepared is the deterministic temporal resolution of a BirthInput.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type BirthPrepared struct {
	BirthDatetimeLocal string         `json:"birth_datetime_local"`
	BirthDatetimeUTC   string         `json:"birth_datetime_utc"`
	TimestampUTC       int64          `json:"timestamp_utc"`
	JDUT               float64        `json:"jd_ut"`
	TimezoneIANA       string         `json:"timezone_iana"`
	TimezoneSource     TimezoneSource `json:"timezone_source"`
	TimeScale          TimeScale      `json:"time_scale"`
	DeltaTSec          *float64       `json:"delta_t_sec,omitempty"`
	JDTT               *float64       `json:"jd_tt,omitempty"`
}

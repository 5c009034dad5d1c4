// Package fingerprint derives the canonical input hash of a chart
// computation. The hash covers the prepared birth instant and every
// option that changes the result, so equal fingerprints mean equal
// computations under the same reference and ephemeris versions.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

// CanonicalOptions is the option set folded into the fingerprint.
// Changing any field changes the hash.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type CanonicalOptions struct {
	Engine      contracts.Engine
	Zodiac      contracts.Zodiac
	Ayanamsa    *contracts.Ayanamsa
	Frame       contracts.Frame
	HouseSystem contracts.HouseSystem
	AltitudeM   *float64
	TimeScale   contracts.TimeScale
}

// Compute canonicalizes the prepared input plus options per RFC 8785 and
// returns the SHA-256 digest as 64 lower-case hex characters.
func Compute(prepared contracts.BirthPrepared, opts CanonicalOptions) (string, error) {
	doc := map[string]any{
		"birth_datetime_local": prepared.BirthDatetimeLocal,
		"birth_datetime_utc":   prepared.BirthDatetimeUTC,
		"timestamp_utc":        prepared.TimestampUTC,
		"jd_ut":                prepared.JDUT,
		"timezone_iana":        prepared.TimezoneIANA,
		"timezone_source":      string(prepared.TimezoneSource),
		"engine":               string(opts.Engine),
		"zodiac":               string(opts.Zodiac),
		"frame":                string(opts.Frame),
		"house_system":         string(opts.HouseSystem),
		"time_scale":           string(opts.TimeScale),
	}
	if opts.Ayanamsa != nil {
		doc["ayanamsa"] = string(*opts.Ayanamsa)
	}
	if opts.AltitudeM != nil {
		doc["altitude_m"] = *opts.AltitudeM
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint marshal: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("fingerprint canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

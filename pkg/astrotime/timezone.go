// Package astrotime resolves a birth event into a deterministic instant on
// the UT/TT time scales: local wall clock → effective IANA zone → strict
// UTC attachment → Julian Day, with optional ΔT and JD_TT.
package astrotime

import (
	"errors"
	"time"
)

// TimezoneDatabase is the IANA resolver collaborator, with an optional
// coordinate-to-zone lookup.
type TimezoneDatabase interface {
	// Load resolves an IANA zone name.
	Load(name string) (*time.Location, error)

	// ZoneFor derives the IANA zone covering (lat, lon).
	ZoneFor(lat, lon float64) (string, error)
}

// ErrZoneLookupUnavailable is returned by databases without a coordinate
// lookup backend.
var ErrZoneLookupUnavailable = errors.New("coordinate zone lookup is not configured")

// StdDatabase resolves names against the process tzdata. Coordinate
// lookup delegates to an optional hook supplied by the embedding service;
// its accuracy is a collaborator concern.
type StdDatabase struct {
	ZoneLookup func(lat, lon float64) (string, error)
}

func (d StdDatabase) Load(name string) (*time.Location, error) {
	if name == "" {
		return nil, errors.New("empty timezone name")
	}
	return time.LoadLocation(name)
}

func (d StdDatabase) ZoneFor(lat, lon float64) (string, error) {
	if d.ZoneLookup == nil {
		return "", ErrZoneLookupUnavailable
	}
	return d.ZoneLookup(lat, lon)
}

// Package ephemeris manages the precision ephemeris backend: one-shot
// bootstrap of its data directory, and a process-wide guard serializing
// every call because the backend keeps global state (sidereal mode,
// topocentric observer).
package ephemeris

// Body identifies a computable body for the backend.
type Body int

// Backend body numbering follows the Swiss Ephemeris convention.
const (
	BodySun Body = iota
	BodyMoon
	BodyMercury
	BodyVenus
	BodyMars
	BodyJupiter
	BodySaturn
	BodyUranus
	BodyNeptune
	BodyPluto
)

// SiderealMode selects the ayanamsa table inside the backend.
type SiderealMode int

const (
	SiderealFaganBradley SiderealMode = 0
	SiderealLahiri       SiderealMode = 1
	SiderealRaman        SiderealMode = 3
	SiderealKrishnamurti SiderealMode = 5
)

// CalcResult is one raw backend computation.
type CalcResult struct {
	Longitude    float64
	Latitude     float64
	Distance     float64
	SpeedLon     float64
}

// HousesResult is one raw house computation: twelve cusps in house order
// plus the Ascendant and Midheaven.
type HousesResult struct {
	Cusps     [12]float64
	Ascendant float64
	MC        float64
}

// Backend is the precision ephemeris collaborator. It is stateful and not
// safe for concurrent use; all access goes through the Guard.
type Backend interface {
	// SetPath hands the validated data directory to the backend.
	SetPath(path string) error

	// Calc computes the position of body at jdUT under the currently set
	// mode (tropical by default, sidereal and/or topocentric when set).
	Calc(jdUT float64, body Body) (CalcResult, error)

	// Houses computes cusps, Ascendant and MC for the given system letter.
	Houses(jdUT float64, lat, lon float64, system byte) (HousesResult, error)

	// SetSiderealMode switches subsequent Calc output to the sidereal
	// zodiac anchored by mode. ClearSiderealMode restores tropical.
	SetSiderealMode(mode SiderealMode)
	ClearSiderealMode()

	// SetTopocentric places the observer; ClearTopocentric restores the
	// geocentric {0,0,0} observer.
	SetTopocentric(lon, lat, altitudeM float64)
	ClearTopocentric()

	// Close releases backend resources.
	Close() error
}

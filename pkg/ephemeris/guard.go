package ephemeris

import "sync"

// guardMu serializes every backend call in the process. The backend keeps
// global state, so no call site may touch it without this lock.
var guardMu sync.Mutex

// Observer is a topocentric observer placement.
type Observer struct {
	Lon       float64
	Lat       float64
	AltitudeM float64
}

// Session describes the backend state required for one computation.
// Nil fields leave the backend in its neutral (tropical, geocentric)
// state.
type Session struct {
	Sidereal    *SiderealMode
	Topocentric *Observer
}

// Guard is the only doorway to a Backend. Acquisition scope is kept to the
// backend primitives; pre-computation and post-normalization happen
// outside it.
type Guard struct {
	backend Backend
}

// NewGuard wraps a backend.
func NewGuard(backend Backend) *Guard {
	return &Guard{backend: backend}
}

// Run executes fn while holding the process-wide mutex, with the session
// state applied. Neutral state is restored on every exit path, panics
// included.
func (g *Guard) Run(s Session, fn func(Backend) error) error {
	guardMu.Lock()
	defer guardMu.Unlock()

	if s.Sidereal != nil {
		g.backend.SetSiderealMode(*s.Sidereal)
		defer g.backend.ClearSiderealMode()
	}
	if s.Topocentric != nil {
		g.backend.SetTopocentric(s.Topocentric.Lon, s.Topocentric.Lat, s.Topocentric.AltitudeM)
		defer g.backend.ClearTopocentric()
	}
	return fn(g.backend)
}

// With runs fn in the neutral state.
func (g *Guard) With(fn func(Backend) error) error {
	return g.Run(Session{}, fn)
}

// WithSidereal runs fn with the sidereal mode set.
func (g *Guard) WithSidereal(mode SiderealMode, fn func(Backend) error) error {
	return g.Run(Session{Sidereal: &mode}, fn)
}

// WithTopocentric runs fn with the observer placed at (lon, lat, altM).
func (g *Guard) WithTopocentric(lon, lat, altM float64, fn func(Backend) error) error {
	return g.Run(Session{Topocentric: &Observer{Lon: lon, Lat: lat, AltitudeM: altM}}, fn)
}

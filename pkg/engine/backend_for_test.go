package engine_test

import (
	"errors"
	"math"

	"github.com/Orrery-Labs/natal/core/pkg/engine"
	"github.com/Orrery-Labs/natal/core/pkg/ephemeris"
)

// fakeBackend is a deterministic stand-in for the precision library. Its
// tropical longitudes follow mean motions, its ayanamsa model is linear
// in JD, and it honours the sidereal/topocentric state the way the real
// backend does, so guard discipline is observable.
type fakeBackend struct {
	sidereal *ephemeris.SiderealMode
	topo     *ephemeris.Observer
	path     string

	housesErr error
}

var fakeElements = map[ephemeris.Body]struct {
	lon0  float64
	rate  float64
	speed float64
}{
	ephemeris.BodySun:     {280.460, 0.98564736, 0.9856},
	ephemeris.BodyMoon:    {218.316, 13.17639648, 13.1764},
	ephemeris.BodyMercury: {252.251, 4.09233445, -0.5},  // retrograde sample
	ephemeris.BodyVenus:   {181.980, 1.60213034, 1.602},
	ephemeris.BodyMars:    {355.433, 0.52402068, 0.524},
	ephemeris.BodyJupiter: {34.351, 0.08308529, 0.083},
	ephemeris.BodySaturn:  {50.077, 0.03344414, 0.033},
	ephemeris.BodyUranus:  {314.055, 0.01172834, 0.0117},
	ephemeris.BodyNeptune: {304.348, 0.00598103, 0.0059},
	ephemeris.BodyPluto:   {238.958, 0.00396, 0.0039},
}

// Ayanamsa values at J2000 with a secular drift of ~50.29"/yr.
var fakeAyanamsas = map[ephemeris.SiderealMode]float64{
	ephemeris.SiderealLahiri:       23.853,
	ephemeris.SiderealFaganBradley: 24.740,
	ephemeris.SiderealRaman:        22.418,
	ephemeris.SiderealKrishnamurti: 23.756,
}

const precessionDegPerDay = 50.29 / 3600 / 365.25

func (b *fakeBackend) SetPath(path string) error { b.path = path; return nil }

func (b *fakeBackend) Calc(jdUT float64, body ephemeris.Body) (ephemeris.CalcResult, error) {
	el, ok := fakeElements[body]
	if !ok {
		return ephemeris.CalcResult{}, errors.New("unknown body")
	}
	lon := el.lon0 + el.rate*(jdUT-engine.J2000)
	if b.sidereal != nil {
		lon -= fakeAyanamsas[*b.sidereal] + precessionDegPerDay*(jdUT-engine.J2000)
	}
	if b.topo != nil {
		// Small diurnal parallax so topocentric output is distinguishable.
		lon += 0.002
	}
	return ephemeris.CalcResult{
		Longitude: math.Mod(math.Mod(lon, 360)+360, 360),
		SpeedLon:  el.speed,
	}, nil
}

func (b *fakeBackend) Houses(jdUT, lat, lon float64, system byte) (ephemeris.HousesResult, error) {
	if b.housesErr != nil {
		return ephemeris.HousesResult{}, b.housesErr
	}
	if math.Abs(lat) > 66.5 && system == 'P' {
		return ephemeris.HousesResult{}, errors.New("beyond polar circle")
	}
	asc := math.Mod(jdUT*1.7+lat-lon+float64(system), 360)
	var out ephemeris.HousesResult
	out.Ascendant = asc
	out.MC = asc + 270
	for i := 0; i < 12; i++ {
		out.Cusps[i] = asc + float64(i)*30
	}
	return out, nil
}

func (b *fakeBackend) SetSiderealMode(mode ephemeris.SiderealMode) { b.sidereal = &mode }
func (b *fakeBackend) ClearSiderealMode()                          { b.sidereal = nil }

func (b *fakeBackend) SetTopocentric(lon, lat, altM float64) {
	b.topo = &ephemeris.Observer{Lon: lon, Lat: lat, AltitudeM: altM}
}
func (b *fakeBackend) ClearTopocentric() { b.topo = nil }
func (b *fakeBackend) Close() error      { return nil }

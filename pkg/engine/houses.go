package engine

import (
	"math"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
)

const degToRad = math.Pi / 180

// computeHouses derives cusps, Ascendant and MC geometrically from
// sidereal time and the mean obliquity. Used by the simplified engine;
// the swiss engine gets houses from the precision backend.
func computeHouses(jdUT, lat, lon float64, system contracts.HouseSystem) (HouseAngles, error) {
	ramc := Normalize360(gmstDegrees(jdUT) + lon)
	eps := meanObliquity(jdUT)

	mc := Normalize360(radDeg(math.Atan2(
		math.Sin(ramc*degToRad),
		math.Cos(ramc*degToRad)*math.Cos(eps*degToRad),
	)))
	// Keep the MC in the same semicircle as the RAMC.
	if angularDistance(mc, ramc) > 90 {
		mc = Normalize360(mc + 180)
	}

	asc := ascendant(ramc, lat, eps)

	angles := HouseAngles{Ascendant: asc, MC: mc, SystemName: system}
	switch system {
	case contracts.HouseEqual:
		for i := 0; i < 12; i++ {
			angles.Cusps[i] = Normalize360(asc + float64(i)*30)
		}
	case contracts.HouseWholeSign:
		start := math.Floor(asc/30) * 30
		for i := 0; i < 12; i++ {
			angles.Cusps[i] = Normalize360(start + float64(i)*30)
		}
	case contracts.HousePlacidus:
		cusps, err := placidusCusps(ramc, asc, mc, lat, eps)
		if err != nil {
			return HouseAngles{}, err
		}
		angles.Cusps = cusps
	}
	return angles, nil
}

// gmstDegrees is the Greenwich mean sidereal time in degrees.
func gmstDegrees(jdUT float64) float64 {
	return Normalize360(280.46061837 + 360.98564736629*(jdUT-J2000))
}

// meanObliquity of the ecliptic, degrees.
func meanObliquity(jdUT float64) float64 {
	t := (jdUT - J2000) / 36525.0
	return 23.43929111 - 0.0130042*t
}

// ascendant computes the rising ecliptic longitude for the local sidereal
// time ramc at geographic latitude lat.
func ascendant(ramc, lat, eps float64) float64 {
	ramcR := ramc * degToRad
	epsR := eps * degToRad
	latR := lat * degToRad

	asc := radDeg(math.Atan2(
		-math.Cos(ramcR),
		math.Sin(ramcR)*math.Cos(epsR)+math.Tan(latR)*math.Sin(epsR),
	))
	return Normalize360(asc)
}

// placidusCusps derives the intermediate cusps by iterating the
// semi-arc trisection; opposite cusps complete the wheel. Fails inside
// the polar circles, where the trisection has no solution for parts of
// the year.
func placidusCusps(ramc, asc, mc, lat, eps float64) ([12]float64, error) {
	var cusps [12]float64
	cusps[0] = asc
	cusps[9] = mc

	type spec struct {
		house  int
		offset float64
		frac   float64
	}
	for _, s := range []spec{
		{11, 30, 1.0 / 3.0},
		{12, 60, 2.0 / 3.0},
		{2, 120, 2.0 / 3.0},
		{3, 150, 1.0 / 3.0},
	} {
		lonCusp, err := placidusIterate(ramc, s.offset, s.frac, lat, eps)
		if err != nil {
			return cusps, err
		}
		cusps[s.house-1] = lonCusp
	}

	cusps[3] = Normalize360(cusps[9] + 180)  // IC
	cusps[4] = Normalize360(cusps[10] + 180) // 5th opposite 11th
	cusps[5] = Normalize360(cusps[11] + 180) // 6th opposite 12th
	cusps[6] = Normalize360(cusps[0] + 180)  // descendant
	cusps[7] = Normalize360(cusps[1] + 180)  // 8th opposite 2nd
	cusps[8] = Normalize360(cusps[2] + 180)  // 9th opposite 3rd

	return cusps, nil
}

// placidusIterate converges on the right ascension whose hour angle
// divides the diurnal (or nocturnal) semi-arc at the given fraction, then
// converts it to ecliptic longitude.
func placidusIterate(ramc, offset, frac, lat, eps float64) (float64, error) {
	latR := lat * degToRad
	epsR := eps * degToRad

	ra := ramc + offset
	for i := 0; i < 12; i++ {
		dec := math.Atan(math.Tan(epsR) * math.Sin(ra*degToRad))
		x := math.Tan(latR) * math.Tan(dec)
		if x < -1 || x > 1 {
			return 0, natalerr.New(natalerr.CodeHousesCalcFailed, "house computation has no solution at this latitude").
				WithDetail("house_system", string(contracts.HousePlacidus))
		}
		ad := radDeg(math.Asin(x))
		ra = ramc + offset + frac*ad
	}

	lonCusp := radDeg(math.Atan2(
		math.Sin(ra*degToRad),
		math.Cos(ra*degToRad)*math.Cos(epsR),
	))
	return Normalize360(lonCusp), nil
}

// angularDistance is the shortest separation of two angles in degrees.
func angularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}

func radDeg(r float64) float64 { return r / degToRad }

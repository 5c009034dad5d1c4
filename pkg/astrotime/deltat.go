package astrotime

// DeltaTSeconds approximates ΔT = TT − UT in seconds for the given civil
// year and month, using the Espenak–Meeus polynomial expressions. Only the
// contract jd_tt = jd_ut + ΔT/86400 is load-bearing; the approximation
// itself is implementation-defined.
func DeltaTSeconds(year int, month int) float64 {
	y := float64(year) + (float64(month)-0.5)/12.0

	switch {
	case y >= 2150:
		u := (y - 1820) / 100
		return -20 + 32*u*u
	case y >= 2050:
		u := (y - 1820) / 100
		return -20 + 32*u*u - 0.5628*(2150-y)
	case y >= 2005:
		t := y - 2000
		return 62.92 + 0.32217*t + 0.005589*t*t
	case y >= 1986:
		t := y - 2000
		return 63.86 + 0.3345*t - 0.060374*t*t + 0.0017275*t*t*t +
			0.000651814*t*t*t*t + 0.00002373599*t*t*t*t*t
	case y >= 1961:
		t := y - 1975
		return 45.45 + 1.067*t - t*t/260 - t*t*t/718
	case y >= 1941:
		t := y - 1950
		return 29.07 + 0.407*t - t*t/233 + t*t*t/2547
	case y >= 1920:
		t := y - 1920
		return 21.20 + 0.84493*t - 0.076100*t*t + 0.0020936*t*t*t
	case y >= 1900:
		t := y - 1900
		return -2.79 + 1.494119*t - 0.0598939*t*t + 0.0061966*t*t*t - 0.000197*t*t*t*t
	default:
		u := (y - 1820) / 100
		return -20 + 32*u*u
	}
}

// Package astro provides the small set of spherical-astronomy conversions
// the mount jog handler needs: Julian date, local sidereal time, and the
// equatorial<->horizontal coordinate transform. It has no dependency on the
// rest of the simulator so it can be unit tested in isolation.
package astro

import "math"

// JulianDate returns the Julian date for unixSeconds (seconds since epoch).
func JulianDate(unixSeconds float64) float64 {
	return unixSeconds/86400.0 + 2440587.5
}

// GMSTRadians returns Greenwich Mean Sidereal Time, in radians, for the
// given Julian date (Meeus, Astronomical Algorithms, ch.12).
func GMSTRadians(jd float64) float64 {
	t := (jd - 2451545.0) / 36525.0
	deg := 280.46061837 + 360.98564736629*(jd-2451545.0) +
		0.000387933*t*t - t*t*t/38710000.0
	return normalizeRadians(deg * math.Pi / 180.0)
}

// LocalSiderealTime returns the local sidereal time in radians for the
// given Julian date and observer longitude (radians, east-positive).
func LocalSiderealTime(jd, lonRad float64) float64 {
	return normalizeRadians(GMSTRadians(jd) + lonRad)
}

// EquatorialToHorizontal converts (ra, dec) in radians at the given Julian
// date and observer (lat, lon) in radians to (alt, az) in radians. The
// azimuth convention is internal to this package (0 defined consistently
// with HorizontalToEquatorial so the pair round-trips exactly); it is not
// claimed to match any particular external azimuth reference.
func EquatorialToHorizontal(ra, dec, lat, lon, jd float64) (alt, az float64) {
	lst := LocalSiderealTime(jd, lon)
	ha := lst - ra

	x := math.Cos(dec) * math.Cos(ha)
	y := math.Cos(dec) * math.Sin(ha)
	z := math.Sin(dec)

	xhor := x*math.Sin(lat) - z*math.Cos(lat)
	yhor := y
	zhor := x*math.Cos(lat) + z*math.Sin(lat)

	alt = math.Asin(clamp(zhor, -1, 1))
	az = normalizeRadians(math.Atan2(yhor, xhor))
	return alt, az
}

// HorizontalToEquatorial is the exact inverse of EquatorialToHorizontal.
func HorizontalToEquatorial(alt, az, lat, lon, jd float64) (ra, dec float64) {
	lst := LocalSiderealTime(jd, lon)

	xhor := math.Cos(alt) * math.Cos(az)
	yhor := math.Cos(alt) * math.Sin(az)
	zhor := math.Sin(alt)

	x := xhor*math.Sin(lat) + zhor*math.Cos(lat)
	y := yhor
	z := -xhor*math.Cos(lat) + zhor*math.Sin(lat)

	ha := math.Atan2(y, x)
	dec = math.Asin(clamp(z, -1, 1))
	ra = normalizeRadians(lst - ha)
	return ra, dec
}

func normalizeRadians(v float64) float64 {
	twoPi := 2 * math.Pi
	r := math.Mod(v, twoPi)
	if r < 0 {
		r += twoPi
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

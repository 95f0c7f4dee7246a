// Package geo provides Earth-centered coordinates and WGS84 conversions.
package geo

import "math"

// WGS84 ellipsoid parameters.
const (
	wgs84A  = 6378137.0           // semi-major axis, metres
	wgs84F  = 1 / 298.257223563   // flattening
	wgs84B  = wgs84A * (1 - wgs84F)
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// Unit conversions shared across the engine.
const (
	FtToM = 0.3048
	MToFt = 1 / FtToM
)

// ECEF is an Earth-centered, Earth-fixed cartesian position in metres.
type ECEF struct {
	X float64
	Y float64
	Z float64
}

// LLH is a geodetic position: latitude/longitude in degrees, height in metres.
type LLH struct {
	Lat float64
	Lon float64
	Alt float64
}

// Distance returns the straight-line distance between two ECEF points in
// metres. For receiver pairs on the Earth's surface the chord is a consistent
// pairwise metric and a lower bound on the propagation path.
func Distance(a, b ECEF) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// LLHToECEF converts a geodetic position to ECEF.
func LLHToECEF(p LLH) ECEF {
	lat := p.Lat * math.Pi / 180
	lon := p.Lon * math.Pi / 180

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)

	// prime vertical radius of curvature
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	return ECEF{
		X: (n + p.Alt) * cosLat * math.Cos(lon),
		Y: (n + p.Alt) * cosLat * math.Sin(lon),
		Z: (n*(1-wgs84E2) + p.Alt) * sinLat,
	}
}

// ECEFToLLH converts an ECEF position to geodetic coordinates using Bowring's
// method, which is accurate to well under a millimetre for aircraft altitudes.
func ECEFToLLH(p ECEF) LLH {
	r := math.Hypot(p.X, p.Y)

	// parametric latitude first guess
	u := math.Atan2(p.Z*wgs84A, r*wgs84B)
	sinU := math.Sin(u)
	cosU := math.Cos(u)

	ePrime2 := (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)

	lat := math.Atan2(p.Z+ePrime2*wgs84B*sinU*sinU*sinU,
		r-wgs84E2*wgs84A*cosU*cosU*cosU)
	lon := math.Atan2(p.Y, p.X)

	sinLat := math.Sin(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	alt := r/math.Cos(lat) - n

	return LLH{
		Lat: lat * 180 / math.Pi,
		Lon: lon * 180 / math.Pi,
		Alt: alt,
	}
}

package model

import "math"

// Coord is a sky position in degrees. Lon is right ascension, ecliptic
// longitude or galactic longitude depending on the frame; Lat likewise.
type Coord struct {
	Lon float64
	Lat float64
}

// Radians returns the position in radians.
func (c Coord) Radians() (lon, lat float64) {
	return c.Lon * math.Pi / 180, c.Lat * math.Pi / 180
}

// ProperMotion is an angular rate in mas/yr. LonCosLat already carries the
// cos(latitude) factor.
type ProperMotion struct {
	LonCosLat float64
	Lat       float64
}

// Vector returns the proper motion as a column vector.
func (pm ProperMotion) Vector() [2]float64 {
	return [2]float64{pm.LonCosLat, pm.Lat}
}

// Cov2 is a 2x2 covariance matrix, row major.
//
// Position covariances are in arcsec^2 over (Δlon, Δlat) coordinate offsets.
// Proper-motion covariances are in (mas/yr)^2 over (μ_lon·cos lat, μ_lat).
type Cov2 [2][2]float64

// DiagCov builds a diagonal covariance from two standard deviations.
func DiagCov(sigmaLon, sigmaLat float64) Cov2 {
	return Cov2{{sigmaLon * sigmaLon, 0}, {0, sigmaLat * sigmaLat}}
}

// CovFromErrors builds a covariance from per-axis standard deviations and the
// off-diagonal cross term.
func CovFromErrors(errLon, errLat, cross float64) Cov2 {
	return Cov2{{errLon * errLon, cross}, {cross, errLat * errLat}}
}

// Scale returns c multiplied by k.
func (c Cov2) Scale(k float64) Cov2 {
	return Cov2{{c[0][0] * k, c[0][1] * k}, {c[1][0] * k, c[1][1] * k}}
}

// Add returns c + o.
func (c Cov2) Add(o Cov2) Cov2 {
	return Cov2{
		{c[0][0] + o[0][0], c[0][1] + o[0][1]},
		{c[1][0] + o[1][0], c[1][1] + o[1][1]},
	}
}

// Hadamard returns the element-wise product of c and o.
func (c Cov2) Hadamard(o Cov2) Cov2 {
	return Cov2{
		{c[0][0] * o[0][0], c[0][1] * o[0][1]},
		{c[1][0] * o[1][0], c[1][1] * o[1][1]},
	}
}

// Sigmas returns the square roots of the diagonal.
func (c Cov2) Sigmas() (float64, float64) {
	return math.Sqrt(c[0][0]), math.Sqrt(c[1][1])
}

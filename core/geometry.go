package core

import (
	"math"

	"github.com/signalsfoundry/psrinfo/model"
)

const (
	degToRad = math.Pi / 180.0
	radToDeg = 180.0 / math.Pi

	// MasPerArcsec converts milliarcseconds to arcseconds.
	MasPerArcsec = 1000.0
	// ArcsecPerDeg converts arcseconds to degrees.
	ArcsecPerDeg = 3600.0

	// poleCosEpsilon is the |cos(lat)| below which a position is treated as
	// sitting on a pole, where longitude offsets are undefined.
	poleCosEpsilon = 1e-12
)

// Vec3 is a Cartesian direction on the unit celestial sphere.
type Vec3 struct {
	X, Y, Z float64
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Scale returns v multiplied by k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// unitVector returns the direction of c on the unit sphere.
func unitVector(c model.Coord) Vec3 {
	lon, lat := c.Lon*degToRad, c.Lat*degToRad
	cosLat := math.Cos(lat)
	return Vec3{
		X: cosLat * math.Cos(lon),
		Y: cosLat * math.Sin(lon),
		Z: math.Sin(lat),
	}
}

// coordFromVector is the inverse of unitVector. Longitude is normalised to
// [0, 360) degrees.
func coordFromVector(v Vec3) model.Coord {
	r := v.Norm()
	if r == 0 {
		return model.Coord{}
	}
	z := v.Z / r
	if z > 1 {
		z = 1
	} else if z < -1 {
		z = -1
	}
	lat := math.Asin(z) * radToDeg
	lon := 0.0
	if v.X != 0 || v.Y != 0 {
		lon = math.Atan2(v.Y, v.X) * radToDeg
	}
	return model.Coord{Lon: NormalizeLongitude(lon), Lat: lat}
}

// NormalizeLongitude wraps lon into [0, 360).
func NormalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	if lon >= 360 {
		lon = 0
	}
	return lon
}

// tangentBasis returns the local unit vectors pointing along increasing
// longitude and increasing latitude at c.
//
// At a pole the longitude direction degenerates; the basis is still
// orthonormal because it only depends on the (arbitrary) longitude value.
func tangentBasis(c model.Coord) (eLon, eLat Vec3) {
	lon, lat := c.Lon*degToRad, c.Lat*degToRad
	sinLon, cosLon := math.Sincos(lon)
	sinLat, cosLat := math.Sincos(lat)
	eLon = Vec3{X: -sinLon, Y: cosLon, Z: 0}
	eLat = Vec3{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat}
	return eLon, eLat
}

// AngularSeparation returns the great-circle distance between a and b in
// degrees.
func AngularSeparation(a, b model.Coord) float64 {
	va, vb := unitVector(a), unitVector(b)
	// atan2 of |a×b| and a·b stays accurate for tiny separations.
	cross := Vec3{
		X: va.Y*vb.Z - va.Z*vb.Y,
		Y: va.Z*vb.X - va.X*vb.Z,
		Z: va.X*vb.Y - va.Y*vb.X,
	}
	return math.Atan2(cross.Norm(), va.Dot(vb)) * radToDeg
}

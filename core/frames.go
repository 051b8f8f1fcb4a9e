package core

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/psrinfo/model"
)

var (
	ErrUnsupportedFrame  = errors.New("unsupported frame")
	ErrMissingCovariance = errors.New("covariance not available")
	ErrSingularJacobian  = errors.New("jacobian is singular")
	ErrNoProperMotion    = errors.New("no proper motion")
)

// ObliquityJ2000Arcsec is the IAU 2006 mean obliquity of the ecliptic at J2000.
const ObliquityJ2000Arcsec = 84381.406

// icrsToGalactic holds the galactic axes expressed in ICRS (Hipparcos,
// ESA 1997, vol. 1 §1.5.3). r_gal = A·r_icrs.
var icrsToGalactic = mat.NewDense(3, 3, []float64{
	-0.0548755604162154, -0.8734370902348850, -0.4838350155487132,
	+0.4941094278755837, -0.4448296299600112, +0.7469822444972189,
	-0.8676661490190047, -0.1980763734312015, +0.4559837761750669,
})

// rotations[from][to] rotates a unit vector expressed in frame from into
// frame to. Populated once at init from the equatorial-based matrices.
var rotations [3][3]*mat.Dense

func init() {
	eps := ObliquityJ2000Arcsec / ArcsecPerDeg * degToRad
	sinE, cosE := math.Sincos(eps)
	icrsToEcliptic := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, cosE, sinE,
		0, -sinE, cosE,
	})

	fromEquatorial := map[model.Frame]mat.Matrix{
		model.FrameEquatorial: identity3(),
		model.FrameEcliptic:   icrsToEcliptic,
		model.FrameGalactic:   icrsToGalactic,
	}

	// R(a→b) = R(eq→b) · R(eq→a)ᵀ; rotation inverses are transposes.
	for _, from := range model.Frames {
		for _, to := range model.Frames {
			var r mat.Dense
			r.Mul(fromEquatorial[to], fromEquatorial[from].T())
			rotations[from.Index()][to.Index()] = &r
		}
	}
}

func identity3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

func rotation(from, to model.Frame) (*mat.Dense, error) {
	if !from.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFrame, from)
	}
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFrame, to)
	}
	return rotations[from.Index()][to.Index()], nil
}

func rotate(r *mat.Dense, v Vec3) Vec3 {
	in := mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
	var out mat.VecDense
	out.MulVec(r, in)
	return Vec3{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

// TransformPosition maps a position from one frame to another.
func TransformPosition(pos model.Coord, from, to model.Frame) (model.Coord, error) {
	r, err := rotation(from, to)
	if err != nil {
		return model.Coord{}, err
	}
	if from == to {
		return pos, nil
	}
	return coordFromVector(rotate(r, unitVector(pos))), nil
}

// TransformMotion maps a position together with its proper motion from one
// frame to another. The proper motion is carried as a tangent vector on the
// sphere, rotated, and projected onto the destination frame's local axes.
func TransformMotion(pos model.Coord, pm model.ProperMotion, from, to model.Frame) (model.Coord, model.ProperMotion, error) {
	r, err := rotation(from, to)
	if err != nil {
		return model.Coord{}, model.ProperMotion{}, err
	}
	if from == to {
		return pos, pm, nil
	}

	eLon, eLat := tangentBasis(pos)
	velocity := eLon.Scale(pm.LonCosLat).Add(eLat.Scale(pm.Lat))

	out := coordFromVector(rotate(r, unitVector(pos)))
	rotated := rotate(r, velocity)
	outLon, outLat := tangentBasis(out)
	return out, model.ProperMotion{
		LonCosLat: rotated.Dot(outLon),
		Lat:       rotated.Dot(outLat),
	}, nil
}

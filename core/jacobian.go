package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/psrinfo/model"
)

// Jacobian is a 2x2 matrix linearising a frame transform at one sky
// position, row major. Column i is the response to a unit input along axis i.
type Jacobian [2][2]float64

// IdentityJacobian is the Jacobian of a frame onto itself.
var IdentityJacobian = Jacobian{{1, 0}, {0, 1}}

func (j Jacobian) dense() *mat.Dense {
	return mat.NewDense(2, 2, []float64{j[0][0], j[0][1], j[1][0], j[1][1]})
}

func jacobianFromDense(m mat.Matrix) Jacobian {
	return Jacobian{{m.At(0, 0), m.At(0, 1)}, {m.At(1, 0), m.At(1, 1)}}
}

// Apply maps a proper-motion vector through the Jacobian.
func (j Jacobian) Apply(pm model.ProperMotion) model.ProperMotion {
	return model.ProperMotion{
		LonCosLat: j[0][0]*pm.LonCosLat + j[0][1]*pm.Lat,
		Lat:       j[1][0]*pm.LonCosLat + j[1][1]*pm.Lat,
	}
}

// Det returns the determinant.
func (j Jacobian) Det() float64 {
	return j[0][0]*j[1][1] - j[0][1]*j[1][0]
}

// Inverse returns the matrix inverse, failing when j is numerically singular.
func (j Jacobian) Inverse() (Jacobian, error) {
	var inv mat.Dense
	if err := inv.Inverse(j.dense()); err != nil {
		return Jacobian{}, fmt.Errorf("%w: %v", ErrSingularJacobian, err)
	}
	return jacobianFromDense(&inv), nil
}

// MotionJacobian builds J(from→to) for proper-motion vectors at pos (given in
// frame from). Two synthetic points at the same position carry a unit impulse
// along each source axis in turn; their transformed proper motions form the
// columns.
func MotionJacobian(pos model.Coord, from, to model.Frame) (Jacobian, error) {
	_, alongLon, err := TransformMotion(pos, model.ProperMotion{LonCosLat: 1, Lat: 0}, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	_, alongLat, err := TransformMotion(pos, model.ProperMotion{LonCosLat: 0, Lat: 1}, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	return Jacobian{
		{alongLon.LonCosLat, alongLat.LonCosLat},
		{alongLon.Lat, alongLat.Lat},
	}, nil
}

// PositionJacobian builds the Jacobian of (lon, lat) coordinate offsets at pos
// (given in frame from). Coordinate offsets differ from tangent-plane offsets
// by cos(lat) along longitude, so J_pos = D_to⁻¹ · J_motion · D_from with
// D = diag(cos lat, 1).
func PositionJacobian(pos model.Coord, from, to model.Frame) (Jacobian, error) {
	jm, err := MotionJacobian(pos, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	out, err := TransformPosition(pos, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	cosFrom := math.Cos(pos.Lat * degToRad)
	cosTo := math.Cos(out.Lat * degToRad)
	if math.Abs(cosTo) < poleCosEpsilon {
		return Jacobian{}, fmt.Errorf("%w: %v position lies on a pole", ErrSingularJacobian, to)
	}
	return Jacobian{
		{jm[0][0] * cosFrom / cosTo, jm[0][1] / cosTo},
		{jm[1][0] * cosFrom, jm[1][1]},
	}, nil
}

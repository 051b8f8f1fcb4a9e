package core

import (
	"gonum.org/v1/gonum/mat"

	"github.com/signalsfoundry/psrinfo/model"
)

// Propagate applies the congruence transform J·C·Jᵗ. A nil covariance yields
// ErrMissingCovariance rather than a zero matrix.
func Propagate(cov *model.Cov2, j Jacobian) (model.Cov2, error) {
	if cov == nil {
		return model.Cov2{}, ErrMissingCovariance
	}
	c := mat.NewDense(2, 2, []float64{cov[0][0], cov[0][1], cov[1][0], cov[1][1]})
	jm := j.dense()

	var tmp, out mat.Dense
	tmp.Mul(jm, c)
	out.Mul(&tmp, jm.T())
	return Symmetrize(model.Cov2{
		{out.At(0, 0), out.At(0, 1)},
		{out.At(1, 0), out.At(1, 1)},
	}), nil
}

// Symmetrize averages the off-diagonal terms so round-off cannot leave an
// asymmetric covariance behind.
func Symmetrize(c model.Cov2) model.Cov2 {
	off := 0.5 * (c[0][1] + c[1][0])
	c[0][1], c[1][0] = off, off
	return c
}

// PropagateInverse propagates through the inverse of a forward Jacobian. It
// reproduces the inverse-based reverse direction some published numbers were
// produced with; Pulsar itself builds every direction independently.
func PropagateInverse(cov *model.Cov2, forward Jacobian) (model.Cov2, error) {
	if cov == nil {
		return model.Cov2{}, ErrMissingCovariance
	}
	inv, err := forward.Inverse()
	if err != nil {
		return model.Cov2{}, err
	}
	return Propagate(cov, inv)
}

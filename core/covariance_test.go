package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/psrinfo/model"
)

func randomPSD(rng *rand.Rand) model.Cov2 {
	a, b, c := rng.Float64()*10, rng.Float64()*10-5, rng.Float64()*10
	// L·Lᵀ with L lower triangular is symmetric positive semi-definite.
	return model.Cov2{
		{a * a, a * b},
		{a * b, b*b + c*c},
	}
}

func TestPropagateMissingCovariance(t *testing.T) {
	if _, err := Propagate(nil, IdentityJacobian); !errors.Is(err, ErrMissingCovariance) {
		t.Fatalf("Propagate(nil) error = %v, want ErrMissingCovariance", err)
	}
	if _, err := PropagateInverse(nil, IdentityJacobian); !errors.Is(err, ErrMissingCovariance) {
		t.Fatalf("PropagateInverse(nil) error = %v, want ErrMissingCovariance", err)
	}
}

func TestPropagateIsSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, from := range model.Frames {
		for _, to := range model.Frames {
			for _, pos := range samplePositions[:5] {
				for _, build := range []func(model.Coord, model.Frame, model.Frame) (Jacobian, error){MotionJacobian, PositionJacobian} {
					j, err := build(pos, from, to)
					if err != nil {
						t.Fatalf("jacobian %v->%v at %+v: %v", from, to, pos, err)
					}
					cov := randomPSD(rng)
					out, err := Propagate(&cov, j)
					if err != nil {
						t.Fatalf("Propagate: %v", err)
					}
					if out[0][1] != out[1][0] {
						t.Fatalf("propagated covariance not symmetric: %v", out)
					}
					if out[0][0] < -1e-9 || out[1][1] < -1e-9 {
						t.Fatalf("propagated covariance has negative variance: %v", out)
					}
				}
			}
		}
	}
}

func TestPropagateMotionPreservesTrace(t *testing.T) {
	cov := model.Cov2{{4, 1}, {1, 9}}
	j, err := MotionJacobian(model.Coord{Lon: 83.63308, Lat: 22.0145}, model.FrameEquatorial, model.FrameGalactic)
	if err != nil {
		t.Fatalf("MotionJacobian: %v", err)
	}
	out, err := Propagate(&cov, j)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	assertClose(t, "trace", out[0][0]+out[1][1], 13, 1e-9)
	detIn := cov[0][0]*cov[1][1] - cov[0][1]*cov[1][0]
	detOut := out[0][0]*out[1][1] - out[0][1]*out[1][0]
	assertClose(t, "det", detOut, detIn, 1e-9)
}

func TestPositionJacobianRoundTrip(t *testing.T) {
	pos := model.Coord{Lon: 270.25, Lat: -12.75}
	out, err := TransformPosition(pos, model.FrameEquatorial, model.FrameGalactic)
	if err != nil {
		t.Fatalf("TransformPosition: %v", err)
	}
	fwd, err := PositionJacobian(pos, model.FrameEquatorial, model.FrameGalactic)
	if err != nil {
		t.Fatalf("PositionJacobian: %v", err)
	}
	rev, err := PositionJacobian(out, model.FrameGalactic, model.FrameEquatorial)
	if err != nil {
		t.Fatalf("PositionJacobian: %v", err)
	}
	cov := model.Cov2{{0.04, 0.001}, {0.001, 0.09}}
	mid, err := Propagate(&cov, fwd)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	back, err := Propagate(&mid, rev)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			assertClose(t, "round-trip covariance", back[r][c], cov[r][c], 1e-9)
		}
	}
}

func TestPositionJacobianMatchesFiniteDifference(t *testing.T) {
	pos := model.Coord{Lon: 123.4, Lat: 45.6}
	j, err := PositionJacobian(pos, model.FrameEquatorial, model.FrameGalactic)
	if err != nil {
		t.Fatalf("PositionJacobian: %v", err)
	}
	const h = 1e-6
	base, _ := TransformPosition(pos, model.FrameEquatorial, model.FrameGalactic)
	dLon, _ := TransformPosition(model.Coord{Lon: pos.Lon + h, Lat: pos.Lat}, model.FrameEquatorial, model.FrameGalactic)
	dLat, _ := TransformPosition(model.Coord{Lon: pos.Lon, Lat: pos.Lat + h}, model.FrameEquatorial, model.FrameGalactic)

	assertClose(t, "dl/dra", (dLon.Lon-base.Lon)/h, j[0][0], 1e-5)
	assertClose(t, "db/dra", (dLon.Lat-base.Lat)/h, j[1][0], 1e-5)
	assertClose(t, "dl/ddec", (dLat.Lon-base.Lon)/h, j[0][1], 1e-5)
	assertClose(t, "db/ddec", (dLat.Lat-base.Lat)/h, j[1][1], 1e-5)
}

func TestPropagateInverseAgreesWithIndependentJacobian(t *testing.T) {
	pos := model.Coord{Lon: 83.63308, Lat: 22.0145}
	ecl, _ := TransformPosition(pos, model.FrameEquatorial, model.FrameEcliptic)
	fwd, err := MotionJacobian(pos, model.FrameEquatorial, model.FrameEcliptic)
	if err != nil {
		t.Fatalf("MotionJacobian: %v", err)
	}
	rev, err := MotionJacobian(ecl, model.FrameEcliptic, model.FrameEquatorial)
	if err != nil {
		t.Fatalf("MotionJacobian: %v", err)
	}
	cov := model.Cov2{{1.5, -0.2}, {-0.2, 0.7}}
	viaInverse, err := PropagateInverse(&cov, fwd)
	if err != nil {
		t.Fatalf("PropagateInverse: %v", err)
	}
	direct, err := Propagate(&cov, rev)
	if err != nil {
		t.Fatalf("Propagate: %v", err)
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			assertClose(t, "inverse vs independent", viaInverse[r][c], direct[r][c], 1e-9)
		}
	}
}

func TestJacobianInverseSingular(t *testing.T) {
	if _, err := (Jacobian{{1, 2}, {2, 4}}).Inverse(); !errors.Is(err, ErrSingularJacobian) {
		t.Fatalf("Inverse of singular matrix error = %v, want ErrSingularJacobian", err)
	}
}

func TestSymmetrize(t *testing.T) {
	got := Symmetrize(model.Cov2{{1, 2}, {4, 5}})
	if got[0][1] != 3 || got[1][0] != 3 || got[0][0] != 1 || got[1][1] != 5 {
		t.Fatalf("Symmetrize = %v", got)
	}
	if math.IsNaN(got[0][1]) {
		t.Fatalf("unexpected NaN")
	}
}

package core

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/psrinfo/model"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

// Prediction is an extrapolated equatorial position.
type Prediction struct {
	Epoch    timectrl.MJD
	Position model.Coord // equatorial, degrees

	// Covariance is in arcsec² over (ΔRA, ΔDec). HasCovariance is false only
	// when neither a position nor a proper-motion covariance exists.
	Covariance    model.Cov2
	HasCovariance bool

	ElapsedYears float64
	Extrapolated bool
}

// Extrapolate is PredictPosition for callers that need actual motion. It
// fails with ErrNoProperMotion when the record has no proper motion or no
// reference epoch.
func Extrapolate(p *Pulsar, target timectrl.MJD) (Prediction, error) {
	pred, err := PredictPosition(p, target)
	if err != nil {
		return Prediction{}, err
	}
	if !pred.Extrapolated {
		return Prediction{}, fmt.Errorf("%w: %s", ErrNoProperMotion, p.Name)
	}
	return pred, nil
}

// PredictPosition extrapolates p's equatorial position to target using its
// proper motion. Without a proper motion or a reference epoch the current
// position and covariance are returned unchanged.
//
// The longitude rate is stored pre-multiplied by cos(dec), so the
// proper-motion covariance contribution is scaled element-wise by
// [[1/cos², 1/cos], [1/cos, 1]] before it is added. A missing position
// covariance counts as zero here so the prediction still reports the
// proper-motion term.
func PredictPosition(p *Pulsar, target timectrl.MJD) (Prediction, error) {
	pos, err := p.Position(model.FrameEquatorial)
	if err != nil {
		return Prediction{}, err
	}
	posCov, hasPosCov, err := p.PositionCovariance(model.FrameEquatorial)
	if err != nil {
		return Prediction{}, err
	}
	out := Prediction{
		Epoch:         target,
		Position:      pos,
		Covariance:    posCov,
		HasCovariance: hasPosCov,
	}

	pm, hasPM, err := p.ProperMotion(model.FrameEquatorial)
	if err != nil {
		return Prediction{}, err
	}
	ref, hasRef := p.ReferenceEpoch()
	if !hasPM || !hasRef {
		return out, nil
	}

	years := timectrl.JulianYearsBetween(timectrl.MJD(ref), target)
	cosDec := math.Cos(pos.Lat * degToRad)
	if math.Abs(cosDec) < poleCosEpsilon {
		return Prediction{}, ErrSingularJacobian
	}

	raOffset := pm.LonCosLat / cosDec * years / MasPerArcsec
	decOffset := pm.Lat * years / MasPerArcsec
	out.Position = model.Coord{
		Lon: NormalizeLongitude(pos.Lon + raOffset/ArcsecPerDeg),
		Lat: pos.Lat + decOffset/ArcsecPerDeg,
	}
	out.ElapsedYears = years
	out.Extrapolated = true

	pmCov, hasPMCov, err := p.ProperMotionCovariance(model.FrameEquatorial)
	if err != nil {
		return Prediction{}, err
	}
	if hasPMCov {
		anisotropy := model.Cov2{
			{1 / (cosDec * cosDec), 1 / cosDec},
			{1 / cosDec, 1},
		}
		drift := pmCov.Scale(years * years / (MasPerArcsec * MasPerArcsec)).Hadamard(anisotropy)
		if !hasPosCov {
			posCov = model.Cov2{}
		}
		out.Covariance = Symmetrize(posCov.Add(drift))
		out.HasCovariance = true
	}
	return out, nil
}

package core

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/signalsfoundry/psrinfo/model"
)

// Pulsar is one catalog entry: an authoritative position in exactly one
// frame, an optional proper motion and optional covariances. Every quantity in
// the other frames is derived on demand and memoised in a record-scoped cache
// that is discarded wholesale whenever the proper motion changes.
//
// Pulsar is safe for concurrent use. Cache hits take a read lock; cache fills
// and mutations take the write lock, so readers never observe a partially
// invalidated cache.
type Pulsar struct {
	Name string

	mu sync.RWMutex

	frame    model.Frame
	pos      model.Coord
	pm       *model.ProperMotion
	posCov   *model.Cov2
	pmCov    *model.Cov2
	refEpoch *float64
	attrs    map[string]string

	cache derivedCache
}

// Option configures a Pulsar at construction time.
type Option func(*Pulsar)

// WithProperMotion sets the proper motion in the authoritative frame.
func WithProperMotion(pm model.ProperMotion) Option {
	return func(p *Pulsar) { p.pm = &pm }
}

// WithPositionCovariance sets the position covariance (arcsec²).
func WithPositionCovariance(cov model.Cov2) Option {
	return func(p *Pulsar) {
		c := Symmetrize(cov)
		p.posCov = &c
	}
}

// WithProperMotionCovariance sets the proper-motion covariance ((mas/yr)²).
func WithProperMotionCovariance(cov model.Cov2) Option {
	return func(p *Pulsar) {
		c := Symmetrize(cov)
		p.pmCov = &c
	}
}

// WithReferenceEpoch sets the epoch (MJD) the position refers to.
func WithReferenceEpoch(mjd float64) Option {
	return func(p *Pulsar) { p.refEpoch = &mjd }
}

// WithAttrs attaches opaque catalog attributes.
func WithAttrs(attrs map[string]string) Option {
	return func(p *Pulsar) {
		for k, v := range attrs {
			p.attrs[k] = v
		}
	}
}

// WithCacheObserver reports derived-cache activity to obs.
func WithCacheObserver(obs CacheObserver) Option {
	return func(p *Pulsar) {
		if obs != nil {
			p.cache.observer = obs
		}
	}
}

// New constructs a record whose authoritative position pos is given in frame.
func New(name string, frame model.Frame, pos model.Coord, opts ...Option) (*Pulsar, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFrame, frame)
	}
	if err := checkPosition(pos); err != nil {
		return nil, fmt.Errorf("pulsar %s: %w", name, err)
	}
	p := &Pulsar{
		Name:  name,
		frame: frame,
		pos:   model.Coord{Lon: NormalizeLongitude(pos.Lon), Lat: pos.Lat},
		attrs: make(map[string]string),
	}
	p.cache.observer = noopObserver{}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func checkPosition(pos model.Coord) error {
	for _, v := range []float64{pos.Lon, pos.Lat} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: position %v is not finite", ErrBadAngle, pos)
		}
	}
	if pos.Lat < -90 || pos.Lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrBadAngle, pos.Lat)
	}
	return nil
}

// NewFromEquatorial builds a record from the equatorial catalog shape. The
// position covariance is set only when both axis errors are present; the RA
// error (seconds of time) becomes arcsec along RA. Missing proper-motion
// fields or errors leave the corresponding quantity absent.
func NewFromEquatorial(row model.EquatorialRow, opts ...Option) (*Pulsar, error) {
	ra, err := ParseHourAngle(row.RA)
	if err != nil {
		return nil, fmt.Errorf("pulsar %s: ra: %w", row.Name, err)
	}
	dec, err := ParseDegrees(row.Dec)
	if err != nil {
		return nil, fmt.Errorf("pulsar %s: dec: %w", row.Name, err)
	}

	var base []Option
	if row.RAErr != nil && row.DecErr != nil {
		base = append(base, WithPositionCovariance(model.DiagCov(*row.RAErr*15, *row.DecErr)))
	}
	base = append(base, motionOptions(row.PMRA, row.PMDec, row.PMRAErr, row.PMDecErr)...)
	if row.PosEpoch != nil {
		base = append(base, WithReferenceEpoch(*row.PosEpoch))
	}
	base = append(base, WithAttrs(row.Attrs))

	return New(row.Name, model.FrameEquatorial, model.Coord{Lon: ra, Lat: dec}, append(base, opts...)...)
}

// NewFromEcliptic builds a record from the ecliptic catalog shape. Position
// errors are given in degrees and stored in arcsec.
func NewFromEcliptic(row model.EclipticRow, opts ...Option) (*Pulsar, error) {
	if err := checkPosition(model.Coord{Lon: row.ELon, Lat: row.ELat}); err != nil {
		return nil, fmt.Errorf("pulsar %s: elat/elon: %w", row.Name, err)
	}

	var base []Option
	if row.ELonErr != nil && row.ELatErr != nil {
		base = append(base, WithPositionCovariance(model.DiagCov(*row.ELonErr*ArcsecPerDeg, *row.ELatErr*ArcsecPerDeg)))
	}
	base = append(base, motionOptions(row.PMELon, row.PMELat, row.PMELonErr, row.PMELatErr)...)
	if row.PosEpoch != nil {
		base = append(base, WithReferenceEpoch(*row.PosEpoch))
	}
	base = append(base, WithAttrs(row.Attrs))

	return New(row.Name, model.FrameEcliptic, model.Coord{Lon: row.ELon, Lat: row.ELat}, append(base, opts...)...)
}

func motionOptions(lon, lat, lonErr, latErr *float64) []Option {
	if lon == nil || lat == nil {
		return nil
	}
	opts := []Option{WithProperMotion(model.ProperMotion{LonCosLat: *lon, Lat: *lat})}
	if lonErr != nil && latErr != nil {
		opts = append(opts, WithProperMotionCovariance(model.DiagCov(*lonErr, *latErr)))
	}
	return opts
}

// String renders "<PSR name (frame)>".
func (p *Pulsar) String() string {
	return fmt.Sprintf("<PSR %s (%s)>", p.Name, p.Frame())
}

// Frame returns the authoritative frame.
func (p *Pulsar) Frame() model.Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame
}

// ReferenceEpoch returns the MJD the position refers to, if known.
func (p *Pulsar) ReferenceEpoch() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.refEpoch == nil {
		return 0, false
	}
	return *p.refEpoch, true
}

// Attr returns an opaque catalog attribute.
func (p *Pulsar) Attr(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.attrs[name]
	return v, ok
}

// FloatAttr parses a catalog attribute as a float.
func (p *Pulsar) FloatAttr(name string) (float64, bool) {
	v, ok := p.Attr(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// AttrNames lists attribute names in sorted order.
func (p *Pulsar) AttrNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.attrs))
	for k := range p.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// CacheStats reports derived-cache activity.
func (p *Pulsar) CacheStats() CacheStats {
	return p.cache.stats()
}

// readThrough serves kind from the cache under a read lock when possible and
// otherwise falls back to fill under the write lock.
func readThrough[T any](p *Pulsar, kind string, peek func() (T, bool), fill func() (T, error)) (T, error) {
	p.mu.RLock()
	v, ok := peek()
	p.mu.RUnlock()
	if ok {
		p.cache.hit(kind)
		return v, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return fill()
}

func checkFrames(frames ...model.Frame) error {
	for _, f := range frames {
		if !f.Valid() {
			return fmt.Errorf("%w: %v", ErrUnsupportedFrame, f)
		}
	}
	return nil
}

// Position returns the position in frame f.
func (p *Pulsar) Position(f model.Frame) (model.Coord, error) {
	if err := checkFrames(f); err != nil {
		return model.Coord{}, err
	}
	s := &p.cache.values.positions[f.Index()]
	return readThrough(p, KindPosition, s.get, func() (model.Coord, error) {
		return p.positionLocked(f)
	})
}

// Equatorial returns the ICRS position.
func (p *Pulsar) Equatorial() model.Coord {
	c, _ := p.Position(model.FrameEquatorial)
	return c
}

// Ecliptic returns the ecliptic position.
func (p *Pulsar) Ecliptic() model.Coord {
	c, _ := p.Position(model.FrameEcliptic)
	return c
}

// Galactic returns the galactic position.
func (p *Pulsar) Galactic() model.Coord {
	c, _ := p.Position(model.FrameGalactic)
	return c
}

// GalacticPosition returns galactic (l, b) in degrees, the input expected by
// electron-density models.
func (p *Pulsar) GalacticPosition() (float64, float64) {
	c := p.Galactic()
	return c.Lon, c.Lat
}

// GalacticRadians returns galactic (l, b) in radians.
func (p *Pulsar) GalacticRadians() [2]float64 {
	l, b := p.Galactic().Radians()
	return [2]float64{l, b}
}

// ProperMotion returns the proper motion in frame f; ok is false when the
// record has none.
func (p *Pulsar) ProperMotion(f model.Frame) (model.ProperMotion, bool, error) {
	if err := checkFrames(f); err != nil {
		return model.ProperMotion{}, false, err
	}
	s := &p.cache.values.properMotions[f.Index()]
	v, err := readThrough(p, KindProperMotion, s.get, func() (optional[model.ProperMotion], error) {
		return p.properMotionLocked(f)
	})
	return v.val, v.present, err
}

// MotionJacobian returns J(from→to) for proper-motion vectors, evaluated at
// this record's position.
func (p *Pulsar) MotionJacobian(from, to model.Frame) (Jacobian, error) {
	if err := checkFrames(from, to); err != nil {
		return Jacobian{}, err
	}
	s := &p.cache.values.motionJacobians[from.Index()][to.Index()]
	return readThrough(p, KindMotionJacobian, s.get, func() (Jacobian, error) {
		return p.motionJacobianLocked(from, to)
	})
}

// PositionJacobian returns J(from→to) for coordinate offsets, evaluated at
// this record's position.
func (p *Pulsar) PositionJacobian(from, to model.Frame) (Jacobian, error) {
	if err := checkFrames(from, to); err != nil {
		return Jacobian{}, err
	}
	s := &p.cache.values.positionJacobians[from.Index()][to.Index()]
	return readThrough(p, KindPositionJacobian, s.get, func() (Jacobian, error) {
		return p.positionJacobianLocked(from, to)
	})
}

// PositionCovariance returns the position covariance in frame f (arcsec²).
// ok is false when the record carries no position covariance; a zero matrix
// is never substituted.
func (p *Pulsar) PositionCovariance(f model.Frame) (model.Cov2, bool, error) {
	if err := checkFrames(f); err != nil {
		return model.Cov2{}, false, err
	}
	s := &p.cache.values.positionCovs[f.Index()]
	v, err := readThrough(p, KindPositionCovariance, s.get, func() (optional[model.Cov2], error) {
		return p.positionCovLocked(f)
	})
	return v.val, v.present, err
}

// ProperMotionCovariance returns the proper-motion covariance in frame f
// ((mas/yr)²). ok is false when the record carries none.
func (p *Pulsar) ProperMotionCovariance(f model.Frame) (model.Cov2, bool, error) {
	if err := checkFrames(f); err != nil {
		return model.Cov2{}, false, err
	}
	s := &p.cache.values.properMotionCovs[f.Index()]
	v, err := readThrough(p, KindProperMotionCovariance, s.get, func() (optional[model.Cov2], error) {
		return p.properMotionCovLocked(f)
	})
	return v.val, v.present, err
}

// SetProperMotion replaces the proper motion and its covariance (nil when
// unknown), both expressed in frame f. Frame f becomes authoritative: the
// position and position covariance are re-expressed in f first. Every cached
// derived quantity is discarded.
func (p *Pulsar) SetProperMotion(f model.Frame, pm model.ProperMotion, cov *model.Cov2) error {
	if err := checkFrames(f); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, err := p.positionLocked(f)
	if err != nil {
		return err
	}
	// At a pole of f the position Jacobian is singular; the motion is still
	// attached and the position covariance becomes unavailable.
	posCov, err := p.positionCovLocked(f)
	if err != nil && !errors.Is(err, ErrSingularJacobian) {
		return err
	}

	p.frame = f
	p.pos = pos
	p.posCov = nil
	if posCov.present {
		c := posCov.val
		p.posCov = &c
	}
	p.pm = &pm
	p.pmCov = nil
	if cov != nil {
		c := Symmetrize(*cov)
		p.pmCov = &c
	}
	p.cache.invalidate()
	return nil
}

// The *Locked helpers require p.mu held for writing.

func (p *Pulsar) positionLocked(f model.Frame) (model.Coord, error) {
	s := &p.cache.values.positions[f.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindPosition)
		return v, nil
	}
	p.cache.miss(KindPosition)
	v, err := TransformPosition(p.pos, p.frame, f)
	if err != nil {
		return model.Coord{}, err
	}
	s.set(v)
	return v, nil
}

func (p *Pulsar) properMotionLocked(f model.Frame) (optional[model.ProperMotion], error) {
	s := &p.cache.values.properMotions[f.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindProperMotion)
		return v, nil
	}
	p.cache.miss(KindProperMotion)
	var v optional[model.ProperMotion]
	if p.pm != nil {
		_, pm, err := TransformMotion(p.pos, *p.pm, p.frame, f)
		if err != nil {
			return v, err
		}
		v = optional[model.ProperMotion]{val: pm, present: true}
	}
	s.set(v)
	return v, nil
}

func (p *Pulsar) motionJacobianLocked(from, to model.Frame) (Jacobian, error) {
	s := &p.cache.values.motionJacobians[from.Index()][to.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindMotionJacobian)
		return v, nil
	}
	p.cache.miss(KindMotionJacobian)
	pos, err := p.positionLocked(from)
	if err != nil {
		return Jacobian{}, err
	}
	j, err := MotionJacobian(pos, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	s.set(j)
	return j, nil
}

func (p *Pulsar) positionJacobianLocked(from, to model.Frame) (Jacobian, error) {
	s := &p.cache.values.positionJacobians[from.Index()][to.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindPositionJacobian)
		return v, nil
	}
	p.cache.miss(KindPositionJacobian)
	pos, err := p.positionLocked(from)
	if err != nil {
		return Jacobian{}, err
	}
	j, err := PositionJacobian(pos, from, to)
	if err != nil {
		return Jacobian{}, err
	}
	s.set(j)
	return j, nil
}

func (p *Pulsar) positionCovLocked(f model.Frame) (optional[model.Cov2], error) {
	s := &p.cache.values.positionCovs[f.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindPositionCovariance)
		return v, nil
	}
	p.cache.miss(KindPositionCovariance)
	v, err := p.propagateLocked(p.posCov, f, p.positionJacobianLocked)
	if err != nil {
		return v, err
	}
	s.set(v)
	return v, nil
}

func (p *Pulsar) properMotionCovLocked(f model.Frame) (optional[model.Cov2], error) {
	s := &p.cache.values.properMotionCovs[f.Index()]
	if v, ok := s.get(); ok {
		p.cache.hit(KindProperMotionCovariance)
		return v, nil
	}
	p.cache.miss(KindProperMotionCovariance)
	v, err := p.propagateLocked(p.pmCov, f, p.motionJacobianLocked)
	if err != nil {
		return v, err
	}
	s.set(v)
	return v, nil
}

// propagateLocked moves a native covariance from the authoritative frame into
// f. A missing native covariance stays missing in every frame.
func (p *Pulsar) propagateLocked(native *model.Cov2, f model.Frame, jacobian func(from, to model.Frame) (Jacobian, error)) (optional[model.Cov2], error) {
	if native == nil {
		return optional[model.Cov2]{}, nil
	}
	if f == p.frame {
		return optional[model.Cov2]{val: *native, present: true}, nil
	}
	j, err := jacobian(p.frame, f)
	if err != nil {
		return optional[model.Cov2]{}, err
	}
	cov, err := Propagate(native, j)
	if err != nil {
		return optional[model.Cov2]{}, err
	}
	return optional[model.Cov2]{val: cov, present: true}, nil
}

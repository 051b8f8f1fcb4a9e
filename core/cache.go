package core

import (
	"sync/atomic"

	"github.com/signalsfoundry/psrinfo/model"
)

// Cache quantity kinds, used for statistics and metrics labels.
const (
	KindPosition               = "position"
	KindProperMotion           = "proper_motion"
	KindMotionJacobian         = "motion_jacobian"
	KindPositionJacobian       = "position_jacobian"
	KindPositionCovariance     = "position_covariance"
	KindProperMotionCovariance = "proper_motion_covariance"
)

// CacheObserver receives derived-cache events. observability.Collector
// implements it.
type CacheObserver interface {
	CacheHit(kind string)
	CacheMiss(kind string)
	CacheInvalidated()
}

type noopObserver struct{}

func (noopObserver) CacheHit(string)   {}
func (noopObserver) CacheMiss(string)  {}
func (noopObserver) CacheInvalidated() {}

// optional carries a value that may legitimately be absent (no proper motion,
// no covariance). Absence is cached just like a value.
type optional[T any] struct {
	val     T
	present bool
}

// slot memoises one derived quantity.
type slot[T any] struct {
	val    T
	filled bool
}

func (s *slot[T]) get() (T, bool) { return s.val, s.filled }

func (s *slot[T]) set(v T) {
	s.val = v
	s.filled = true
}

// derivedValues holds every memoised quantity of one record. Arrays are
// indexed by model.Frame.Index().
type derivedValues struct {
	positions         [3]slot[model.Coord]
	properMotions     [3]slot[optional[model.ProperMotion]]
	motionJacobians   [3][3]slot[Jacobian]
	positionJacobians [3][3]slot[Jacobian]
	positionCovs      [3]slot[optional[model.Cov2]]
	properMotionCovs  [3]slot[optional[model.Cov2]]
}

// CacheStats summarises derived-cache activity for one record.
type CacheStats struct {
	Hits          int64
	Misses        int64
	Invalidations int64
}

// derivedCache is owned by exactly one Pulsar. Reads and writes of values are
// serialised by the owner's lock; counters are atomic so the read-locked fast
// path can record hits.
type derivedCache struct {
	values   derivedValues
	observer CacheObserver

	hits          atomic.Int64
	misses        atomic.Int64
	invalidations atomic.Int64
}

func (c *derivedCache) hit(kind string) {
	c.hits.Add(1)
	c.observer.CacheHit(kind)
}

func (c *derivedCache) miss(kind string) {
	c.misses.Add(1)
	c.observer.CacheMiss(kind)
}

// invalidate drops every memoised value, whatever it depended on.
func (c *derivedCache) invalidate() {
	c.values = derivedValues{}
	c.invalidations.Add(1)
	c.observer.CacheInvalidated()
}

func (c *derivedCache) stats() CacheStats {
	return CacheStats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}

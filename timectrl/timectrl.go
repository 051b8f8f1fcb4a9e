package timectrl

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// DefaultMaxEpochs bounds a walk when Stepper.MaxEpochs is unset.
const DefaultMaxEpochs = 10_000_000

var (
	// ErrBadStep reports a step that is not a finite positive number.
	ErrBadStep = errors.New("epoch step must be finite and positive")
	// ErrBadRange reports a start or end epoch that is not finite.
	ErrBadRange = errors.New("epoch range must be finite")
	// ErrTooManyEpochs reports a walk longer than the stepper's limit.
	ErrTooManyEpochs = errors.New("too many epochs")
)

// EpochClock exposes the stepper's current epoch.
type EpochClock interface {
	Now() MJD
}

// Stepper walks epochs from Start in increments of Step days and notifies
// registered listeners at every epoch, including Start itself.
type Stepper struct {
	mu    sync.RWMutex
	Start MJD
	Step  float64 // days
	// MaxEpochs caps the number of epochs a single Run may deliver.
	// Zero means DefaultMaxEpochs.
	MaxEpochs int

	current   MJD
	listeners []func(MJD) error
}

// NewStepper constructs a stepper positioned at start.
func NewStepper(start MJD, stepDays float64) *Stepper {
	return &Stepper{
		Start:   start,
		Step:    stepDays,
		current: start,
	}
}

// Now returns the epoch most recently delivered to listeners. Implements
// EpochClock.
func (s *Stepper) Now() MJD {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// AddListener registers a callback invoked at every epoch. A listener error
// stops the walk.
func (s *Stepper) AddListener(fn func(MJD) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Run walks epochs up to and including end, synchronously. It returns the
// number of epochs delivered. The walk is validated up front: a step that is
// not finite and positive, a non-finite range, or a walk longer than
// MaxEpochs fails before any listener runs.
func (s *Stepper) Run(ctx context.Context, end MJD) (int, error) {
	if math.IsNaN(s.Step) || math.IsInf(s.Step, 0) || s.Step <= 0 {
		return 0, ErrBadStep
	}
	if !finite(float64(s.Start)) || !finite(float64(end)) {
		return 0, fmt.Errorf("%w: %v to %v", ErrBadRange, s.Start, end)
	}
	limit := s.MaxEpochs
	if limit <= 0 {
		limit = DefaultMaxEpochs
	}
	if count := math.Floor(float64(end-s.Start)/s.Step) + 1; count > float64(limit) {
		return 0, fmt.Errorf("%w: %.0f epochs exceeds the limit of %d", ErrTooManyEpochs, count, limit)
	}
	s.mu.RLock()
	listeners := append([]func(MJD) error(nil), s.listeners...)
	s.mu.RUnlock()

	// Stepping by index avoids accumulating round-off over long walks.
	n := 0
	for i := 0; ; i++ {
		epoch := s.Start + MJD(float64(i)*s.Step)
		if epoch > end+MJD(1e-9) {
			return n, nil
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}

		s.mu.Lock()
		s.current = epoch
		s.mu.Unlock()

		for _, fn := range listeners {
			if err := fn(epoch); err != nil {
				return n, err
			}
		}
		n++
	}
}

// StartAsync runs the walk in a separate goroutine. The returned channel
// yields the walk's error (nil on success) and is then closed.
func (s *Stepper) StartAsync(ctx context.Context, end MJD) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		_, err := s.Run(ctx, end)
		done <- err
	}()
	return done
}

package dmdist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/process"
)

var (
	ErrExternalModelParse = errors.New("cannot parse electron-density model output")
	ErrUnknownModel       = errors.New("unknown electron-density model")
	ErrMissingInput       = errors.New("missing model input")
)

// Model names a Galactic electron-density model.
type Model string

const (
	NE2001 Model = "NE2001"
	YMW16  Model = "YMW16"
)

// Models lists the supported models.
var Models = []Model{NE2001, YMW16}

// ParseModel accepts a model name case-insensitively.
func ParseModel(s string) (Model, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(NE2001):
		return NE2001, nil
	case string(YMW16):
		return YMW16, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
}

// Target is what the models need from a pulsar record.
type Target interface {
	GalacticPosition() (l, b float64)
	FloatAttr(name string) (float64, bool)
	String() string
}

// Paths locates one model's binary and input data.
type Paths struct {
	Binary string
	Input  string
}

// Estimator shells out to NE2001 and YMW16.
type Estimator struct {
	ne2001 Paths
	ymw16  Paths

	runner  process.Runner
	log     logging.Logger
	metrics *observability.ToolCollector
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithRunner replaces the process runner; tests inject fakes here.
func WithRunner(r process.Runner) Option {
	return func(e *Estimator) { e.runner = r }
}

// WithLogger sets the estimator logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Estimator) { e.log = l }
}

// WithMetrics records model invocations on tools.
func WithMetrics(tools *observability.ToolCollector) Option {
	return func(e *Estimator) { e.metrics = tools }
}

// New constructs an Estimator.
func New(ne2001, ymw16 Paths, opts ...Option) *Estimator {
	e := &Estimator{ne2001: ne2001, ymw16: ymw16, log: logging.Noop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = process.ExecRunner{}
	}
	return e
}

func (e *Estimator) run(ctx context.Context, m Model, cmd process.Command) ([]string, error) {
	r := process.Observed{Tool: strings.ToLower(string(m)), Next: e.runner, Log: e.log, Metrics: e.metrics}
	out, err := r.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m, err)
	}
	return strings.Fields(string(out)), nil
}

// DistanceFromDM estimates the distance in kpc for a dispersion measure in
// pc/cm³. A nil dm uses the target's "dm" attribute.
func (e *Estimator) DistanceFromDM(ctx context.Context, t Target, m Model, dm *float64) (float64, error) {
	if dm == nil {
		v, ok := t.FloatAttr("dm")
		if !ok {
			return 0, fmt.Errorf("%w: %s has no dm", ErrMissingInput, t)
		}
		dm = &v
	}
	l, b := t.GalacticPosition()

	ctx, span := observability.StartSpan(ctx, "dmdist.distance", t.String())
	dist, err := e.distance(ctx, m, l, b, *dm)
	observability.EndSpan(span, err)
	if err != nil {
		return 0, err
	}
	logging.FromContextOr(ctx, e.log).Debug(ctx, "distance estimated",
		logging.String("model", string(m)),
		logging.String("target", t.String()),
		logging.Float("dm", *dm),
		logging.Float("dist_kpc", dist),
	)
	return dist, nil
}

func (e *Estimator) distance(ctx context.Context, m Model, l, b, dm float64) (float64, error) {
	switch m {
	case NE2001:
		words, err := e.run(ctx, m, process.Command{
			Path: e.ne2001.Binary,
			Args: []string{formatFloat(l), formatFloat(b), formatFloat(dm), "1"},
			Dir:  e.ne2001.Input,
		})
		if err != nil {
			return 0, err
		}
		return wordNear(words, "DIST", -1)
	case YMW16:
		words, err := e.run(ctx, m, process.Command{
			Path: e.ymw16.Binary,
			Args: []string{"-d", e.ymw16.Input, "Gal", formatFloat(l), formatFloat(b), formatFloat(dm), "1"},
		})
		if err != nil {
			return 0, err
		}
		pc, err := wordNear(words, "Dist:", 1)
		if err != nil {
			return 0, err
		}
		return pc / 1000, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, m)
	}
}

// DMFromDistance estimates the dispersion measure in pc/cm³ for a distance
// in kpc. A nil dist uses 1/px from the target's "px" attribute (mas).
func (e *Estimator) DMFromDistance(ctx context.Context, t Target, m Model, dist *float64) (float64, error) {
	if dist == nil {
		px, ok := t.FloatAttr("px")
		if !ok || px <= 0 {
			return 0, fmt.Errorf("%w: %s has no usable parallax", ErrMissingInput, t)
		}
		v := 1 / px
		dist = &v
	}
	l, b := t.GalacticPosition()

	ctx, span := observability.StartSpan(ctx, "dmdist.dm", t.String())
	dm, err := e.dm(ctx, m, l, b, *dist)
	observability.EndSpan(span, err)
	if err != nil {
		return 0, err
	}
	logging.FromContextOr(ctx, e.log).Debug(ctx, "dm estimated",
		logging.String("model", string(m)),
		logging.String("target", t.String()),
		logging.Float("dist_kpc", *dist),
		logging.Float("dm", dm),
	)
	return dm, nil
}

func (e *Estimator) dm(ctx context.Context, m Model, l, b, dist float64) (float64, error) {
	switch m {
	case NE2001:
		words, err := e.run(ctx, m, process.Command{
			Path: e.ne2001.Binary,
			Args: []string{formatFloat(l), formatFloat(b), formatFloat(dist), "-1"},
			Dir:  e.ne2001.Input,
		})
		if err != nil {
			return 0, err
		}
		return wordNear(words, "DM", -1)
	case YMW16:
		words, err := e.run(ctx, m, process.Command{
			Path: e.ymw16.Binary,
			Args: []string{"-d", e.ymw16.Input, "Gal", formatFloat(l), formatFloat(b), formatFloat(dist * 1000), "2"},
		})
		if err != nil {
			return 0, err
		}
		return wordNear(words, "DM:", 1)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownModel, m)
	}
}

// EstimateAll runs DistanceFromDM for every model concurrently.
func (e *Estimator) EstimateAll(ctx context.Context, t Target, dm *float64) (map[Model]float64, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	out := make(map[Model]float64, len(Models))
	for _, m := range Models {
		g.Go(func() error {
			d, err := e.DistanceFromDM(ctx, t, m, dm)
			if err != nil {
				return err
			}
			mu.Lock()
			out[m] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// wordNear parses the word offset positions from the first occurrence of key.
func wordNear(words []string, key string, offset int) (float64, error) {
	for i, w := range words {
		if w != key {
			continue
		}
		j := i + offset
		if j < 0 || j >= len(words) {
			return 0, fmt.Errorf("%w: nothing next to %q", ErrExternalModelParse, key)
		}
		v, err := strconv.ParseFloat(words[j], 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q next to %q", ErrExternalModelParse, words[j], key)
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: %q not found", ErrExternalModelParse, key)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

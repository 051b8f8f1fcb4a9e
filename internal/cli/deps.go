package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/catalogstore"
	"github.com/signalsfoundry/psrinfo/internal/config"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/psrcat"
)

// Catalog fetches pulsars from the ATNF catalogue.
type Catalog interface {
	FetchPulsar(ctx context.Context, name string, extraParams ...string) (*core.Pulsar, error)
	FetchPulsars(ctx context.Context, condition string, extraParams ...string) (map[string]*core.Pulsar, error)
	FetchMany(ctx context.Context, names []string, extraParams ...string) (map[string]*core.Pulsar, error)
	Forget(ctx context.Context, names ...string) error
}

// Estimator runs the electron-density models.
type Estimator interface {
	DistanceFromDM(ctx context.Context, t dmdist.Target, m dmdist.Model, dm *float64) (float64, error)
	DMFromDistance(ctx context.Context, t dmdist.Target, m dmdist.Model, dist *float64) (float64, error)
	EstimateAll(ctx context.Context, t dmdist.Target, dm *float64) (map[dmdist.Model]float64, error)
}

// Deps are the collaborators commands run against.
type Deps struct {
	Catalog   Catalog
	Estimator Estimator
	Tools     *observability.ToolCollector
	Log       logging.Logger

	closers []func() error
}

// Close releases resources opened by LoadDeps.
func (d *Deps) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	d.closers = nil
	return first
}

// LoadDeps wires the real psrcat client, density models and catalog cache
// from the configuration at path (defaults plus environment when empty).
func LoadDeps(ctx context.Context, path string) (*Deps, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log := logging.NewFromEnv()
	tools, err := observability.NewToolCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	deps := &Deps{Tools: tools, Log: log}
	clientOpts := []psrcat.Option{
		psrcat.WithLogger(log),
		psrcat.WithMetrics(tools),
		psrcat.WithMaxAge(cfg.CacheMaxAge),
	}
	if cfg.CacheDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.CacheDB), 0o755); err == nil {
			store, err := catalogstore.Open(cfg.CacheDB)
			if err != nil {
				log.Warn(ctx, "catalog cache unavailable", logging.String("path", cfg.CacheDB), logging.Err(err))
			} else {
				clientOpts = append(clientOpts, psrcat.WithStore(store))
				deps.closers = append(deps.closers, store.Close)
			}
		}
	}
	deps.Catalog = psrcat.NewClient(cfg.Psrcat.Binary, cfg.Psrcat.DB, clientOpts...)
	deps.Estimator = dmdist.New(
		dmdist.Paths{Binary: cfg.NE2001.Binary, Input: cfg.NE2001.Input},
		dmdist.Paths{Binary: cfg.YMW16.Binary, Input: cfg.YMW16.Input},
		dmdist.WithLogger(log),
		dmdist.WithMetrics(tools),
	)
	return deps, nil
}

func (opts *RootOptions) deps(ctx context.Context) (*Deps, error) {
	if opts.Deps != nil {
		return opts.Deps, nil
	}
	deps, err := LoadDeps(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.Deps = deps
	return deps, nil
}

package psrcat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/catalogstore"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/process"
)

// RecordStore persists fetched rows so repeated lookups skip psrcat.
// *catalogstore.Store implements it.
type RecordStore interface {
	Entry(ctx context.Context, name string) (catalogstore.Entry, bool, error)
	Put(ctx context.Context, name string, fields map[string]string) error
	Delete(ctx context.Context, name string) error
}

// Client runs psrcat against one database file.
type Client struct {
	binary string
	db     string

	runner      process.Runner
	log         logging.Logger
	metrics     *observability.ToolCollector
	store       RecordStore
	maxAge      time.Duration
	now         func() time.Time
	pulsarOpts  []core.Option
	parallelism int
}

// Option configures a Client.
type Option func(*Client)

// WithRunner replaces the process runner; tests inject fakes here.
func WithRunner(r process.Runner) Option {
	return func(c *Client) { c.runner = r }
}

// WithLogger sets the client logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithMetrics records psrcat invocations on tools.
func WithMetrics(tools *observability.ToolCollector) Option {
	return func(c *Client) { c.metrics = tools }
}

// WithStore enables the record snapshot store.
func WithStore(s RecordStore) Option {
	return func(c *Client) { c.store = s }
}

// WithMaxAge makes stored rows older than d stale: they are re-fetched and
// served only if psrcat then fails. Zero keeps rows indefinitely.
func WithMaxAge(d time.Duration) Option {
	return func(c *Client) { c.maxAge = d }
}

// WithPulsarOptions applies opts to every record the client builds.
func WithPulsarOptions(opts ...core.Option) Option {
	return func(c *Client) { c.pulsarOpts = append(c.pulsarOpts, opts...) }
}

// WithParallelism bounds concurrent psrcat processes in FetchMany.
func WithParallelism(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// NewClient constructs a Client for the given binary and database.
func NewClient(binary, db string, opts ...Option) *Client {
	c := &Client{
		binary:      binary,
		db:          db,
		log:         logging.Noop(),
		now:         time.Now,
		parallelism: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.runner = process.Observed{Tool: "psrcat", Next: c.runner, Log: c.log, Metrics: c.metrics}
	return c
}

// Command builds the psrcat invocation for params plus extraArgs.
func (c *Client) Command(extraArgs, params []string) process.Command {
	args := []string{"-db_file", c.db, "-o", "long_error_csv"}
	args = append(args, extraArgs...)
	args = append(args, "-c", strings.Join(params, " "))
	return process.Command{Path: c.binary, Args: args}
}

// FetchRecords runs psrcat and parses every returned row.
func (c *Client) FetchRecords(ctx context.Context, extraArgs, extraParams []string) ([]Record, error) {
	params := withDefaults(extraParams)
	fields, err := GenerateFields(params)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "psrcat.fetch", "",
		attribute.StringSlice("psrcat.args", extraArgs),
		attribute.Int("psrcat.fields", len(fields)),
	)
	out, err := c.runner.Run(ctx, c.Command(extraArgs, params))
	if err != nil {
		observability.EndSpan(span, err)
		return nil, fmt.Errorf("psrcat: %w", err)
	}
	records, err := ParseRecords(out, fields)
	if err == nil {
		span.SetAttributes(attribute.Int("psrcat.rows", len(records)))
	}
	observability.EndSpan(span, err)
	return records, err
}

// FetchRecord returns the row for one pulsar, consulting the store first.
func (c *Client) FetchRecord(ctx context.Context, name string, extraParams ...string) (Record, error) {
	fields, err := GenerateFields(withDefaults(extraParams))
	if err != nil {
		return nil, err
	}
	log := logging.WithPulsar(logging.FromContextOr(ctx, c.log), name)

	var stale Record
	if c.store != nil {
		entry, ok, err := c.store.Entry(ctx, name)
		switch {
		case err != nil:
			log.Warn(ctx, "catalog store lookup failed", logging.Err(err))
		case ok && Record(entry.Fields).Covers(fields):
			age := c.now().Sub(entry.FetchedAt)
			if c.maxAge <= 0 || age <= c.maxAge {
				log.Debug(ctx, "catalog row served from store")
				return Record(entry.Fields), nil
			}
			log.Debug(ctx, "catalog row is stale", logging.Duration("age", age))
			stale = Record(entry.Fields)
		}
	}

	records, err := c.FetchRecords(ctx, []string{name}, extraParams)
	if err == nil && len(records) == 0 {
		err = fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		if stale != nil && !errors.Is(err, ErrNotFound) {
			log.Warn(ctx, "psrcat refresh failed, serving stale catalog row", logging.Err(err))
			return stale, nil
		}
		return nil, err
	}
	rec := records[0]
	if c.store != nil {
		if err := c.store.Put(ctx, name, rec); err != nil {
			log.Warn(ctx, "catalog store write failed", logging.Err(err))
		}
	}
	return rec, nil
}

// Forget drops the stored rows for names so the next lookup runs psrcat.
func (c *Client) Forget(ctx context.Context, names ...string) error {
	if c.store == nil {
		return nil
	}
	var errs []error
	for _, name := range names {
		if err := c.store.Delete(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FetchPulsar looks up one pulsar by name.
func (c *Client) FetchPulsar(ctx context.Context, name string, extraParams ...string) (*core.Pulsar, error) {
	rec, err := c.FetchRecord(ctx, name, extraParams...)
	if err != nil {
		return nil, err
	}
	p, err := rec.Pulsar(c.pulsarOpts...)
	if err != nil {
		return nil, fmt.Errorf("pulsar %s: %w", name, err)
	}
	return p, nil
}

// FetchPulsars returns every pulsar matching a psrcat logical condition
// (passed with -l), keyed by name. An empty condition selects the whole
// catalog.
func (c *Client) FetchPulsars(ctx context.Context, condition string, extraParams ...string) (map[string]*core.Pulsar, error) {
	var extraArgs []string
	if condition != "" {
		extraArgs = append(extraArgs, "-l", condition)
	}
	records, err := c.FetchRecords(ctx, extraArgs, extraParams)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*core.Pulsar, len(records))
	for _, rec := range records {
		p, err := rec.Pulsar(c.pulsarOpts...)
		if err != nil {
			return nil, fmt.Errorf("pulsar %s: %w", rec.Name(), err)
		}
		out[p.Name] = p
	}
	return out, nil
}

// FetchMany looks up several pulsars with bounded concurrency. The first
// failure cancels the remaining lookups.
func (c *Client) FetchMany(ctx context.Context, names []string, extraParams ...string) (map[string]*core.Pulsar, error) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	var mu sync.Mutex
	out := make(map[string]*core.Pulsar, len(names))
	for _, name := range names {
		g.Go(func() error {
			p, err := c.FetchPulsar(ctx, name, extraParams...)
			if err != nil {
				return err
			}
			mu.Lock()
			out[name] = p
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

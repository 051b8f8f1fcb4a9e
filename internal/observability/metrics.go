package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Collector bundles Prometheus metrics for the pulsar service and provides
// helpers to wire them into gRPC servers, HTTP handlers and pulsar records.
type Collector struct {
	gatherer prometheus.Gatherer

	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec

	CatalogPulsars prometheus.Gauge

	CacheLookups       *prometheus.CounterVec
	CacheInvalidations prometheus.Counter
	CacheHitRatio      prometheus.Gauge

	hits   atomic.Int64
	misses atomic.Int64
}

// NewCollector registers service metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psrinfo_rpc_requests_total",
		Help: "Total number of handled RPCs, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"})
	requests, err := register(reg, requests, "psrinfo_rpc_requests_total")
	if err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "psrinfo_rpc_request_duration_seconds",
		Help:    "RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"service", "method"})
	durations, err = register(reg, durations, "psrinfo_rpc_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	pulsars, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psrinfo_catalog_pulsars",
		Help: "Current number of pulsar records held in memory.",
	}), "psrinfo_catalog_pulsars")
	if err != nil {
		return nil, err
	}

	lookups, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psrinfo_derived_cache_lookups_total",
		Help: "Derived-quantity cache lookups, labeled by quantity kind and result (hit or miss).",
	}, []string{"kind", "result"}), "psrinfo_derived_cache_lookups_total")
	if err != nil {
		return nil, err
	}

	invalidations, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "psrinfo_derived_cache_invalidations_total",
		Help: "Number of wholesale derived-cache invalidations.",
	}), "psrinfo_derived_cache_invalidations_total")
	if err != nil {
		return nil, err
	}

	ratio, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "psrinfo_derived_cache_hit_ratio",
		Help: "Hit ratio for derived-quantity cache lookups since start.",
	}), "psrinfo_derived_cache_hit_ratio")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:           gatherer,
		RPCRequests:        requests,
		RPCDurations:       durations,
		CatalogPulsars:     pulsars,
		CacheLookups:       lookups,
		CacheInvalidations: invalidations,
		CacheHitRatio:      ratio,
	}, nil
}

// UnaryServerInterceptor records request counts and durations for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		if c == nil {
			return resp, err
		}

		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		code := status.Code(err).String()

		if c.RPCRequests != nil {
			c.RPCRequests.WithLabelValues(service, method, code).Inc()
		}
		if c.RPCDurations != nil {
			c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		}

		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetPulsarCount satisfies kb.CountRecorder so the knowledge base drives the
// catalog gauge from its mutators.
func (c *Collector) SetPulsarCount(n int) {
	if c == nil || c.CatalogPulsars == nil {
		return
	}
	c.CatalogPulsars.Set(float64(n))
}

// CacheHit, CacheMiss and CacheInvalidated satisfy core.CacheObserver.
func (c *Collector) CacheHit(kind string) {
	if c == nil {
		return
	}
	c.hits.Add(1)
	c.observeLookup(kind, "hit")
}

func (c *Collector) CacheMiss(kind string) {
	if c == nil {
		return
	}
	c.misses.Add(1)
	c.observeLookup(kind, "miss")
}

func (c *Collector) CacheInvalidated() {
	if c == nil || c.CacheInvalidations == nil {
		return
	}
	c.CacheInvalidations.Inc()
}

func (c *Collector) observeLookup(kind, result string) {
	if c.CacheLookups != nil {
		c.CacheLookups.WithLabelValues(kind, result).Inc()
	}
	if c.CacheHitRatio != nil {
		hits, misses := c.hits.Load(), c.misses.Load()
		if total := hits + misses; total > 0 {
			c.CacheHitRatio.Set(float64(hits) / float64(total))
		}
	}
}

// SplitMethod returns the short service and method names of a gRPC full
// method such as "/psrinfo.v1.PulsarService/Describe". Missing parts come
// back as "unknown".
func SplitMethod(fullMethod string) (service, method string) {
	service, method = "unknown", "unknown"
	path := strings.TrimPrefix(fullMethod, "/")
	slash := strings.LastIndex(path, "/")
	if slash < 0 {
		return service, method
	}
	if m := path[slash+1:]; m != "" {
		method = m
	}
	svc := path[:slash]
	if k := strings.LastIndex(svc, "/"); k >= 0 {
		svc = svc[k+1:]
	}
	if k := strings.LastIndex(svc, "."); k >= 0 {
		svc = svc[k+1:]
	}
	if svc != "" {
		service = svc
	}
	return service, method
}

// register adds c to reg. When an equivalent collector is already
// registered the existing one is returned so repeated construction against
// one registry shares series.
func register[T prometheus.Collector](reg prometheus.Registerer, c T, name string) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, fmt.Errorf("register %s: %w", name, err)
	}
	existing, ok := are.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("register %s: existing collector has type %T", name, are.ExistingCollector)
	}
	return existing, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/catalogstore"
	"github.com/signalsfoundry/psrinfo/internal/config"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/psrcat"
	"github.com/signalsfoundry/psrinfo/internal/rpc"
	"github.com/signalsfoundry/psrinfo/kb"
)

// Config is the server's runtime configuration.
type Config struct {
	App            config.Config
	ListenAddress  string
	MetricsAddress string
	Preload        []string

	// Registry defaults to the process-wide Prometheus registry.
	Registry *prometheus.Registry
	// Fetcher and Estimator replace the psrcat client and density models.
	Fetcher   catalogFetcher
	Estimator rpc.DistanceEstimator
}

type catalogFetcher interface {
	rpc.Fetcher
	FetchMany(ctx context.Context, names []string, extraParams ...string) (map[string]*core.Pulsar, error)
}

func main() {
	configPath := flag.String("config", "", "path to a psrinfo YAML config file")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	preload := flag.String("preload", "", "comma-separated pulsar names to fetch at startup")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	app, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load configuration", logging.Err(err))
		os.Exit(1)
	}
	cfg := Config{
		App:            app,
		ListenAddress:  firstNonEmpty(*grpcAddr, app.Server.GRPCAddr),
		MetricsAddress: firstNonEmpty(*metricsAddr, app.Server.MetricsAddr),
		Preload:        splitNames(*preload),
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves PulsarService on lis until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	if cfg.Registry != nil {
		reg = cfg.Registry
	}
	collector, err := observability.NewCollector(reg)
	if err != nil {
		return fmt.Errorf("metrics collector: %w", err)
	}
	tools, err := observability.NewToolCollector(reg)
	if err != nil {
		return fmt.Errorf("tool metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	catalog := kb.NewKnowledgeBase()
	catalog.SetMetricsRecorder(collector)

	pulsarOpts := []core.Option{core.WithCacheObserver(collector)}
	fetcher := cfg.Fetcher
	var store *catalogstore.Store
	if fetcher == nil {
		clientOpts := []psrcat.Option{
			psrcat.WithLogger(log),
			psrcat.WithMetrics(tools),
			psrcat.WithPulsarOptions(pulsarOpts...),
			psrcat.WithMaxAge(cfg.App.CacheMaxAge),
		}
		store = openStore(ctx, cfg.App.CacheDB, log)
		if store != nil {
			defer store.Close()
			clientOpts = append(clientOpts, psrcat.WithStore(store))
		}
		fetcher = psrcat.NewClient(cfg.App.Psrcat.Binary, cfg.App.Psrcat.DB, clientOpts...)
	}
	estimator := cfg.Estimator
	if estimator == nil {
		estimator = dmdist.New(
			dmdist.Paths{Binary: cfg.App.NE2001.Binary, Input: cfg.App.NE2001.Input},
			dmdist.Paths{Binary: cfg.App.YMW16.Binary, Input: cfg.App.YMW16.Input},
			dmdist.WithLogger(log),
			dmdist.WithMetrics(tools),
		)
	}

	warmFromStore(ctx, store, catalog, pulsarOpts, cfg.App.CacheMaxAge, time.Now(), log)
	preload(ctx, fetcher, catalog, cfg.Preload, log)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			rpc.RequestIDUnaryServerInterceptor(log),
			rpc.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	rpc.RegisterPulsarServer(server, rpc.NewService(catalog, fetcher, estimator, log))

	errCh := make(chan error, 1)
	log.Info(ctx, "starting psrinfo gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		errCh <- server.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down psrinfo server")
		server.GracefulStop()
		<-errCh
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return serveErr
	}
	return nil
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

func openStore(ctx context.Context, path string, log logging.Logger) *catalogstore.Store {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Warn(ctx, "catalog cache unavailable", logging.String("path", path), logging.Err(err))
		return nil
	}
	store, err := catalogstore.Open(path)
	if err != nil {
		log.Warn(ctx, "catalog cache unavailable", logging.String("path", path), logging.Err(err))
		return nil
	}
	return store
}

// warmFromStore loads cached catalog rows into the knowledge base. Rows older
// than maxAge (when positive) are left for psrcat to refresh on first use.
func warmFromStore(ctx context.Context, store *catalogstore.Store, catalog *kb.KnowledgeBase, opts []core.Option, maxAge time.Duration, now time.Time, log logging.Logger) {
	if store == nil {
		return
	}
	entries, err := store.List(ctx)
	if err != nil {
		log.Warn(ctx, "skipping catalog cache warmup", logging.Err(err))
		return
	}
	loaded, stale := 0, 0
	for _, e := range entries {
		if maxAge > 0 && now.Sub(e.FetchedAt) > maxAge {
			stale++
			continue
		}
		p, err := psrcat.Record(e.Fields).Pulsar(opts...)
		if err != nil {
			log.Warn(ctx, "skipping cached row", logging.Pulsar(e.Name), logging.Err(err))
			continue
		}
		catalog.PutPulsar(p)
		loaded++
	}
	log.Info(ctx, "loaded cached pulsars",
		logging.String("path", store.Path()),
		logging.Int("count", loaded),
		logging.Int("stale", stale),
	)
}

func preload(ctx context.Context, fetcher catalogFetcher, catalog *kb.KnowledgeBase, names []string, log logging.Logger) {
	if len(names) == 0 {
		return
	}
	pulsars, err := fetcher.FetchMany(ctx, names)
	if err != nil {
		log.Warn(ctx, "preload failed", logging.Err(err))
		return
	}
	for _, p := range pulsars {
		catalog.PutPulsar(p)
	}
	log.Info(ctx, "preloaded pulsars", logging.Int("count", len(pulsars)))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitNames(s string) []string {
	var out []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

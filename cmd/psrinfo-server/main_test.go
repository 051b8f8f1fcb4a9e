package main

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/catalogstore"
	"github.com/signalsfoundry/psrinfo/internal/config"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/psrcat"
	"github.com/signalsfoundry/psrinfo/internal/rpc"
	"github.com/signalsfoundry/psrinfo/kb"
	"github.com/signalsfoundry/psrinfo/model"
)

type stubFetcher struct{}

func (stubFetcher) FetchPulsar(_ context.Context, name string, _ ...string) (*core.Pulsar, error) {
	if name != "B1937+21" {
		return nil, psrcat.ErrNotFound
	}
	return core.New(name, model.FrameEquatorial, model.Coord{Lon: 294.9106, Lat: 21.5831},
		core.WithProperMotion(model.ProperMotion{LonCosLat: -0.46, Lat: -0.41}),
		core.WithReferenceEpoch(55000),
	)
}

func (f stubFetcher) FetchMany(ctx context.Context, names []string, _ ...string) (map[string]*core.Pulsar, error) {
	out := make(map[string]*core.Pulsar, len(names))
	for _, name := range names {
		p, err := f.FetchPulsar(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

type stubEstimator struct{}

func (stubEstimator) DistanceFromDM(context.Context, dmdist.Target, dmdist.Model, *float64) (float64, error) {
	return 2.9, nil
}

func (stubEstimator) EstimateAll(context.Context, dmdist.Target, *float64) (map[dmdist.Model]float64, error) {
	return map[dmdist.Model]float64{dmdist.NE2001: 3.6, dmdist.YMW16: 2.9}, nil
}

func TestServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	reg := prometheus.NewRegistry()
	cfg := Config{
		App:           config.Default(t.TempDir()),
		ListenAddress: lis.Addr().String(),
		Preload:       []string{"B1937+21"},
		Registry:      reg,
		Fetcher:       stubFetcher{},
		Estimator:     stubEstimator{},
	}
	log := logging.New(logging.Config{Level: "warn", Format: "text"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///"+cfg.ListenAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()

	req, err := structpb.NewStruct(map[string]any{"name": "B1937+21", "epoch": "J2030"})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	client := rpc.NewClient(conn)
	resp, err := client.Predict(ctx, req, grpc.WaitForReady(true))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if !resp.GetFields()["extrapolated"].GetBoolValue() {
		t.Fatalf("Predict response not extrapolated: %v", resp)
	}

	collector, err := observability.NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	if got := testutil.ToFloat64(collector.CatalogPulsars); got != 1 {
		t.Fatalf("catalog gauge = %v, want 1", got)
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestSplitNames(t *testing.T) {
	got := splitNames(" B1937+21, ,J0437-4715 ")
	if len(got) != 2 || got[0] != "B1937+21" || got[1] != "J0437-4715" {
		t.Fatalf("splitNames = %v", got)
	}
	if got := splitNames(""); got != nil {
		t.Fatalf("splitNames(\"\") = %v, want nil", got)
	}
}

func TestWarmFromStoreSkipsStaleRows(t *testing.T) {
	ctx := context.Background()
	store, err := catalogstore.Open(filepath.Join(t.TempDir(), "catalog.sqlite"))
	if err != nil {
		t.Fatalf("catalogstore.Open: %v", err)
	}
	defer store.Close()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	row := func(name string) map[string]string {
		return map[string]string{"name": name, "ra": "05:34:31.973", "dec": "+22:00:52.06"}
	}
	err = store.PutMany(ctx, []catalogstore.Entry{
		{Name: "B0531+21", Fields: row("B0531+21"), FetchedAt: now.Add(-time.Hour)},
		{Name: "B1937+21", Fields: row("B1937+21"), FetchedAt: now.Add(-30 * 24 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("PutMany: %v", err)
	}

	catalog := kb.NewKnowledgeBase()
	warmFromStore(ctx, store, catalog, nil, 7*24*time.Hour, now, logging.Noop())
	if catalog.Len() != 1 {
		t.Fatalf("loaded %d pulsars, want 1", catalog.Len())
	}
	if _, err := catalog.GetPulsar("B1937+21"); err == nil {
		t.Fatalf("stale row was loaded")
	}

	all := kb.NewKnowledgeBase()
	warmFromStore(ctx, store, all, nil, 0, now, logging.Noop())
	if all.Len() != 2 {
		t.Fatalf("loaded %d pulsars with no max age, want 2", all.Len())
	}
}

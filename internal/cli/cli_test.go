package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/internal/psrcat"
	"github.com/signalsfoundry/psrinfo/model"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

type fakeCatalog struct {
	mu         sync.Mutex
	conditions []string
	params     [][]string
	forgotten  []string
}

func (c *fakeCatalog) build(name string) (*core.Pulsar, error) {
	switch name {
	case "B0531+21":
		return core.New("B0531+21", model.FrameEquatorial, model.Coord{Lon: 83.63308, Lat: 22.0145},
			core.WithProperMotion(model.ProperMotion{LonCosLat: -14.7, Lat: 2.0}),
			core.WithPositionCovariance(model.DiagCov(0.075, 0.06)),
			core.WithProperMotionCovariance(model.DiagCov(0.8, 0.8)),
			core.WithReferenceEpoch(55000),
			core.WithAttrs(map[string]string{"DM": "56.77"}),
		)
	case "J1939+2134":
		return core.New("J1939+2134", model.FrameEquatorial, model.Coord{Lon: 294.91, Lat: 21.58})
	default:
		return nil, psrcat.ErrNotFound
	}
}

func (c *fakeCatalog) FetchPulsar(_ context.Context, name string, params ...string) (*core.Pulsar, error) {
	c.mu.Lock()
	c.params = append(c.params, params)
	c.mu.Unlock()
	return c.build(name)
}

func (c *fakeCatalog) FetchPulsars(_ context.Context, condition string, params ...string) (map[string]*core.Pulsar, error) {
	c.mu.Lock()
	c.conditions = append(c.conditions, condition)
	c.params = append(c.params, params)
	c.mu.Unlock()
	return c.FetchMany(context.Background(), []string{"B0531+21", "J1939+2134"})
}

func (c *fakeCatalog) Forget(_ context.Context, names ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten = append(c.forgotten, names...)
	return nil
}

func (c *fakeCatalog) FetchMany(_ context.Context, names []string, _ ...string) (map[string]*core.Pulsar, error) {
	out := make(map[string]*core.Pulsar, len(names))
	for _, name := range names {
		p, err := c.build(name)
		if err != nil {
			return nil, err
		}
		out[name] = p
	}
	return out, nil
}

type fakeEstimator struct {
	inputs []float64
}

func (e *fakeEstimator) record(v *float64) {
	if v != nil {
		e.inputs = append(e.inputs, *v)
	}
}

func (e *fakeEstimator) DistanceFromDM(_ context.Context, _ dmdist.Target, m dmdist.Model, dm *float64) (float64, error) {
	e.record(dm)
	if m == dmdist.NE2001 {
		return 1.73, nil
	}
	return 1.31, nil
}

func (e *fakeEstimator) DMFromDistance(_ context.Context, _ dmdist.Target, m dmdist.Model, dist *float64) (float64, error) {
	e.record(dist)
	if m == dmdist.NE2001 {
		return 64.2, nil
	}
	return 58.9, nil
}

func (e *fakeEstimator) EstimateAll(_ context.Context, _ dmdist.Target, dm *float64) (map[dmdist.Model]float64, error) {
	e.record(dm)
	return map[dmdist.Model]float64{dmdist.NE2001: 1.73, dmdist.YMW16: 1.31}, nil
}

type harness struct {
	catalog   *fakeCatalog
	estimator *fakeEstimator
	deps      *Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	tools, err := observability.NewToolCollector(prometheus.NewRegistry())
	require.NoError(t, err)
	h := &harness{catalog: &fakeCatalog{}, estimator: &fakeEstimator{}}
	h.deps = &Deps{Catalog: h.catalog, Estimator: h.estimator, Tools: tools, Log: logging.Noop()}
	return h
}

func (h *harness) run(args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := NewRootCommandWithDeps(h.deps)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeData(t *testing.T, out string, data any) {
	t.Helper()
	resp := CLIResponse{Data: data}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)
}

func TestRootRejectsUnknownFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--format", "yaml", "describe", "B0531+21")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDescribeText(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("describe", "B0531+21")
	require.NoError(t, err)

	assert.Contains(t, out, "PSR B0531+21 (equatorial), reference epoch MJD 55000")
	assert.Contains(t, out, "ra=05:34:31.939")
	assert.Contains(t, out, "ecliptic")
	assert.Contains(t, out, "galactic")
	assert.Contains(t, out, "DM = 56.77")
}

func TestDescribeJSON(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--format", "json", "describe", "B0531+21", "--param", "p0")
	require.NoError(t, err)

	var view pulsarView
	decodeData(t, out, &view)
	assert.Equal(t, "B0531+21", view.Name)
	require.Len(t, view.Frames, 3)
	for _, f := range view.Frames {
		assert.NotNil(t, f.ProperMotion, f.Frame)
		assert.NotNil(t, f.PositionCov, f.Frame)
		assert.NotNil(t, f.MotionCov, f.Frame)
	}
	assert.InDelta(t, 184.5575, view.Frames[2].Lon, 1e-3)
	assert.Equal(t, [][]string{{"P0"}}, h.catalog.params)
}

func TestDescribeSelectedFrames(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--format", "json", "describe", "J1939+2134", "--frame", "gal")
	require.NoError(t, err)

	var view pulsarView
	decodeData(t, out, &view)
	require.Len(t, view.Frames, 1)
	assert.Equal(t, "galactic", view.Frames[0].Frame)
	assert.Nil(t, view.Frames[0].ProperMotion)
	assert.Nil(t, view.Frames[0].PositionCov)
}

func TestDescribeErrors(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("describe", "J0000+0000")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)

	out, err = h.run("describe", "B0531+21", "--frame", "supergalactic")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidArgs)
}

func TestPredictJSON(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--format", "json", "predict", "B0531+21", "--epoch", "MJD55365.25")
	require.NoError(t, err)

	var view predictionView
	decodeData(t, out, &view)
	assert.True(t, view.Extrapolated)
	assert.InDelta(t, 1.0, view.ElapsedYears, 1e-12)
	assert.InDelta(t, 22.0145+2.0/3.6e6, view.Dec, 1e-9)
	require.NotNil(t, view.Covariance)
	assert.InDelta(t, 0.06*0.06+0.64e-6, view.Covariance[1][1], 1e-12)
}

func TestPredictWithoutProperMotion(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("predict", "J1939+2134", "--epoch", "J2030")
	require.NoError(t, err)
	assert.Contains(t, out, "position unchanged")

	out, err = h.run("predict", "J1939+2134", "--epoch", "J2030", "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnavailable)
	assert.True(t, errors.Is(err, core.ErrNoProperMotion))
}

func TestPredictRejectsBadEpoch(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("predict", "B0531+21", "--epoch", "next tuesday")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTrackWalksEpochs(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--format", "json", "track", "B0531+21", "--end", "56095.75", "--step", "365.25")
	require.NoError(t, err)

	var view trackView
	decodeData(t, out, &view)
	require.Len(t, view.Epochs, 4)
	for i, e := range view.Epochs {
		assert.InDelta(t, float64(i), e.ElapsedYears, 1e-9)
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(h.deps.Tools.TrackSteps))
}

func TestTrackRejectsUnboundedWalks(t *testing.T) {
	cases := []struct {
		args []string
		want error
	}{
		{[]string{"--end", "nan"}, timectrl.ErrBadEpoch},
		{[]string{"--end", "+Inf"}, timectrl.ErrBadEpoch},
		{[]string{"--end", "56095.75", "--step", "NaN"}, timectrl.ErrBadStep},
		{[]string{"--end", "56095.75", "--step", "1e-9"}, timectrl.ErrTooManyEpochs},
		{[]string{"--end", "56095.75", "--step", "1", "--max-epochs", "10"}, timectrl.ErrTooManyEpochs},
	}
	for _, tc := range cases {
		h := newHarness(t)
		_, err := h.run(append([]string{"track", "B0531+21"}, tc.args...)...)
		require.Error(t, err, "args %v", tc.args)
		assert.True(t, errors.Is(err, tc.want), "args %v: %v", tc.args, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err), "args %v", tc.args)
		assert.Equal(t, 0.0, testutil.ToFloat64(h.deps.Tools.TrackSteps), "args %v", tc.args)
	}
}

func TestTrackNeedsReferenceEpoch(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("track", "J1939+2134", "--end", "J2030")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoProperMotion))

	_, err = h.run("track", "J1939+2134", "--start", "J2000", "--end", "J2030", "--step", "3652.5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoProperMotion))
}

func TestDist(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("dist", "B0531+21")
	require.NoError(t, err)
	assert.Contains(t, out, "B0531+21 NE2001 distance = 1.73 kpc")
	assert.Contains(t, out, "B0531+21 YMW16 distance = 1.31 kpc")
	assert.Empty(t, h.estimator.inputs)

	out, err = h.run("--format", "json", "dist", "B0531+21", "--model", "ymw16", "--dm", "50")
	require.NoError(t, err)
	var view estimateView
	decodeData(t, out, &view)
	assert.Equal(t, map[string]float64{"YMW16": 1.31}, view.Values)
	assert.Equal(t, []float64{50}, h.estimator.inputs)

	_, err = h.run("dist", "B0531+21", "--model", "tc93")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestDM(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("dm", "B0531+21", "--dist", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "B0531+21 NE2001 DM = 64.2 pc/cm^3")
	assert.Contains(t, out, "B0531+21 YMW16 DM = 58.9 pc/cm^3")
	assert.Equal(t, []float64{2, 2}, h.estimator.inputs)
}

func TestSetPMSwitchesFrame(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("--format", "json", "set-pm", "B0531+21",
		"--frame", "ecliptic", "--pm-lon", "-13", "--pm-lat", "5", "--err-lon", "0.5", "--err-lat", "0.4")
	require.NoError(t, err)

	var view pulsarView
	decodeData(t, out, &view)
	assert.Equal(t, "ecliptic", view.Frame)
	ecl := view.Frames[1]
	require.Equal(t, "ecliptic", ecl.Frame)
	require.NotNil(t, ecl.ProperMotion)
	assert.Equal(t, motionView{LonCosLat: -13, Lat: 5}, *ecl.ProperMotion)
	require.NotNil(t, ecl.MotionCov)
	assert.InDelta(t, 0.25, ecl.MotionCov[0][0], 1e-12)
	assert.InDelta(t, 0.16, ecl.MotionCov[1][1], 1e-12)
}

func TestSetPMRequiresComponents(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("set-pm", "B0531+21", "--pm-lon", "1")
	require.Error(t, err)
}

func TestFetch(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("fetch", "J1939+2134", "B0531+21")
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n"))
	require.Len(t, lines, 2)
	assert.True(t, bytes.HasPrefix(lines[0], []byte("B0531+21")))

	out, err = h.run("--format", "json", "fetch", "--condition", "dm < 100", "-p", "f0")
	require.NoError(t, err)
	var list []pulsarView
	decodeData(t, out, &list)
	assert.Len(t, list, 2)
	assert.Equal(t, []string{"dm < 100"}, h.catalog.conditions)

	_, err = h.run("fetch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFetchRefreshDropsCachedRows(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("fetch", "B0531+21")
	require.NoError(t, err)
	assert.Empty(t, h.catalog.forgotten)

	_, err = h.run("fetch", "--refresh", "B0531+21", "J1939+2134")
	require.NoError(t, err)
	assert.Equal(t, []string{"B0531+21", "J1939+2134"}, h.catalog.forgotten)
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", errors.New("x"))))
	assert.Equal(t, "bad: x", WrapExitError(ExitCommandError, "bad", errors.New("x")).Error())
}

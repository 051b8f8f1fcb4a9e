package dmdist

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/process"
	"github.com/signalsfoundry/psrinfo/model"
)

const ne2001DistOutput = `#NE2001 input: 4 parameters
     184.5575       l       (deg)       GalacticLongitude
      -5.7843       b       (deg)       GalacticLatitude
      56.7712       DM/D    (pc-cm^{-3}_or_kpc)        Input_DM_or_Distance
            1       ndir    1:DM->D;-1:D->DM            Which?(DM_or_D)
#NE2001 output: 14 values
        1.981       DIST    (kpc)            ModelDistance
     56.77118       DM      (pc-cm^{-3})     DispersionMeasure
`

const ne2001DMOutput = `#NE2001 input: 4 parameters
     184.5575       l       (deg)       GalacticLongitude
      -5.7843       b       (deg)       GalacticLatitude
          2.0       DM/D    (pc-cm^{-3}_or_kpc)        Input_DM_or_Distance
           -1       ndir    1:DM->D;-1:D->DM            Which?(DM_or_D)
#NE2001 output: 14 values
          2.0       DIST    (kpc)            ModelDistance
      57.3010       DM      (pc-cm^{-3})     DispersionMeasure
`

const ymw16Output = ` Gal: gl=184.558 gb=-5.784 DM: 56.77 Dist: 1310.5 log(tau_sc): -6.473`

type fakeRunner struct {
	mu    sync.Mutex
	calls []process.Command
	out   func(cmd process.Command) string
}

func (f *fakeRunner) Run(_ context.Context, cmd process.Command) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	f.mu.Unlock()
	return []byte(f.out(cmd)), nil
}

func (f *fakeRunner) last() process.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type target struct {
	l, b  float64
	attrs map[string]float64
}

func (t target) GalacticPosition() (float64, float64) { return t.l, t.b }
func (t target) String() string                       { return "<PSR test (galactic)>" }
func (t target) FloatAttr(name string) (float64, bool) {
	v, ok := t.attrs[name]
	return v, ok
}

var paths = struct{ ne, ymw Paths }{
	ne:  Paths{Binary: "/opt/NE2001/bin.NE2001/NE2001", Input: "/opt/NE2001/input.NE2001"},
	ymw: Paths{Binary: "/opt/ymw16/ymw16", Input: "/opt/ymw16/"},
}

func TestParseModel(t *testing.T) {
	for in, want := range map[string]Model{"ne2001": NE2001, " YMW16 ": YMW16, "Ne2001": NE2001} {
		got, err := ParseModel(in)
		if err != nil || got != want {
			t.Fatalf("ParseModel(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseModel("TC93"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("error = %v, want ErrUnknownModel", err)
	}
}

func TestNE2001DistanceFromDM(t *testing.T) {
	runner := &fakeRunner{out: func(process.Command) string { return ne2001DistOutput }}
	est := New(paths.ne, paths.ymw, WithRunner(runner))
	tgt := target{l: 184.5575, b: -5.7843, attrs: map[string]float64{"dm": 56.7712}}

	dist, err := est.DistanceFromDM(context.Background(), tgt, NE2001, nil)
	if err != nil {
		t.Fatalf("DistanceFromDM: %v", err)
	}
	if dist != 1.981 {
		t.Fatalf("dist = %v, want 1.981", dist)
	}
	cmd := runner.last()
	if cmd.Path != paths.ne.Binary || cmd.Dir != paths.ne.Input {
		t.Fatalf("command = %+v", cmd)
	}
	if want := []string{"184.5575", "-5.7843", "56.7712", "1"}; !reflect.DeepEqual(cmd.Args, want) {
		t.Fatalf("args = %v, want %v", cmd.Args, want)
	}
}

func TestNE2001DMFromDistance(t *testing.T) {
	runner := &fakeRunner{out: func(process.Command) string { return ne2001DMOutput }}
	est := New(paths.ne, paths.ymw, WithRunner(runner))
	tgt := target{l: 184.5575, b: -5.7843, attrs: map[string]float64{"px": 0.5}}

	dm, err := est.DMFromDistance(context.Background(), tgt, NE2001, nil)
	if err != nil {
		t.Fatalf("DMFromDistance: %v", err)
	}
	if dm != 57.3010 {
		t.Fatalf("dm = %v", dm)
	}
	if want := []string{"184.5575", "-5.7843", "2", "-1"}; !reflect.DeepEqual(runner.last().Args, want) {
		t.Fatalf("args = %v, want %v", runner.last().Args, want)
	}
}

func TestYMW16(t *testing.T) {
	runner := &fakeRunner{out: func(process.Command) string { return ymw16Output }}
	est := New(paths.ne, paths.ymw, WithRunner(runner))
	tgt := target{l: 184.5575, b: -5.7843}

	dm := 56.77
	dist, err := est.DistanceFromDM(context.Background(), tgt, YMW16, &dm)
	if err != nil {
		t.Fatalf("DistanceFromDM: %v", err)
	}
	if math.Abs(dist-1.3105) > 1e-12 {
		t.Fatalf("dist = %v, want 1.3105 kpc", dist)
	}
	if want := []string{"-d", "/opt/ymw16/", "Gal", "184.5575", "-5.7843", "56.77", "1"}; !reflect.DeepEqual(runner.last().Args, want) {
		t.Fatalf("args = %v", runner.last().Args)
	}
	if runner.last().Dir != "" {
		t.Fatalf("YMW16 should not change directory")
	}

	d := 1.5
	got, err := est.DMFromDistance(context.Background(), tgt, YMW16, &d)
	if err != nil {
		t.Fatalf("DMFromDistance: %v", err)
	}
	if got != 56.77 {
		t.Fatalf("dm = %v", got)
	}
	if want := []string{"-d", "/opt/ymw16/", "Gal", "184.5575", "-5.7843", "1500", "2"}; !reflect.DeepEqual(runner.last().Args, want) {
		t.Fatalf("args = %v", runner.last().Args)
	}
}

func TestMissingInputs(t *testing.T) {
	est := New(paths.ne, paths.ymw, WithRunner(&fakeRunner{out: func(process.Command) string { return "" }}))
	tgt := target{attrs: map[string]float64{"px": 0}}
	if _, err := est.DistanceFromDM(context.Background(), tgt, NE2001, nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("missing dm error = %v", err)
	}
	if _, err := est.DMFromDistance(context.Background(), tgt, NE2001, nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("zero parallax error = %v", err)
	}
	dm := 10.0
	if _, err := est.DistanceFromDM(context.Background(), tgt, Model("TC93"), &dm); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("unknown model error = %v", err)
	}
}

func TestUnparseableOutput(t *testing.T) {
	for name, out := range map[string]string{
		"no keyword":   "segmentation fault",
		"bad number":   "abc DIST (kpc)",
		"keyword last": "Dist:",
		"keyword head": "DIST (kpc)",
	} {
		runner := &fakeRunner{out: func(process.Command) string { return out }}
		est := New(paths.ne, paths.ymw, WithRunner(runner))
		dm := 10.0
		m := NE2001
		if strings.Contains(out, "Dist:") {
			m = YMW16
		}
		if _, err := est.DistanceFromDM(context.Background(), target{}, m, &dm); !errors.Is(err, ErrExternalModelParse) {
			t.Fatalf("%s: error = %v, want ErrExternalModelParse", name, err)
		}
	}
}

func TestEstimateAllWithPulsar(t *testing.T) {
	runner := &fakeRunner{out: func(cmd process.Command) string {
		if cmd.Path == paths.ymw.Binary {
			return ymw16Output
		}
		return ne2001DistOutput
	}}
	est := New(paths.ne, paths.ymw, WithRunner(runner))

	p, err := core.New("B0531+21", model.FrameGalactic, model.Coord{Lon: 184.5575, Lat: -5.7843},
		core.WithAttrs(map[string]string{"dm": "56.77118"}))
	if err != nil {
		t.Fatalf("core.New: %v", err)
	}
	got, err := est.EstimateAll(context.Background(), p, nil)
	if err != nil {
		t.Fatalf("EstimateAll: %v", err)
	}
	if got[NE2001] != 1.981 || math.Abs(got[YMW16]-1.3105) > 1e-12 {
		t.Fatalf("EstimateAll = %v", got)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(runner.calls))
	}
}

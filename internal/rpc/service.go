package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/internal/dmdist"
	"github.com/signalsfoundry/psrinfo/internal/logging"
	"github.com/signalsfoundry/psrinfo/internal/observability"
	"github.com/signalsfoundry/psrinfo/kb"
	"github.com/signalsfoundry/psrinfo/model"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

// Fetcher loads a pulsar the catalog does not hold yet.
type Fetcher interface {
	FetchPulsar(ctx context.Context, name string, extraParams ...string) (*core.Pulsar, error)
}

// DistanceEstimator runs the electron-density models.
type DistanceEstimator interface {
	DistanceFromDM(ctx context.Context, t dmdist.Target, m dmdist.Model, dm *float64) (float64, error)
	EstimateAll(ctx context.Context, t dmdist.Target, dm *float64) (map[dmdist.Model]float64, error)
}

// Service implements PulsarServer over a knowledge base, falling back to the
// catalog fetcher for pulsars not loaded yet.
type Service struct {
	catalog   *kb.KnowledgeBase
	fetcher   Fetcher
	estimator DistanceEstimator
	log       logging.Logger
	now       func() time.Time
}

var _ PulsarServer = (*Service)(nil)

// NewService constructs a Service. fetcher and estimator may be nil, in
// which case lookups are limited to the catalog and Distance is unavailable.
func NewService(catalog *kb.KnowledgeBase, fetcher Fetcher, estimator DistanceEstimator, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	if catalog == nil {
		catalog = kb.NewKnowledgeBase()
	}
	return &Service{catalog: catalog, fetcher: fetcher, estimator: estimator, log: log, now: time.Now}
}

func (s *Service) resolve(ctx context.Context, name string) (*core.Pulsar, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	p, err := s.catalog.GetPulsar(name)
	if err == nil || s.fetcher == nil {
		return p, err
	}

	ctx, span := observability.StartSpan(ctx, "rpc.resolve", name)
	p, err = s.fetcher.FetchPulsar(ctx, name)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if err := s.catalog.AddPulsar(p); err != nil {
		if errors.Is(err, kb.ErrPulsarExists) {
			return s.catalog.GetPulsar(name)
		}
		return nil, err
	}
	logging.FromContextOr(ctx, s.log).Info(ctx, "pulsar loaded from catalog", logging.Pulsar(name))
	return p, nil
}

// Describe returns positions, proper motions and covariances in every frame.
// Request: {"name"}.
func (s *Service) Describe(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.resolve(ctx, stringField(in, "name"))
	if err != nil {
		return nil, ToStatusError(err)
	}
	doc, err := describe(p)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(doc)
}

// Predict extrapolates the equatorial position. Request: {"name", "epoch"
// (MJD number or any string timectrl.ParseEpoch accepts), "strict" (fail
// without proper motion)}.
func (s *Service) Predict(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.resolve(ctx, stringField(in, "name"))
	if err != nil {
		return nil, ToStatusError(err)
	}
	target, err := s.epoch(in)
	if err != nil {
		return nil, ToStatusError(err)
	}

	predict := core.PredictPosition
	if in.GetFields()["strict"].GetBoolValue() {
		predict = core.Extrapolate
	}
	pred, err := predict(p, target)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(prediction(p.Name, pred))
}

func (s *Service) epoch(in *structpb.Struct) (timectrl.MJD, error) {
	if _, isString := in.GetFields()["epoch"].GetKind().(*structpb.Value_StringValue); !isString {
		v, ok, err := numberField(in, "epoch")
		if err != nil {
			return 0, err
		}
		if ok {
			return timectrl.MJD(v), nil
		}
	}
	raw := stringField(in, "epoch")
	if raw == "" {
		raw = "now"
	}
	return timectrl.ParseEpoch(raw, s.now)
}

// Distance estimates the distance in kpc. Request: {"name", "model" (NE2001,
// YMW16 or "all"; default all), "dm" (optional, defaults to the catalog DM)}.
func (s *Service) Distance(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.estimator == nil {
		return nil, ToStatusError(fmt.Errorf("%w: no distance models configured", dmdist.ErrMissingInput))
	}
	p, err := s.resolve(ctx, stringField(in, "name"))
	if err != nil {
		return nil, ToStatusError(err)
	}
	var dm *float64
	if v, ok, err := numberField(in, "dm"); err != nil {
		return nil, ToStatusError(err)
	} else if ok {
		dm = &v
	}

	distances := make(map[string]any)
	modelName := stringField(in, "model")
	if modelName == "" || strings.EqualFold(modelName, "all") {
		all, err := s.estimator.EstimateAll(ctx, p, dm)
		if err != nil {
			return nil, ToStatusError(err)
		}
		for m, d := range all {
			distances[string(m)] = d
		}
	} else {
		m, err := dmdist.ParseModel(modelName)
		if err != nil {
			return nil, ToStatusError(err)
		}
		d, err := s.estimator.DistanceFromDM(ctx, p, m, dm)
		if err != nil {
			return nil, ToStatusError(err)
		}
		distances[string(m)] = d
	}
	return toStruct(map[string]any{"name": p.Name, "distances_kpc": distances})
}

// SetProperMotion replaces a pulsar's proper motion. Request: {"name",
// "frame", "pm_lon_coslat", "pm_lat", optional "pm_lon_err", "pm_lat_err",
// "pm_cross"}. The response is the Describe document after the update.
func (s *Service) SetProperMotion(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.resolve(ctx, stringField(in, "name"))
	if err != nil {
		return nil, ToStatusError(err)
	}
	frame, err := model.ParseFrame(stringField(in, "frame"))
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
	}

	values := make(map[string]float64)
	present := make(map[string]bool)
	for _, key := range []string{"pm_lon_coslat", "pm_lat", "pm_lon_err", "pm_lat_err", "pm_cross"} {
		v, ok, err := numberField(in, key)
		if err != nil {
			return nil, ToStatusError(err)
		}
		values[key], present[key] = v, ok
	}
	if !present["pm_lon_coslat"] || !present["pm_lat"] {
		return nil, ToStatusError(fmt.Errorf("%w: pm_lon_coslat and pm_lat are required", ErrInvalidRequest))
	}
	pm := model.ProperMotion{LonCosLat: values["pm_lon_coslat"], Lat: values["pm_lat"]}
	var cov *model.Cov2
	if present["pm_lon_err"] && present["pm_lat_err"] {
		c := model.CovFromErrors(values["pm_lon_err"], values["pm_lat_err"], values["pm_cross"])
		cov = &c
	}

	if err := s.catalog.UpdateProperMotion(p.Name, frame, pm, cov); err != nil {
		return nil, ToStatusError(err)
	}
	logging.FromContextOr(ctx, s.log).Info(ctx, "proper motion updated",
		logging.Pulsar(p.Name),
		logging.String("frame", frame.String()),
	)
	doc, err := describe(p)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(doc)
}

func toStruct(doc map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(doc)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode response: %w", err))
	}
	return out, nil
}

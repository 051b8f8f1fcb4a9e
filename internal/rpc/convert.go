package rpc

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/model"
)

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

// numberField returns a numeric field; ok is false when the field is absent
// or null.
func numberField(in *structpb.Struct, key string) (float64, bool, error) {
	v, present := in.GetFields()[key]
	if !present {
		return 0, false, nil
	}
	switch v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := v.GetNumberValue()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false, fmt.Errorf("%w: %s must be finite", ErrInvalidRequest, key)
		}
		return n, true, nil
	case *structpb.Value_NullValue:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("%w: %s must be a number", ErrInvalidRequest, key)
	}
}

func covList(c model.Cov2) []any {
	return []any{
		[]any{c[0][0], c[0][1]},
		[]any{c[1][0], c[1][1]},
	}
}

// describe renders every derived quantity of p in every frame.
func describe(p *core.Pulsar) (map[string]any, error) {
	frames := make(map[string]any, len(model.Frames))
	for _, f := range model.Frames {
		pos, err := p.Position(f)
		if err != nil {
			return nil, err
		}
		lonName, latName := f.AxisNames()
		entry := map[string]any{
			"lon":  pos.Lon,
			"lat":  pos.Lat,
			"axes": []any{lonName, latName},
		}
		if f == model.FrameEquatorial {
			entry["ra_hms"] = core.FormatHourAngle(pos.Lon)
			entry["dec_dms"] = core.FormatDegrees(pos.Lat)
		}
		if pm, ok, err := p.ProperMotion(f); err != nil {
			return nil, err
		} else if ok {
			entry["proper_motion"] = map[string]any{"lon_coslat": pm.LonCosLat, "lat": pm.Lat}
		}
		if cov, ok, err := p.PositionCovariance(f); err != nil {
			return nil, err
		} else if ok {
			entry["position_covariance"] = covList(cov)
		}
		if cov, ok, err := p.ProperMotionCovariance(f); err != nil {
			return nil, err
		} else if ok {
			entry["proper_motion_covariance"] = covList(cov)
		}
		frames[f.String()] = entry
	}

	out := map[string]any{
		"name":   p.Name,
		"frame":  p.Frame().String(),
		"label":  p.String(),
		"frames": frames,
	}
	if epoch, ok := p.ReferenceEpoch(); ok {
		out["reference_epoch"] = epoch
	}
	attrs := make(map[string]any)
	for _, name := range p.AttrNames() {
		v, _ := p.Attr(name)
		attrs[name] = v
	}
	out["attrs"] = attrs
	return out, nil
}

func prediction(name string, pred core.Prediction) map[string]any {
	out := map[string]any{
		"name":          name,
		"epoch_mjd":     float64(pred.Epoch),
		"ra":            pred.Position.Lon,
		"dec":           pred.Position.Lat,
		"ra_hms":        core.FormatHourAngle(pred.Position.Lon),
		"dec_dms":       core.FormatDegrees(pred.Position.Lat),
		"elapsed_years": pred.ElapsedYears,
		"extrapolated":  pred.Extrapolated,
	}
	if pred.HasCovariance {
		out["covariance"] = covList(pred.Covariance)
	}
	return out
}

package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/model"
)

type motionView struct {
	LonCosLat float64 `json:"lon_coslat"`
	Lat       float64 `json:"lat"`
}

type frameView struct {
	Frame        string      `json:"frame"`
	Axes         [2]string   `json:"axes"`
	Lon          float64     `json:"lon"`
	Lat          float64     `json:"lat"`
	RAHMS        string      `json:"ra_hms,omitempty"`
	DecDMS       string      `json:"dec_dms,omitempty"`
	ProperMotion *motionView `json:"proper_motion,omitempty"`
	PositionCov  *model.Cov2 `json:"position_covariance,omitempty"`
	MotionCov    *model.Cov2 `json:"proper_motion_covariance,omitempty"`
}

type pulsarView struct {
	Name           string            `json:"name"`
	Frame          string            `json:"frame"`
	ReferenceEpoch *float64          `json:"reference_epoch,omitempty"`
	Frames         []frameView       `json:"frames"`
	Attrs          map[string]string `json:"attrs,omitempty"`
}

func newFrameView(p *core.Pulsar, f model.Frame) (frameView, error) {
	pos, err := p.Position(f)
	if err != nil {
		return frameView{}, err
	}
	lonName, latName := f.AxisNames()
	v := frameView{Frame: f.String(), Axes: [2]string{lonName, latName}, Lon: pos.Lon, Lat: pos.Lat}
	if f == model.FrameEquatorial {
		v.RAHMS = core.FormatHourAngle(pos.Lon)
		v.DecDMS = core.FormatDegrees(pos.Lat)
	}
	pm, ok, err := p.ProperMotion(f)
	if err != nil {
		return frameView{}, err
	}
	if ok {
		v.ProperMotion = &motionView{LonCosLat: pm.LonCosLat, Lat: pm.Lat}
	}
	if cov, ok, err := p.PositionCovariance(f); err != nil {
		return frameView{}, err
	} else if ok {
		v.PositionCov = &cov
	}
	if cov, ok, err := p.ProperMotionCovariance(f); err != nil {
		return frameView{}, err
	} else if ok {
		v.MotionCov = &cov
	}
	return v, nil
}

func newPulsarView(p *core.Pulsar, frames ...model.Frame) (*pulsarView, error) {
	if len(frames) == 0 {
		frames = model.Frames
	}
	v := &pulsarView{Name: p.Name, Frame: p.Frame().String()}
	if epoch, ok := p.ReferenceEpoch(); ok {
		v.ReferenceEpoch = &epoch
	}
	for _, f := range frames {
		fv, err := newFrameView(p, f)
		if err != nil {
			return nil, err
		}
		v.Frames = append(v.Frames, fv)
	}
	if names := p.AttrNames(); len(names) > 0 {
		v.Attrs = make(map[string]string, len(names))
		for _, name := range names {
			v.Attrs[name], _ = p.Attr(name)
		}
	}
	return v, nil
}

func (v frameView) coords() string {
	if v.RAHMS != "" {
		return fmt.Sprintf("%s=%s %s=%s", v.Axes[0], v.RAHMS, v.Axes[1], v.DecDMS)
	}
	return fmt.Sprintf("%s=%.6f %s=%+.6f", v.Axes[0], v.Lon, v.Axes[1], v.Lat)
}

func (v frameView) renderLine(w io.Writer) {
	fmt.Fprintf(w, "  %s\t%s", v.Frame, v.coords())
	if v.PositionCov != nil {
		sLon, sLat := v.PositionCov.Sigmas()
		fmt.Fprintf(w, "\terr=(%.3g\", %.3g\")", sLon, sLat)
	} else {
		fmt.Fprint(w, "\t-")
	}
	if v.ProperMotion != nil {
		fmt.Fprintf(w, "\tpm=(%.3f, %.3f) mas/yr", v.ProperMotion.LonCosLat, v.ProperMotion.Lat)
	} else {
		fmt.Fprint(w, "\t-")
	}
	if v.MotionCov != nil {
		sLon, sLat := v.MotionCov.Sigmas()
		fmt.Fprintf(w, "\tpm_err=(%.3g, %.3g)", sLon, sLat)
	} else {
		fmt.Fprint(w, "\t-")
	}
	fmt.Fprintln(w)
}

func (v *pulsarView) renderText(w io.Writer) error {
	header := fmt.Sprintf("PSR %s (%s)", v.Name, v.Frame)
	if v.ReferenceEpoch != nil {
		header += fmt.Sprintf(", reference epoch MJD %g", *v.ReferenceEpoch)
	}
	fmt.Fprintln(w, header)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range v.Frames {
		f.renderLine(tw)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	names := make([]string, 0, len(v.Attrs))
	for name := range v.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s = %s\n", name, v.Attrs[name])
	}
	return nil
}

// pulsarList renders one line per pulsar in its native frame.
type pulsarList []*pulsarView

func (l pulsarList) renderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, v := range l {
		fmt.Fprintf(tw, "%s", v.Name)
		v.Frames[0].renderLine(tw)
	}
	return tw.Flush()
}

type predictionView struct {
	Name         string      `json:"name"`
	EpochMJD     float64     `json:"epoch_mjd"`
	RA           float64     `json:"ra"`
	Dec          float64     `json:"dec"`
	RAHMS        string      `json:"ra_hms"`
	DecDMS       string      `json:"dec_dms"`
	ElapsedYears float64     `json:"elapsed_years"`
	Extrapolated bool        `json:"extrapolated"`
	Covariance   *model.Cov2 `json:"covariance,omitempty"`
}

func newPredictionView(name string, pred core.Prediction) predictionView {
	v := predictionView{
		Name:         name,
		EpochMJD:     float64(pred.Epoch),
		RA:           pred.Position.Lon,
		Dec:          pred.Position.Lat,
		RAHMS:        core.FormatHourAngle(pred.Position.Lon),
		DecDMS:       core.FormatDegrees(pred.Position.Lat),
		ElapsedYears: pred.ElapsedYears,
		Extrapolated: pred.Extrapolated,
	}
	if pred.HasCovariance {
		cov := pred.Covariance
		v.Covariance = &cov
	}
	return v
}

func (v predictionView) renderLine(w io.Writer) {
	fmt.Fprintf(w, "MJD %.4f\t%s\t%s", v.EpochMJD, v.RAHMS, v.DecDMS)
	if v.Covariance != nil {
		sRA, sDec := v.Covariance.Sigmas()
		fmt.Fprintf(w, "\terr=(%.3g\", %.3g\")", sRA, sDec)
	} else {
		fmt.Fprint(w, "\t-")
	}
	fmt.Fprintf(w, "\t%+.3f yr\n", v.ElapsedYears)
}

func (v predictionView) renderText(w io.Writer) error {
	fmt.Fprintf(w, "PSR %s\n", v.Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	v.renderLine(tw)
	if err := tw.Flush(); err != nil {
		return err
	}
	if !v.Extrapolated {
		fmt.Fprintln(w, "  (no proper motion; position unchanged)")
	}
	return nil
}

type trackView struct {
	Name   string           `json:"name"`
	Epochs []predictionView `json:"epochs"`
}

func (v *trackView) renderText(w io.Writer) error {
	fmt.Fprintf(w, "PSR %s\n", v.Name)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range v.Epochs {
		e.renderLine(tw)
	}
	return tw.Flush()
}

// estimateView reports one value per density model.
type estimateView struct {
	Name     string             `json:"name"`
	Quantity string             `json:"quantity"`
	Unit     string             `json:"unit"`
	Input    *float64           `json:"input,omitempty"`
	Values   map[string]float64 `json:"values"`
}

func (v estimateView) renderText(w io.Writer) error {
	models := make([]string, 0, len(v.Values))
	for m := range v.Values {
		models = append(models, m)
	}
	sort.Strings(models)
	for _, m := range models {
		if _, err := fmt.Fprintf(w, "%s %s %s = %.4g %s\n", v.Name, m, v.Quantity, v.Values[m], v.Unit); err != nil {
			return err
		}
	}
	return nil
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/psrinfo/model"
)

// SetPMOptions holds flags for the set-pm command.
type SetPMOptions struct {
	*RootOptions
	Frame  string
	PMLon  float64
	PMLat  float64
	ErrLon float64
	ErrLat float64
	Cross  float64
}

// NewSetPMCommand creates the set-pm command.
func NewSetPMCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SetPMOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "set-pm <name>",
		Short: "Replace a pulsar's proper motion and show it in every frame",
		Long: `Attach a newly measured proper motion (mas/yr, longitude rate already
multiplied by cos(latitude)) in the given frame and show the pulsar with the
motion and its uncertainty re-expressed in every frame. The catalogue is not
modified.`,
		Example:       `  psrinfo set-pm J0437-4715 --frame ecliptic --pm-lon 121.4 --pm-lat -71.5 --err-lon 0.1 --err-lat 0.1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetPM(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Frame, "frame", "f", "equatorial", "frame the proper motion is expressed in")
	cmd.Flags().Float64Var(&opts.PMLon, "pm-lon", 0, "longitude proper motion times cos(latitude), mas/yr")
	cmd.Flags().Float64Var(&opts.PMLat, "pm-lat", 0, "latitude proper motion, mas/yr")
	cmd.Flags().Float64Var(&opts.ErrLon, "err-lon", 0, "1-sigma error of --pm-lon")
	cmd.Flags().Float64Var(&opts.ErrLat, "err-lat", 0, "1-sigma error of --pm-lat")
	cmd.Flags().Float64Var(&opts.Cross, "cross", 0, "covariance between the two components, (mas/yr)^2")
	_ = cmd.MarkFlagRequired("pm-lon")
	_ = cmd.MarkFlagRequired("pm-lat")

	return cmd
}

func runSetPM(opts *SetPMOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	frame, err := model.ParseFrame(opts.Frame)
	if err != nil {
		return formatter.Fail("parse --frame", errUnsupportedFrame(err))
	}
	p, err := fetchPulsar(opts.RootOptions, cmd, name)
	if err != nil {
		return formatter.Fail("fetch "+name, err)
	}

	var cov *model.Cov2
	if cmd.Flags().Changed("err-lon") && cmd.Flags().Changed("err-lat") {
		c := model.CovFromErrors(opts.ErrLon, opts.ErrLat, opts.Cross)
		cov = &c
	}

	pm := model.ProperMotion{LonCosLat: opts.PMLon, Lat: opts.PMLat}
	if err := p.SetProperMotion(frame, pm, cov); err != nil {
		return formatter.Fail("set-pm "+name, err)
	}
	formatter.VerboseLog("Proper motion of %s now authoritative in %s", p.Name, frame)

	view, err := newPulsarView(p)
	if err != nil {
		return formatter.Fail("describe "+name, err)
	}
	return formatter.Success(view)
}

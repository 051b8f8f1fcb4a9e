package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

// PredictOptions holds flags for the predict command.
type PredictOptions struct {
	*RootOptions
	Epoch  string
	Strict bool
	Now    func() time.Time
}

// NewPredictCommand creates the predict command.
func NewPredictCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PredictOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "predict <name>",
		Short: "Predict a pulsar's equatorial position at an epoch",
		Long: `Extrapolate a pulsar's equatorial position from its reference epoch using
its proper motion, and report the compounded positional uncertainty.

Epochs may be an MJD (58650.5, MJD58650.5), a Julian epoch (J2019.5), a date
(2019-06-20), an RFC 3339 instant or "now".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Epoch, "epoch", "e", "now", "target epoch")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "fail when the pulsar has no proper motion")

	return cmd
}

func runPredict(opts *PredictOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	target, err := timectrl.ParseEpoch(opts.Epoch, opts.Now)
	if err != nil {
		return formatter.Fail("parse --epoch", err)
	}
	p, err := fetchPulsar(opts.RootOptions, cmd, name)
	if err != nil {
		return formatter.Fail("fetch "+name, err)
	}

	predict := core.PredictPosition
	if opts.Strict {
		predict = core.Extrapolate
	}
	pred, err := predict(p, target)
	if err != nil {
		return formatter.Fail("predict "+name, err)
	}
	formatter.VerboseLog("Extrapolated %.4f yr from the reference epoch", pred.ElapsedYears)
	return formatter.Success(newPredictionView(p.Name, pred))
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/timectrl"
)

const defaultTrackEpochs = 100_000

// TrackOptions holds flags for the track command.
type TrackOptions struct {
	*RootOptions
	Start    string
	End      string
	StepDays float64
	// MaxEpochs bounds the number of predictions a single run prints.
	MaxEpochs int
	Now       func() time.Time
}

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts, Now: time.Now}

	cmd := &cobra.Command{
		Use:   "track <name>",
		Short: "Predict a pulsar's position over a range of epochs",
		Long: `Walk epochs from --start to --end (inclusive) in steps of --step days and
predict the pulsar's equatorial position at each one.`,
		Example:       `  psrinfo track B0531+21 --start J2000 --end J2030 --step 3652.5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Start, "start", "", "first epoch (defaults to the reference epoch)")
	cmd.Flags().StringVar(&opts.End, "end", "now", "last epoch")
	cmd.Flags().Float64Var(&opts.StepDays, "step", 365.25, "step between epochs in days")
	cmd.Flags().IntVar(&opts.MaxEpochs, "max-epochs", defaultTrackEpochs, "refuse walks longer than this many epochs")

	return cmd
}

func runTrack(opts *TrackOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	end, err := timectrl.ParseEpoch(opts.End, opts.Now)
	if err != nil {
		return formatter.Fail("parse --end", err)
	}
	deps, err := opts.deps(ctx)
	if err != nil {
		return formatter.Fail("load configuration", err)
	}
	p, err := deps.Catalog.FetchPulsar(ctx, name)
	if err != nil {
		return formatter.Fail("fetch "+name, err)
	}

	var start timectrl.MJD
	switch {
	case opts.Start != "":
		if start, err = timectrl.ParseEpoch(opts.Start, opts.Now); err != nil {
			return formatter.Fail("parse --start", err)
		}
	default:
		epoch, ok := p.ReferenceEpoch()
		if !ok {
			return formatter.Fail("track "+name, fmt.Errorf("%w: no reference epoch, pass --start", core.ErrNoProperMotion))
		}
		start = timectrl.MJD(epoch)
	}

	view := &trackView{Name: p.Name}
	stepper := timectrl.NewStepper(start, opts.StepDays)
	stepper.MaxEpochs = opts.MaxEpochs
	stepper.AddListener(func(epoch timectrl.MJD) error {
		began := time.Now()
		pred, err := core.Extrapolate(p, epoch)
		if err != nil {
			return err
		}
		view.Epochs = append(view.Epochs, newPredictionView(p.Name, pred))
		deps.Tools.ObserveTrackStep(time.Since(began))
		return nil
	})
	n, err := stepper.Run(ctx, end)
	if err != nil {
		return formatter.Fail("track "+name, err)
	}
	formatter.VerboseLog("Tracked %s over %d epoch(s)", p.Name, n)
	return formatter.Success(view)
}

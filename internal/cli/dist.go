package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/psrinfo/internal/dmdist"
)

// EstimateOptions holds flags shared by the dist and dm commands.
type EstimateOptions struct {
	*RootOptions
	Model string
	Value float64
}

// NewDistCommand creates the dist command.
func NewDistCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EstimateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dist <name>",
		Short: "Estimate a pulsar's distance from its dispersion measure",
		Long: `Run the NE2001 and/or YMW16 electron-density models along the pulsar's
line of sight. The catalogue DM is used unless --dm is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(opts, args[0], cmd, "dm")
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "all", "density model (NE2001, YMW16 or all)")
	cmd.Flags().Float64Var(&opts.Value, "dm", 0, "dispersion measure in pc/cm^3")

	return cmd
}

// NewDMCommand creates the dm command.
func NewDMCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EstimateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dm <name>",
		Short: "Estimate the dispersion measure at a distance",
		Long: `Run the NE2001 and/or YMW16 electron-density models to integrate the DM
to a distance along the pulsar's line of sight. The parallax distance is used
unless --dist is given.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(opts, args[0], cmd, "dist")
		},
	}

	cmd.Flags().StringVarP(&opts.Model, "model", "m", "all", "density model (NE2001, YMW16 or all)")
	cmd.Flags().Float64Var(&opts.Value, "dist", 0, "distance in kpc")

	return cmd
}

// runEstimate computes distances when inputFlag is "dm" and DMs when it is
// "dist".
func runEstimate(opts *EstimateOptions, name string, cmd *cobra.Command, inputFlag string) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	models := dmdist.Models
	if !strings.EqualFold(opts.Model, "all") {
		m, err := dmdist.ParseModel(opts.Model)
		if err != nil {
			return formatter.Fail("parse --model", err)
		}
		models = []dmdist.Model{m}
	}
	var input *float64
	if cmd.Flags().Changed(inputFlag) {
		v := opts.Value
		input = &v
	}

	deps, err := opts.deps(ctx)
	if err != nil {
		return formatter.Fail("load configuration", err)
	}
	if deps.Estimator == nil {
		return formatter.Fail("estimate", dmdist.ErrMissingInput)
	}
	p, err := deps.Catalog.FetchPulsar(ctx, name)
	if err != nil {
		return formatter.Fail("fetch "+name, err)
	}

	view := estimateView{Name: p.Name, Input: input, Values: make(map[string]float64, len(models))}
	if inputFlag == "dm" {
		view.Quantity, view.Unit = "distance", "kpc"
		if len(models) > 1 {
			all, err := deps.Estimator.EstimateAll(ctx, p, input)
			if err != nil {
				return formatter.Fail("estimate distance", err)
			}
			for m, d := range all {
				view.Values[string(m)] = d
			}
			return formatter.Success(view)
		}
	} else {
		view.Quantity, view.Unit = "DM", "pc/cm^3"
	}

	for _, m := range models {
		formatter.VerboseLog("Running %s for %s", m, p.Name)
		var v float64
		if inputFlag == "dm" {
			v, err = deps.Estimator.DistanceFromDM(ctx, p, m, input)
		} else {
			v, err = deps.Estimator.DMFromDistance(ctx, p, m, input)
		}
		if err != nil {
			return formatter.Fail("run "+string(m), err)
		}
		view.Values[string(m)] = v
	}
	return formatter.Success(view)
}

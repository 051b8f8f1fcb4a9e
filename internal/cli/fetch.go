package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/psrinfo/core"
	"github.com/signalsfoundry/psrinfo/model"
)

// FetchOptions holds flags for the fetch command.
type FetchOptions struct {
	*RootOptions
	Condition string
	Params    []string
	Refresh   bool
}

// NewFetchCommand creates the fetch command.
func NewFetchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FetchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fetch [name...]",
		Short: "Fetch pulsars from the ATNF catalogue",
		Long: `Fetch one or more pulsars by name, or every pulsar matching a psrcat
condition (-l), and print each in the frame the catalogue reports it in.`,
		Example: `  psrinfo fetch J0437-4715 B0531+21
  psrinfo fetch --condition "dm < 10" --param P0
  psrinfo fetch --refresh J0437-4715`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Condition, "condition", "l", "", "psrcat logical condition")
	cmd.Flags().StringSliceVarP(&opts.Params, "param", "p", nil, "extra psrcat parameters to request")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "ignore cached catalog rows and query psrcat again")

	return cmd
}

func runFetch(opts *FetchOptions, names []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if len(names) == 0 && opts.Condition == "" {
		_ = formatter.Error(ErrCodeInvalidArgs, "give pulsar names or --condition", nil)
		return NewExitError(ExitCommandError, "["+ErrCodeInvalidArgs+"] no pulsars requested")
	}

	ctx := cmd.Context()
	deps, err := opts.deps(ctx)
	if err != nil {
		return formatter.Fail("load configuration", err)
	}
	params := normalizeParams(opts.Params)

	var pulsars map[string]*core.Pulsar
	if opts.Condition != "" {
		formatter.VerboseLog("Querying psrcat with condition %q", opts.Condition)
		pulsars, err = deps.Catalog.FetchPulsars(ctx, opts.Condition, params...)
	} else {
		if opts.Refresh {
			if err := deps.Catalog.Forget(ctx, names...); err != nil {
				return formatter.Fail("drop cached rows", err)
			}
		}
		formatter.VerboseLog("Fetching %d pulsar(s)", len(names))
		pulsars, err = deps.Catalog.FetchMany(ctx, names, params...)
	}
	if err != nil {
		return formatter.Fail("fetch", err)
	}

	keys := make([]string, 0, len(pulsars))
	for name := range pulsars {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	list := make(pulsarList, 0, len(keys))
	for _, name := range keys {
		p := pulsars[name]
		v, err := newPulsarView(p, p.Frame())
		if err != nil {
			return formatter.Fail("render "+name, err)
		}
		list = append(list, v)
	}
	return formatter.Success(list)
}

func normalizeParams(params []string) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DescribeOptions holds flags for the describe command.
type DescribeOptions struct {
	*RootOptions
	Frames []string
	Params []string
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DescribeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "describe <name>",
		Short: "Show a pulsar's position and proper motion in every frame",
		Long: `Show a pulsar's position, proper motion and their uncertainties expressed
in the equatorial, ecliptic and galactic frames.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Frames, "frame", "f", nil, "frames to show (equatorial, ecliptic, galactic)")
	cmd.Flags().StringSliceVarP(&opts.Params, "param", "p", nil, "extra psrcat parameters to request")
	cmd.Flags().BoolVar(&opts.Refresh, "refresh", false, "ignore cached catalog rows and query psrcat again")

	return cmd
}

func runDescribe(opts *DescribeOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	frames, err := parseFrames(opts.Frames)
	if err != nil {
		return formatter.Fail("parse --frame", err)
	}
	p, err := fetchPulsar(opts.RootOptions, cmd, name, normalizeParams(opts.Params)...)
	if err != nil {
		return formatter.Fail("fetch "+name, err)
	}
	view, err := newPulsarView(p, frames...)
	if err != nil {
		return formatter.Fail("describe "+name, err)
	}
	return formatter.Success(view)
}

func parseFrames(names []string) ([]model.Frame, error) {
	frames := make([]model.Frame, 0, len(names))
	for _, name := range names {
		f, err := model.ParseFrame(name)
		if err != nil {
			return nil, errUnsupportedFrame(err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

func fetchPulsar(opts *RootOptions, cmd *cobra.Command, name string, params ...string) (*core.Pulsar, error) {
	deps, err := opts.deps(cmd.Context())
	if err != nil {
		return nil, err
	}
	return deps.Catalog.FetchPulsar(cmd.Context(), name, params...)
}

func errUnsupportedFrame(err error) error {
	return fmt.Errorf("%w: %v", core.ErrUnsupportedFrame, err)
}

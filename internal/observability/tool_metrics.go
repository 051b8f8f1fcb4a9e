package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ToolCollector exposes metrics for external programs (psrcat, NE2001, YMW16)
// and the epoch tracking loop.
type ToolCollector struct {
	gatherer prometheus.Gatherer

	ToolRuns          *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	TrackSteps        prometheus.Counter
	TrackStepDuration prometheus.Histogram
}

// NewToolCollector registers external-tool metrics against the provided registerer.
func NewToolCollector(reg prometheus.Registerer) (*ToolCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "psrinfo_external_tool_runs_total",
		Help: "External program invocations, labeled by tool and outcome (ok or error).",
	}, []string{"tool", "outcome"}), "psrinfo_external_tool_runs_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "psrinfo_external_tool_duration_seconds",
		Help:    "Wall-clock duration of external program invocations.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"tool"}), "psrinfo_external_tool_duration_seconds")
	if err != nil {
		return nil, err
	}

	steps, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "psrinfo_track_steps_total",
		Help: "Epochs evaluated by the tracking loop.",
	}), "psrinfo_track_steps_total")
	if err != nil {
		return nil, err
	}

	stepHistogram, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "psrinfo_track_step_duration_seconds",
		Help:    "Time spent predicting positions for one tracking epoch.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "psrinfo_track_step_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &ToolCollector{
		gatherer:          gatherer,
		ToolRuns:          runs,
		ToolDuration:      durations,
		TrackSteps:        steps,
		TrackStepDuration: stepHistogram,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ToolCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveToolRun records one external program invocation.
func (c *ToolCollector) ObserveToolRun(tool string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if c.ToolRuns != nil {
		c.ToolRuns.WithLabelValues(tool, outcome).Inc()
	}
	if c.ToolDuration != nil {
		c.ToolDuration.WithLabelValues(tool).Observe(d.Seconds())
	}
}

// ObserveTrackStep records the duration of one tracking epoch.
func (c *ToolCollector) ObserveTrackStep(d time.Duration) {
	if c == nil {
		return
	}
	if c.TrackSteps != nil {
		c.TrackSteps.Inc()
	}
	if c.TrackStepDuration != nil {
		c.TrackStepDuration.Observe(d.Seconds())
	}
}

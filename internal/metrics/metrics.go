// Package metrics records step outcomes and durations as Prometheus
// metrics and exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/kiln/internal/event"
)

// Step outcomes used as the "outcome" label.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Collector owns a private registry so concurrent runs in one process
// (tests, mostly) never share counters.
type Collector struct {
	registry *prometheus.Registry

	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runDuration  *prometheus.GaugeVec
	runs         *prometheus.CounterVec

	subs []string
	bus  *event.Bus
}

// NewCollector creates and registers the kiln metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "steps_total",
			Help:      "Steps that finished, by run group and outcome.",
		}, []string{"group", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "step_duration_seconds",
			Help:      "Wall time of steps that ran, by run group.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"group"}),
		runDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "kiln",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run of each task.",
		}, []string{"task"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "runs_total",
			Help:      "Runs that finished, by task and outcome.",
		}, []string{"task", "outcome"}),
	}
	c.registry.MustRegister(c.steps, c.stepDuration, c.runDuration, c.runs)
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to run events on bus. Detach undoes it.
func (c *Collector) Attach(bus *event.Bus) {
	c.Detach()
	c.bus = bus
	c.subs = []string{
		bus.Subscribe(event.TypeStepSucceeded, c.handle),
		bus.Subscribe(event.TypeStepFailed, c.handle),
		bus.Subscribe(event.TypeStepSkipped, c.handle),
		bus.Subscribe(event.TypeRunFinished, c.handle),
	}
}

// Detach removes the collector's subscriptions.
func (c *Collector) Detach() {
	if c.bus == nil {
		return
	}
	for _, id := range c.subs {
		c.bus.Unsubscribe(id)
	}
	c.bus, c.subs = nil, nil
}

func (c *Collector) handle(e event.Event) {
	switch ev := e.(type) {
	case event.StepSucceededEvent:
		c.steps.WithLabelValues(ev.Group, OutcomeSucceeded).Inc()
		c.stepDuration.WithLabelValues(ev.Group).Observe(ev.Duration.Seconds())
	case event.StepFailedEvent:
		c.steps.WithLabelValues(ev.Group, OutcomeFailed).Inc()
		c.stepDuration.WithLabelValues(ev.Group).Observe(ev.Duration.Seconds())
	case event.StepSkippedEvent:
		c.steps.WithLabelValues(ev.Group, OutcomeSkipped).Inc()
	case event.RunFinishedEvent:
		outcome := OutcomeSucceeded
		if !ev.Success() {
			outcome = OutcomeFailed
		}
		c.runs.WithLabelValues(ev.Task, outcome).Inc()
		c.runDuration.WithLabelValues(ev.Task).Set(ev.Duration.Seconds())
	}
}

// WriteTextfile writes the current metrics to path atomically, creating
// the parent directory when needed.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/step"
)

func ref(id, group string) event.StepRef {
	return event.StepRef{Step: step.New(id, nil), Group: group}
}

func TestCollector_CountsOutcomes(t *testing.T) {
	bus := event.NewBus()
	c := NewCollector()
	c.Attach(bus)

	bus.Publish(event.NewStepSucceededEvent(ref("A", "main"), time.Second))
	bus.Publish(event.NewStepSucceededEvent(ref("B", "main"), 2*time.Second))
	bus.Publish(event.NewStepFailedEvent(ref("C", "main"), time.Second, errors.New("x")))
	bus.Publish(event.NewStepSkippedEvent(ref("D", "pre"), filter.Skipped, ""))
	bus.Publish(event.NewRunFinishedEvent("r", "build", 3*time.Second, errors.New("x")))

	tests := []struct {
		group, outcome string
		want           float64
	}{
		{"main", OutcomeSucceeded, 2},
		{"main", OutcomeFailed, 1},
		{"pre", OutcomeSkipped, 1},
		{"post", OutcomeSucceeded, 0},
	}
	for _, tt := range tests {
		t.Run(tt.group+"/"+tt.outcome, func(t *testing.T) {
			got := testutil.ToFloat64(c.steps.WithLabelValues(tt.group, tt.outcome))
			if got != tt.want {
				t.Errorf("steps_total = %v, want %v", got, tt.want)
			}
		})
	}

	if got := testutil.ToFloat64(c.runs.WithLabelValues("build", OutcomeFailed)); got != 1 {
		t.Errorf("runs_total{failed} = %v", got)
	}
	if got := testutil.ToFloat64(c.runDuration.WithLabelValues("build")); got != 3 {
		t.Errorf("run_duration_seconds = %v", got)
	}
	if n := testutil.CollectAndCount(c.stepDuration); n != 1 {
		t.Errorf("step_duration_seconds series = %d, want 1", n)
	}
}

func TestCollector_Detach(t *testing.T) {
	bus := event.NewBus()
	c := NewCollector()
	c.Attach(bus)
	c.Attach(bus)
	if bus.SubscriptionCount() != 4 {
		t.Fatalf("SubscriptionCount() = %d after re-attach", bus.SubscriptionCount())
	}

	c.Detach()
	bus.Publish(event.NewStepSucceededEvent(ref("A", "main"), time.Second))
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Detach", bus.SubscriptionCount())
	}
	if got := testutil.ToFloat64(c.steps.WithLabelValues("main", OutcomeSucceeded)); got != 0 {
		t.Errorf("counted after Detach: %v", got)
	}
	c.Detach()
}

func TestCollector_WriteTextfile(t *testing.T) {
	bus := event.NewBus()
	c := NewCollector()
	c.Attach(bus)
	bus.Publish(event.NewStepSucceededEvent(ref("A", "main"), 100*time.Millisecond))

	path := filepath.Join(t.TempDir(), "out", "kiln.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`kiln_steps_total{group="main",outcome="succeeded"} 1`,
		"kiln_step_duration_seconds_count{group=\"main\"} 1",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("textfile missing %q:\n%s", want, data)
		}
	}
}

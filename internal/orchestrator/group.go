package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/scheduler"
	"github.com/Iron-Ham/kiln/internal/step"
)

// groupRun executes one run group. Lifecycle events published after the
// group has settled are dropped, so steps still in flight after a failure
// do not change the reported outcome.
type groupRun struct {
	run    *run
	name   string
	filter *filter.Filter

	mu       sync.Mutex
	finished bool
}

// runGroup schedules every step of a group and waits for the group to
// settle. The first step failure aborts the group; steps already running
// are left to finish on their own.
func (r *run) runGroup(ctx context.Context, name string, steps []*step.Step, f *filter.Filter) error {
	g := &groupRun{run: r, name: name, filter: f}
	logger := r.logger.WithGroup(name)

	start := time.Now()
	r.bus.Publish(event.NewGroupStartedEvent(name, steps))
	logger.Debug("group started", "steps", len(steps))

	queue := scheduler.New(r.concurrency)
	results := make([]<-chan error, 0, len(steps))
	for _, s := range steps {
		ref := event.StepRef{Step: s, Group: name}
		ancestors := r.plan.Ancestors(s)
		perm := f.Check(s.ID, ancestors...)
		deps := step.Dependencies(s, steps)

		done := queue.Enqueue(s, deps, func() error {
			if !perm.ShouldRun() {
				g.publish(event.NewStepSkippedEvent(ref, perm, skipReason(perm)))
				return nil
			}
			return g.execute(ctx, ref, ancestors)
		})
		results = append(results, g.watchAborted(ref, perm, done))
	}

	err := scheduler.Wait(results...)
	g.settle()

	duration := time.Since(start)
	r.bus.Publish(event.NewGroupFinishedEvent(name, duration, err))
	if err != nil {
		logger.Error("group failed", "duration", duration, "error", err)
	} else {
		logger.Debug("group finished", "duration", duration)
	}
	return err
}

func skipReason(perm filter.Permission) string {
	switch perm {
	case filter.Skipped:
		return "skip pattern"
	case filter.Excluded:
		return "not isolated"
	}
	return ""
}

// publish forwards lifecycle events until the group settles.
func (g *groupRun) publish(e event.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.finished {
		g.run.bus.Publish(e)
	}
}

func (g *groupRun) settle() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finished = true
}

// watchAborted reports steps the scheduler aborted because a dependency
// failed. Their run function never started.
func (g *groupRun) watchAborted(ref event.StepRef, perm filter.Permission, done <-chan error) <-chan error {
	out := make(chan error, 1)
	go func() {
		err := <-done
		var depErr *errors.DependencyFailedError
		if errors.As(err, &depErr) {
			g.publish(event.NewStepSkippedEvent(ref, perm, fmt.Sprintf("dependency %s failed", depErr.DependencyID)))
		}
		out <- err
	}()
	return out
}

// execute runs one step, top level or nested, and publishes its outcome.
// Errors and panics come back wrapped in a *errors.StepError.
func (g *groupRun) execute(ctx context.Context, ref event.StepRef, ancestors []string) error {
	g.publish(event.NewStepStartedEvent(ref))
	logger := g.run.logger.WithGroup(g.name).WithStep(ref.Step.ID)
	logger.Debug("step started", "depth", ref.Depth)

	runner := &stepRunner{group: g, ref: ref, ancestors: ancestors, logger: logger}
	start := time.Now()
	err := call(ctx, ref.Step, runner)
	duration := time.Since(start)

	if err != nil {
		err = wrapStepError(ref, g.name, err)
		g.publish(event.NewStepFailedEvent(ref, duration, err))
		logger.Warn("step failed", "duration", duration, "error", err)
		return err
	}
	g.publish(event.NewStepSucceededEvent(ref, duration))
	logger.Debug("step succeeded", "duration", duration)
	return nil
}

// call invokes the step's run function, converting a panic into an error.
func call(ctx context.Context, s *step.Step, r step.Runner) (err error) {
	if s.Run == nil {
		return nil
	}
	var pc panics.Catcher
	pc.Try(func() { err = s.Run(ctx, r) })
	if rec := pc.Recovered(); rec != nil {
		return rec.AsError()
	}
	return err
}

// wrapStepError attributes err to the step unless a nested step already
// claimed it.
func wrapStepError(ref event.StepRef, group string, err error) error {
	var stepErr *errors.StepError
	if errors.As(err, &stepErr) {
		if stepErr.Group == "" {
			stepErr.Group = group
		}
		return err
	}
	return errors.NewStepError(ref.Step.ID, err).WithGroup(group)
}

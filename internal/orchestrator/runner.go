package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/process"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/stream"
)

// MaxNestingDepth bounds RunNested recursion.
const MaxNestingDepth = 32

// stepRunner is the step.Runner handed to one executing step.
type stepRunner struct {
	group     *groupRun
	ref       event.StepRef
	ancestors []string
	logger    *logging.Logger
}

var _ step.Runner = (*stepRunner)(nil)

// Exec runs a subprocess. At debug verbosity its output is streamed into
// the step's log line by line; the tail is always captured.
func (r *stepRunner) Exec(ctx context.Context, name string, args []string, opts ...process.Option) (*process.Result, error) {
	r.Log("$ "+commandLine(name, args), step.LevelDebug)

	if r.group.run.streamOutput {
		lines := stream.NewLineWriter(func(line string) {
			r.Log(line, step.LevelDebug)
		})
		defer lines.Flush()
		opts = append([]process.Option{process.WithStdout(lines), process.WithStderr(lines)}, opts...)
	}

	res, err := process.Run(ctx, name, args, opts...)
	if err != nil {
		r.logger.Debug("command failed", "command", name, "exit_code", res.ExitCode, "error", err)
		return res, err
	}
	r.logger.Debug("command finished", "command", name, "duration", res.Duration)
	return res, nil
}

// Log publishes a message attributed to the step. Messages are never
// dropped, even after the step's group settled.
func (r *stepRunner) Log(msg string, level step.LogLevel) {
	r.group.run.bus.Publish(event.NewStepLogEvent(r.ref, level, msg))
}

// Status sets the step's transient status line.
func (r *stepRunner) Status(msg string) {
	r.group.publish(event.NewStepStatusEvent(r.ref, msg))
}

// Indefinite registers work to start once every group has finished.
func (r *stepRunner) Indefinite(fn step.IndefiniteFunc) {
	if fn == nil {
		return
	}
	r.group.run.addIndefinite(r.ref, fn)
	r.group.run.bus.Publish(event.NewStepIndefiniteEvent(r.ref))
}

// RunNested runs steps one after another under the same filter as the
// parent. The parent's id and ancestors count as ancestors of every child,
// so isolating a parent isolates its children. The first failure stops the
// remaining children.
func (r *stepRunner) RunNested(ctx context.Context, steps ...*step.Step) error {
	depth := r.ref.Depth + 1
	if depth > MaxNestingDepth {
		return errors.NewDiagnosticError("Steps nested too deeply").
			WithContent(fmt.Sprintf("%s tried to run nested steps %d levels deep.", r.ref.Step.ID, depth)).
			WithSuggestion(fmt.Sprintf("Nested steps may be at most %d levels deep. Check for a step that runs itself.", MaxNestingDepth)).
			WithCause(errors.ErrNestingTooDeep)
	}

	ancestors := append([]string{r.ref.Step.ID}, r.ancestors...)
	for _, child := range steps {
		if child == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ref := event.StepRef{Step: child, Group: r.ref.Group, Parent: r.ref.Step, Depth: depth}
		perm := r.group.filter.Check(child.ID, ancestors...)
		if !perm.ShouldRun() {
			r.group.publish(event.NewStepSkippedEvent(ref, perm, skipReason(perm)))
			continue
		}
		if err := r.group.execute(ctx, ref, ancestors); err != nil {
			return err
		}
	}
	return nil
}

// commandLine renders a command for logs, quoting arguments with spaces.
func commandLine(name string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, name)
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'") {
			a = fmt.Sprintf("%q", a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

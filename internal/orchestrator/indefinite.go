package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/stream"
	"github.com/Iron-Ham/kiln/internal/ui"
)

// indefiniteWork is long-running work a step registered during the run.
type indefiniteWork struct {
	ref event.StepRef
	fn  step.IndefiniteFunc
}

func (r *run) addIndefinite(ref event.StepRef, fn step.IndefiniteFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indefinite = append(r.indefinite, indefiniteWork{ref: ref, fn: fn})
}

func (r *run) takeIndefinite() []indefiniteWork {
	r.mu.Lock()
	defer r.mu.Unlock()
	work := r.indefinite
	r.indefinite = nil
	return work
}

// runIndefinite runs the registered work concurrently until all of it
// returns, one of it fails, or ctx is done. Interactive runs route each
// step's output through a stream controller and show the switcher; the
// user quitting the switcher cancels the work.
func (o *Orchestrator) runIndefinite(ctx context.Context, r *run, work []indefiniteWork) error {
	logger := r.logger.WithGroup(GroupIndefinite)
	logger.Info("starting indefinite steps", "count", len(work))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	stdio := make([]step.Stdio, len(work))
	if r.interactive {
		controllers := make([]*stream.Controller, len(work))
		for i, w := range work {
			controllers[i] = stream.NewController(w.ref.Step.Name(), o.historyBytes)
			stdio[i] = controllers[i].Stdio()
		}
		switcher := ui.NewSwitcher(controllers, o.out)
		g.Go(func() error {
			err := switcher.Run(gctx)
			if errors.Is(err, ui.ErrSwitcherQuit) {
				logger.Info("indefinite steps stopped by user")
				cancel()
				return nil
			}
			return err
		})
	} else {
		for i := range work {
			stdio[i] = step.Stdio{Stdout: o.out, Stderr: o.errOut}
		}
		// Several steps reading one stdin would steal each other's input.
		if len(work) == 1 {
			stdio[0].Stdin = o.in
		}
	}

	for i, w := range work {
		g.Go(func() error {
			err := w.fn(gctx, stdio[i])
			if err != nil && gctx.Err() == nil {
				logger.Error("indefinite step failed", "step", w.ref.Step.ID, "error", err)
				return errors.NewStepError(w.ref.Step.ID, err).WithGroup(GroupIndefinite)
			}
			logger.Debug("indefinite step exited", "step", w.ref.Step.ID)
			return nil
		})
	}
	return g.Wait()
}

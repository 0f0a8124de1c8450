// Package orchestrator runs kiln tasks.
//
// A run has three phases. Planning expands the plugins, runs the task's
// hooks and collects the pre, main and post steps (see BuildPlan).
// Execution runs the groups strictly one after another; within a group the
// scheduler runs steps concurrently, honoring their dependencies, while the
// inclusion filter decides which of them actually run. Finally, if every
// group succeeded, the indefinite work steps registered is started and kept
// running until it ends or the user quits.
//
// Everything that happens is published on an event bus. The terminal UI,
// the debug log and the metrics collector are all subscribers.
package orchestrator

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/metrics"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/stream"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/ui"
	"github.com/Iron-Ham/kiln/internal/util"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

// Orchestrator runs tasks over one workspace with a fixed set of plugins.
type Orchestrator struct {
	workspace *workspace.Workspace
	plugins   []*plugin.Plugin

	logger *logging.Logger
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	concurrency     int
	level           step.LogLevel
	interactive     bool
	redrawInterval  time.Duration
	spinnerInterval time.Duration
	historyBytes    int
	filters         *filter.Filters

	metrics     *metrics.Collector
	metricsFile string
	subscribers []event.Handler
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the debug logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithIO sets the streams used for rendering and by non-interactive
// indefinite steps. A nil argument keeps the default.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(o *Orchestrator) {
		if in != nil {
			o.in = in
		}
		if out != nil {
			o.out = out
		}
		if errOut != nil {
			o.errOut = errOut
		}
	}
}

// WithConcurrency caps simultaneously running steps per group. Zero or
// less uses the number of CPUs.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) { o.concurrency = n }
}

// WithLogLevel sets the terminal verbosity threshold.
func WithLogLevel(l step.LogLevel) Option {
	return func(o *Orchestrator) { o.level = l }
}

// WithInteractive selects the redrawing renderer and the indefinite step
// switcher.
func WithInteractive(interactive bool) Option {
	return func(o *Orchestrator) { o.interactive = interactive }
}

// WithUIIntervals overrides the redraw and spinner timers.
func WithUIIntervals(redraw, spinner time.Duration) Option {
	return func(o *Orchestrator) {
		o.redrawInterval = redraw
		o.spinnerInterval = spinner
	}
}

// WithHistoryBytes bounds the retained output of each indefinite step.
func WithHistoryBytes(n int) Option {
	return func(o *Orchestrator) { o.historyBytes = n }
}

// WithFilters sets the skip and isolate filters of the three groups.
func WithFilters(f *filter.Filters) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.filters = f
		}
	}
}

// WithMetrics records run metrics into c and, when path is not empty,
// writes them to path after the groups finish.
func WithMetrics(c *metrics.Collector, path string) Option {
	return func(o *Orchestrator) {
		o.metrics = c
		o.metricsFile = path
	}
}

// WithSubscriber adds a handler receiving every event of every run.
func WithSubscriber(h event.Handler) Option {
	return func(o *Orchestrator) { o.subscribers = append(o.subscribers, h) }
}

// New creates an Orchestrator.
func New(ws *workspace.Workspace, plugins []*plugin.Plugin, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		workspace:    ws,
		plugins:      plugins,
		logger:       logging.NopLogger(),
		in:           os.Stdin,
		out:          os.Stdout,
		errOut:       os.Stderr,
		level:        step.LevelInfo,
		historyBytes: stream.DefaultHistoryBytes,
		filters:      &filter.Filters{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Workspace returns the workspace tasks run over.
func (o *Orchestrator) Workspace() *workspace.Workspace {
	return o.workspace
}

// Plan builds the plan of a task without running it.
func (o *Orchestrator) Plan(ctx context.Context, name task.Name, opts task.Options) (*Plan, error) {
	return BuildPlan(ctx, name, o.workspace, opts, o.plugins...)
}

// Filters returns the filters applied to each group.
func (o *Orchestrator) Filters() *filter.Filters {
	return o.filters
}

// groupFilter returns the filter of a run group.
func groupFilter(fs *filter.Filters, group string) *filter.Filter {
	switch group {
	case GroupPre:
		return fs.Pre
	case GroupPost:
		return fs.Post
	default:
		return fs.Main
	}
}

// run is the state of one task invocation.
type run struct {
	id           string
	plan         *Plan
	bus          *event.Bus
	logger       *logging.Logger
	concurrency  int
	interactive  bool
	streamOutput bool

	mu         sync.Mutex
	indefinite []indefiniteWork
}

// Run plans and executes a task. It returns the first step failure, after
// which later groups do not run. Indefinite work only starts when every
// group succeeded; Run then returns once it has ended.
func (o *Orchestrator) Run(ctx context.Context, name task.Name, opts task.Options) error {
	runID := uuid.NewString()
	logger := o.logger.WithRun(runID).WithTask(string(name))

	plan, err := o.Plan(ctx, name, opts)
	if err != nil {
		logger.Error("failed to plan task", "error", err)
		return err
	}
	logger.Info("task planned",
		"workspace", o.workspace.Name,
		"pre", len(plan.Pre),
		"main", len(plan.Main),
		"post", len(plan.Post),
	)

	r := &run{
		id:           runID,
		plan:         plan,
		bus:          event.NewBus(event.WithLogger(logger)),
		logger:       logger,
		concurrency:  o.concurrency,
		interactive:  o.interactive,
		streamOutput: o.level.Allows(step.LevelDebug),
	}
	r.bus.SubscribeAll(debugLog(logger))
	for _, h := range o.subscribers {
		r.bus.SubscribeAll(h)
	}
	if o.metrics != nil {
		o.metrics.Attach(r.bus)
		defer o.metrics.Detach()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if o.interactive {
		session := ui.NewSession(o.out)
		session.Begin(func(sig os.Signal) {
			logger.Warn("received signal, canceling run", "signal", sig.String())
			cancel()
		})
		defer session.End()
	}

	view := ui.New(o.out, ui.Options{
		Interactive:     o.interactive,
		Level:           o.level,
		Width:           func() int { return ui.TerminalWidth(o.out) },
		RedrawInterval:  o.redrawInterval,
		SpinnerInterval: o.spinnerInterval,
	})
	view.Attach(r.bus)

	var (
		runErr   error
		duration time.Duration
		work     []indefiniteWork
	)
	closed := false
	closeView := func() {
		if !closed {
			closed = true
			view.Close(epilogue(name, duration, runErr, len(work)))
		}
	}
	defer closeView()

	start := time.Now()
	r.bus.Publish(event.NewRunStartedEvent(runID, string(name), o.workspace.Name))
	runErr = o.runGroups(ctx, r)
	if ctx.Err() != nil {
		runErr = errors.NewCanceledError(string(name), runErr)
	}
	duration = time.Since(start)
	r.bus.Publish(event.NewRunFinishedEvent(runID, string(name), duration, runErr))
	o.writeMetrics(logger)

	if runErr != nil {
		logger.Error("task failed", "duration", duration, "error", runErr)
		return runErr
	}
	logger.Info("task finished", "duration", duration)

	work = r.takeIndefinite()
	if len(work) == 0 {
		return nil
	}
	// The switcher takes over the terminal, so the progress section has to
	// go first. Linear output keeps logging while indefinite steps run.
	if o.interactive {
		closeView()
	}
	return o.runIndefinite(ctx, r, work)
}

func (o *Orchestrator) runGroups(ctx context.Context, r *run) error {
	for _, g := range r.plan.Groups() {
		if len(g.Steps) == 0 {
			continue
		}
		if err := r.runGroup(ctx, g.Name, g.Steps, groupFilter(o.filters, g.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) writeMetrics(logger *logging.Logger) {
	if o.metrics == nil || o.metricsFile == "" {
		return
	}
	if err := o.metrics.WriteTextfile(o.metricsFile); err != nil {
		logger.Warn("failed to write metrics", "path", o.metricsFile, "error", err)
	}
}

// epilogue prints the run's final line below the progress output.
func epilogue(name task.Name, duration time.Duration, err error, indefinite int) func(io.Writer) {
	return func(w io.Writer) {
		took := util.FormatDuration(duration)
		switch {
		case errors.Is(err, errors.ErrCanceled):
			_, _ = io.WriteString(w, ui.Warning.Render(ui.IconSkipped+" "+string(name)+" interrupted after "+took)+"\n")
		case err != nil:
			_, _ = io.WriteString(w, ui.Error.Render(ui.IconFailed+" "+string(name)+" failed after "+took)+"\n")
		case indefinite > 0:
			_, _ = io.WriteString(w, ui.Success.Render(ui.IconSucceeded+" "+string(name)+" ready in "+took)+" "+
				ui.Muted.Render(util.Plural(indefinite, "indefinite step")+" running")+"\n")
		default:
			_, _ = io.WriteString(w, ui.Success.Render(ui.IconSucceeded+" "+string(name)+" finished in "+took)+"\n")
		}
	}
}

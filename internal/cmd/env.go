package cmd

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/metrics"
	"github.com/Iron-Ham/kiln/internal/orchestrator"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/shell"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/ui"
	"github.com/Iron-Ham/kiln/internal/workspace"
	"github.com/spf13/cobra"
)

// filterFlags are the repeatable skip and isolate flags shared by the task
// and steps commands.
type filterFlags struct {
	filter.Options
}

func (f *filterFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringArrayVar(&f.SkipSteps, "skip-step", nil, "skip main steps matching the pattern (repeatable)")
	flags.StringArrayVar(&f.IsolateSteps, "isolate-step", nil, "run only main steps matching the pattern (repeatable)")
	flags.StringArrayVar(&f.SkipPreSteps, "skip-pre-step", nil, "skip pre steps matching the pattern (repeatable)")
	flags.StringArrayVar(&f.IsolatePreSteps, "isolate-pre-step", nil, "run only pre steps matching the pattern (repeatable)")
	flags.StringArrayVar(&f.SkipPostSteps, "skip-post-step", nil, "skip post steps matching the pattern (repeatable)")
	flags.StringArrayVar(&f.IsolatePostSteps, "isolate-post-step", nil, "run only post steps matching the pattern (repeatable)")
}

// environment is everything a command needs to plan or run a task.
type environment struct {
	cfg       *config.Config
	workspace *workspace.Workspace
	logger    *logging.Logger
	filters   *filter.Filters
}

// loadEnvironment reads the configuration, resolves the workspace and opens
// the debug log. Callers must call close.
func loadEnvironment(flags *filterFlags) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, configError(err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	ws := workspace.FromConfig(&cfg.Workspace, cwd)

	filters, err := filter.NewFilters(flags.Options)
	if err != nil {
		return nil, err
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		logger, err = logging.NewLogger(ws.LogDir(), cfg.Logging.Level, logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open debug log: %w", err)
		}
	}

	return &environment{cfg: cfg, workspace: ws, logger: logger, filters: filters}, nil
}

func (e *environment) close() {
	_ = e.logger.Close()
}

// plugins returns the plugins every task runs with.
func (e *environment) plugins() []*plugin.Plugin {
	return []*plugin.Plugin{
		shell.New(e.cfg.Workspace.Projects, shell.WithLogger(e.logger)),
	}
}

// orchestrator builds an Orchestrator from the configuration.
func (e *environment) orchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, error) {
	level, err := step.ParseLogLevel(e.cfg.Run.LogLevel)
	if err != nil {
		return nil, errors.NewDiagnosticError("Invalid log level").
			WithContent(err.Error()).
			WithCause(errors.ErrInvalidInput)
	}

	out := cmd.OutOrStdout()
	opts := []orchestrator.Option{
		orchestrator.WithLogger(e.logger),
		orchestrator.WithIO(cmd.InOrStdin(), out, cmd.ErrOrStderr()),
		orchestrator.WithConcurrency(e.cfg.Run.Concurrency),
		orchestrator.WithLogLevel(level),
		orchestrator.WithInteractive(ui.ResolveInteractive(e.cfg.Run.Interactive, out)),
		orchestrator.WithUIIntervals(e.cfg.UI.RedrawInterval(), e.cfg.UI.SpinnerInterval()),
		orchestrator.WithHistoryBytes(e.cfg.UI.IndefiniteHistoryBytes),
		orchestrator.WithFilters(e.filters),
	}
	if path := e.cfg.Metrics.TextfilePath; path != "" {
		opts = append(opts, orchestrator.WithMetrics(metrics.NewCollector(), path))
	}
	return orchestrator.New(e.workspace, e.plugins(), opts...), nil
}

// configError turns validation failures into a diagnostic.
func configError(err error) error {
	var verrs config.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.NewDiagnosticError("Invalid configuration").
			WithContent(err.Error()).
			WithCause(err)
	}
	return errors.NewDiagnosticError("Invalid configuration").
		WithContent(verrs.Error()).
		WithSuggestion("Run 'kiln config path' to see which file is in use.").
		WithCause(err)
}

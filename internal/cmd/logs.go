package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/workspace"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the debug log",
	Long: `View and filter the debug log of the workspace.

The debug log is written to .kiln/logs/debug.log when logging.enabled is
set. Rotated backups are read too.

Examples:
  # Show every entry of the most recent run
  kiln logs --last

  # Show warnings and errors of one step and the steps nested in it
  kiln logs --step Web.Bundle --level warn

  # Show the last hour as JSON
  kiln logs --since 1h --format json`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsRunID  string
	logsLast   bool
	logsStep   string
	logsTask   string
	logsLevel  string
	logsSince  time.Duration
	logsGrep   string
	logsFormat string
)

func registerLogsCmd(parent *cobra.Command) {
	flags := logsCmd.Flags()
	flags.StringVar(&logsRunID, "run", "", "show entries of this run id")
	flags.BoolVar(&logsLast, "last", false, "show entries of the most recent run")
	flags.StringVar(&logsStep, "step", "", "show entries of this step and the steps nested in it")
	flags.StringVar(&logsTask, "task", "", "show entries of this task")
	flags.StringVar(&logsLevel, "level", "", "minimum level: debug, info, warn, error")
	flags.DurationVar(&logsSince, "since", 0, "show entries newer than this (e.g. 30m, 2h)")
	flags.StringVar(&logsGrep, "grep", "", "show entries whose message contains this text")
	flags.StringVar(&logsFormat, "format", "text", "output format: text, json")
	logsCmd.MarkFlagsMutuallyExclusive("run", "last")
	parent.AddCommand(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return configError(err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}
	ws := workspace.FromConfig(&cfg.Workspace, cwd)

	entries, err := logging.ReadEntries(ws.LogDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.NewDiagnosticError("No debug log").
				WithContent(fmt.Sprintf("%s has no debug log yet.", ws.Root)).
				WithSuggestion("Set logging.enabled: true in kiln.yaml and run a task.").
				WithCause(err)
		}
		return err
	}

	q := logging.Query{
		Level:    logsLevel,
		RunID:    logsRunID,
		Task:     logsTask,
		Step:     logsStep,
		Contains: logsGrep,
	}
	if logsLast {
		q.RunID = logging.LastRunID(entries)
	}
	if logsSince > 0 {
		q.Since = time.Now().Add(-logsSince)
	}

	return logging.WriteEntries(cmd.OutOrStdout(), logging.FilterEntries(entries, q), logsFormat)
}

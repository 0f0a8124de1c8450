package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/orchestrator"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/ui"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var stepsCmd = &cobra.Command{
	Use:   "steps <task>",
	Short: "List the steps a task would run",
	Long: `Plan a task without running it and list its steps in run order.

Each step is shown with its group, the permission the skip and isolate
flags give it, the steps it depends on and the plugins that contributed
it. Pass the same flags you would pass to the task to preview their effect.

Examples:
  kiln steps build
  kiln steps dev --isolate-step 'Web.*'
  kiln steps test --format json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"build", "dev", "test", "lint", "type-check"},
	RunE:      runSteps,
}

var (
	stepsFlags  filterFlags
	stepsFormat string
)

func registerStepsCmd(parent *cobra.Command) {
	stepsFlags.register(stepsCmd)
	stepsCmd.Flags().StringVarP(&stepsFormat, "format", "f", "text", "output format: text, json, yaml")
	parent.AddCommand(stepsCmd)
}

func runSteps(cmd *cobra.Command, args []string) error {
	name, err := task.Parse(args[0])
	if err != nil {
		return err
	}

	env, err := loadEnvironment(&stepsFlags)
	if err != nil {
		return err
	}
	defer env.close()

	orch, err := env.orchestrator(cmd)
	if err != nil {
		return err
	}
	plan, err := orch.Plan(cmd.Context(), name, task.Options{})
	if err != nil {
		return err
	}
	return writeSteps(cmd.OutOrStdout(), plan.Describe(orch.Filters()), stepsFormat)
}

// writeSteps prints step descriptions in the requested format.
func writeSteps(w io.Writer, infos []orchestrator.StepInfo, format string) error {
	switch strings.ToLower(format) {
	case "json":
		if infos == nil {
			infos = []orchestrator.StepInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(infos); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return writeStepsText(w, infos)
	default:
		return fmt.Errorf("unsupported format %q (want text, json or yaml)", format)
	}
}

func writeStepsText(w io.Writer, infos []orchestrator.StepInfo) error {
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, ui.Muted.Render("No steps."))
		return err
	}

	group := ""
	for _, info := range infos {
		if info.Group != group {
			group = info.Group
			if _, err := fmt.Fprintln(w, ui.GroupTag.Render(group)); err != nil {
				return err
			}
		}

		icon := ui.Success.Render(ui.IconArrow)
		if !info.Permission.ShouldRun() {
			icon = ui.Muted.Render(ui.IconSkipped)
		}
		line := fmt.Sprintf("  %s %s", icon, ui.StepLabel.Render(info.ID))
		if info.Label != "" {
			line += " " + ui.Muted.Render("("+info.Label+")")
		}
		if info.Permission != filter.Default {
			line += " " + ui.Warning.Render(info.Permission.String())
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}

		var details []string
		if len(info.Needs) > 0 {
			details = append(details, "needs "+strings.Join(info.Needs, ", "))
		}
		if len(info.Plugins) > 0 {
			details = append(details, "from "+strings.Join(info.Plugins, " "+ui.IconArrow+" "))
		}
		if len(details) > 0 {
			if _, err := fmt.Fprintln(w, "    "+ui.Hint.Render(strings.Join(details, "; "))); err != nil {
				return err
			}
		}
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/spf13/cobra"
)

var taskDescriptions = map[task.Name]struct{ short, long string }{
	task.Build: {
		"Build every project",
		"Run the build steps of every project, then the workspace build steps.",
	},
	task.Dev: {
		"Start the development environment",
		`Run the dev steps of every project. Steps that start servers or
watchers keep running after the run finishes; press the number of a step
to bring its output to the foreground.`,
	},
	task.Test: {
		"Test every project",
		"Run the test steps of every project, then the workspace test steps.",
	},
	task.Lint: {
		"Lint the workspace",
		"Run the workspace lint steps.",
	},
	task.TypeCheck: {
		"Type-check the workspace",
		"Run the workspace type-check steps.",
	},
}

const taskExamples = `  # Run only the steps of one project
  kiln %[1]s --isolate-step 'Web.*'

  # Skip a slow step and everything below it
  kiln %[1]s --skip-step 'Api.Schema.**'

  # Pass arguments through to every shell command
  kiln %[1]s -- --verbose`

// taskCmdFlags are the flags of one task command.
type taskCmdFlags struct {
	filterFlags
	watch bool
}

func registerTaskCmds(parent *cobra.Command) {
	for _, name := range task.Names() {
		parent.AddCommand(newTaskCmd(name))
	}
}

func newTaskCmd(name task.Name) *cobra.Command {
	desc := taskDescriptions[name]
	flags := &taskCmdFlags{}

	cmd := &cobra.Command{
		Use:     string(name) + " [-- args...]",
		Short:   desc.short,
		Long:    desc.long,
		Example: fmt.Sprintf(taskExamples, name),
		RunE: func(cmd *cobra.Command, args []string) error {
			passthrough, err := passthroughArgs(cmd, args)
			if err != nil {
				return err
			}
			return runTask(cmd, name, flags, passthrough)
		},
	}
	if name == task.TypeCheck {
		cmd.Aliases = []string{"typecheck"}
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "restart indefinite steps when their watched files change")
	return cmd
}

// passthroughArgs returns the arguments after "--". Positional arguments
// before it are rejected.
func passthroughArgs(cmd *cobra.Command, args []string) ([]string, error) {
	dash := cmd.ArgsLenAtDash()
	if dash < 0 {
		if len(args) > 0 {
			return nil, fmt.Errorf("unexpected arguments %q (pass arguments to commands after \"--\")", args)
		}
		return nil, nil
	}
	if dash > 0 {
		return nil, fmt.Errorf("unexpected arguments %q before \"--\"", args[:dash])
	}
	return args[dash:], nil
}

func runTask(cmd *cobra.Command, name task.Name, flags *taskCmdFlags, args []string) error {
	env, err := loadEnvironment(&flags.filterFlags)
	if err != nil {
		return err
	}
	defer env.close()

	orch, err := env.orchestrator(cmd)
	if err != nil {
		return err
	}

	return orch.Run(cmd.Context(), name, task.Options{
		Args:  args,
		Watch: flags.watch,
		CI:    os.Getenv("CI") != "",
	})
}

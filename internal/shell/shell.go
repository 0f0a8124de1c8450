// Package shell provides the built-in Kiln.Shell plugin, which turns the
// commands declared in the kiln config into steps.
//
// Build, dev and test commands become project steps; lint and type-check
// commands become workspace steps. Every step id is "<Project>.<ID>" and
// runs its command line with "sh -c" in the project root.
package shell

import (
	"context"
	"fmt"
	"strings"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/process"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/watch"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

// ID is the id of the composed plugin. Children are "Kiln.Shell.<Task>".
const ID = "Kiln.Shell"

// Shell is the interpreter every command runs under.
const Shell = "sh"

// Option configures the plugin.
type Option func(*builder)

// WithLogger sets the logger used by file watchers.
func WithLogger(l *logging.Logger) Option {
	return func(b *builder) { b.logger = l }
}

type builder struct {
	projects []config.ProjectConfig
	logger   *logging.Logger
}

// New returns the Kiln.Shell plugin for the given project declarations.
// A child plugin is only composed in for tasks that have commands.
func New(projects []config.ProjectConfig, opts ...Option) *plugin.Plugin {
	b := &builder{projects: projects, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(b)
	}

	return plugin.ComposeWorkspacePlugin(ID, func(c plugin.Composer) {
		c.Use(
			plugin.When(b.has(task.Build), plugin.ProjectBuild(ID+".Build", b.projectSteps(ID+".Build", task.Build))),
			plugin.When(b.has(task.Dev), plugin.ProjectDev(ID+".Dev", b.projectSteps(ID+".Dev", task.Dev))),
			plugin.When(b.has(task.Test), plugin.ProjectTest(ID+".Test", b.projectSteps(ID+".Test", task.Test))),
			plugin.When(b.has(task.Lint), plugin.WorkspaceLint(ID+".Lint", b.workspaceSteps(ID+".Lint", task.Lint))),
			plugin.When(b.has(task.TypeCheck), plugin.WorkspaceTypeCheck(ID+".TypeCheck", b.workspaceSteps(ID+".TypeCheck", task.TypeCheck))),
		)
	})
}

// has reports whether any project declares a command for the task.
func (b *builder) has(name task.Name) bool {
	for i := range b.projects {
		if len(commandsFor(&b.projects[i], name)) > 0 {
			return true
		}
	}
	return false
}

func (b *builder) project(name string) *config.ProjectConfig {
	for i := range b.projects {
		if strings.EqualFold(b.projects[i].Name, name) {
			return &b.projects[i]
		}
	}
	return nil
}

func commandsFor(p *config.ProjectConfig, name task.Name) []config.CommandConfig {
	var out []config.CommandConfig
	for _, cmd := range p.Commands {
		if parsed, err := task.Parse(cmd.Task); err == nil && parsed == name {
			out = append(out, cmd)
		}
	}
	return out
}

// projectSteps taps the project's step hook under the leaf plugin's id so
// the steps are attributed to it.
func (b *builder) projectSteps(id string, name task.Name) plugin.ProjectTaskFunc {
	return func(_ context.Context, pc *task.ProjectContext) error {
		decl := b.project(pc.Project.Name)
		if decl == nil {
			return nil
		}
		cmds := commandsFor(decl, name)
		if len(cmds) == 0 {
			return nil
		}
		pc.Hooks.Steps.Hook(id, func(_ context.Context, steps []*step.Step, details *task.StepDetails) ([]*step.Step, error) {
			for _, cmd := range cmds {
				steps = append(steps, b.commandStep(pc.Project, cmd, details.Options))
			}
			return steps, nil
		})
		return nil
	}
}

func (b *builder) workspaceSteps(id string, name task.Name) plugin.WorkspaceTaskFunc {
	return func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Steps.Hook(id, func(_ context.Context, steps []*step.Step, details *task.StepDetails) ([]*step.Step, error) {
			for i := range b.projects {
				decl := &b.projects[i]
				cmds := commandsFor(decl, name)
				if len(cmds) == 0 {
					continue
				}
				project, ok := wc.Workspace.Project(decl.Name)
				if !ok {
					return nil, errors.NewDiagnosticError("Unknown project").
						WithContent(fmt.Sprintf("Commands are declared for %q, which is not part of workspace %q.", decl.Name, wc.Workspace.Name)).
						WithCause(errors.ErrInvalidInput)
				}
				for _, cmd := range cmds {
					steps = append(steps, b.commandStep(project, cmd, details.Options))
				}
			}
			return steps, nil
		})
		return nil
	}
}

// StepID returns the id of a command's step.
func StepID(project, command string) string {
	return project + "." + command
}

// resolveNeeds turns needs references into lowercase step ids. A bare
// reference names a command in the same project.
func resolveNeeds(project string, needs []string) map[string]struct{} {
	set := make(map[string]struct{}, len(needs))
	for _, ref := range needs {
		id := ref
		if !strings.Contains(ref, ".") {
			id = StepID(project, ref)
		}
		set[strings.ToLower(id)] = struct{}{}
	}
	return set
}

// Args builds the sh arguments for a command line. Passthrough args become
// the script's positional parameters and are appended with "$@".
func Args(run string, passthrough []string) []string {
	if len(passthrough) == 0 {
		return []string{"-c", run}
	}
	args := []string{"-c", run + ` "$@"`, Shell}
	return append(args, passthrough...)
}

func (b *builder) commandStep(project *workspace.Project, cmd config.CommandConfig, opts task.Options) *step.Step {
	id := StepID(project.Name, cmd.ID)
	stepOpts := []step.Option{
		step.WithLabel(cmd.Label),
		step.WithResources(step.Resources{CPU: cmd.CPU, Memory: cmd.Memory}),
	}
	if len(cmd.Needs) > 0 {
		needs := resolveNeeds(project.Name, cmd.Needs)
		stepOpts = append(stepOpts, step.WithNeeds(func(other *step.Step) bool {
			_, ok := needs[strings.ToLower(other.ID)]
			return ok
		}))
	}

	args := Args(cmd.Run, opts.Args)
	procOpts := []process.Option{process.WithDir(project.Root)}
	if len(cmd.Env) > 0 {
		procOpts = append(procOpts, process.WithEnv(cmd.Env...))
	}
	if cmd.TTY {
		procOpts = append(procOpts, process.WithPTY())
	}

	if !cmd.Indefinite {
		return step.New(id, func(ctx context.Context, r step.Runner) error {
			_, err := r.Exec(ctx, Shell, args, procOpts...)
			return err
		}, stepOpts...)
	}

	watching := opts.Watch && len(cmd.Watch) > 0
	logger := b.logger.WithStep(id)
	return step.New(id, func(_ context.Context, r step.Runner) error {
		r.Indefinite(func(ctx context.Context, stdio step.Stdio) error {
			run := func(ctx context.Context) error {
				all := append([]process.Option{
					process.WithStdin(stdio.Stdin),
					process.WithStdout(stdio.Stdout),
					process.WithStderr(stdio.Stderr),
				}, procOpts...)
				_, err := process.Run(ctx, Shell, args, all...)
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if !watching {
				return run(ctx)
			}

			w, err := watch.New(watch.Config{
				Root:     project.Root,
				Patterns: cmd.Watch,
				Logger:   logger,
				OnRestart: func(changed []string) {
					r.Log(fmt.Sprintf("Restarting, changed: %s", strings.Join(changed, ", ")), step.LevelInfo)
				},
				OnExit: func(err error) {
					if err != nil {
						r.Log(fmt.Sprintf("Exited: %v. Waiting for changes.", err), step.LevelWarnings)
					}
				},
			})
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			return w.Run(ctx, run)
		})
		return nil
	}, stepOpts...)
}

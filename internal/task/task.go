// Package task declares the tasks kiln runs and the hooks plugins attach to
// for each of them.
//
// A task invocation builds fresh hook sets: one WorkspaceHooks for the run
// and one ProjectHooks per project. Plugins reach those hooks through the
// task-scoped series hooks in ProjectTasks and WorkspaceTasks, which the
// orchestrator runs once per invocation with the matching context.
package task

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/kiln/internal/hook"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

// Name identifies a task.
type Name string

const (
	Build     Name = "build"
	Dev       Name = "dev"
	Test      Name = "test"
	Lint      Name = "lint"
	TypeCheck Name = "type-check"
)

// Names returns every task in display order.
func Names() []Name {
	return []Name{Build, Dev, Test, Lint, TypeCheck}
}

// Parse resolves a task name, accepting "typecheck" and "type_check".
func Parse(s string) (Name, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "_", "-")
	if norm == "typecheck" {
		norm = string(TypeCheck)
	}
	for _, n := range Names() {
		if string(n) == norm {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown task %q", s)
}

// ProjectScoped reports whether projects take part in the task.
// Lint and type-check only run at workspace level.
func (n Name) ProjectScoped() bool {
	return n == Build || n == Dev || n == Test
}

// Options are the task-level inputs from the command line.
type Options struct {
	// Args are passed through after "--".
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Watch enables restart-on-change for indefinite steps.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
	// CI is set when running under continuous integration.
	CI bool `json:"ci,omitempty" yaml:"ci,omitempty"`
}

// StepDetails is the extra value passed to every step waterfall.
type StepDetails struct {
	// Config is the registry produced by the configure phase.
	Config  *hook.Registry
	Options Options
}

// StepsHook collects the steps of one group.
type StepsHook = hook.WaterfallHook[[]*step.Step, *StepDetails]

// ProjectHooks are built per project for one task invocation.
type ProjectHooks struct {
	// ConfigureHooks extends the open registry with new hooks.
	ConfigureHooks *hook.WaterfallHook[*hook.Registry, *workspace.Project]
	// Configure lets plugins tap the hooks registered above.
	Configure *hook.ActionHook[*hook.Registry]
	// Steps produces the project's main steps.
	Steps *StepsHook
}

// NewProjectHooks creates an empty hook set.
func NewProjectHooks() *ProjectHooks {
	return &ProjectHooks{
		ConfigureHooks: hook.NewWaterfall[*hook.Registry, *workspace.Project](),
		Configure:      hook.NewAction[*hook.Registry](),
		Steps:          hook.NewWaterfall[[]*step.Step, *StepDetails](),
	}
}

// WorkspaceHooks are built once per task invocation.
type WorkspaceHooks struct {
	ConfigureHooks *hook.WaterfallHook[*hook.Registry, *workspace.Workspace]
	Configure      *hook.ActionHook[*hook.Registry]
	// Pre and Post bracket the main group. Steps receives the projects'
	// steps as its initial value.
	Pre   *StepsHook
	Steps *StepsHook
	Post  *StepsHook
}

// NewWorkspaceHooks creates an empty hook set.
func NewWorkspaceHooks() *WorkspaceHooks {
	return &WorkspaceHooks{
		ConfigureHooks: hook.NewWaterfall[*hook.Registry, *workspace.Workspace](),
		Configure:      hook.NewAction[*hook.Registry](),
		Pre:            hook.NewWaterfall[[]*step.Step, *StepDetails](),
		Steps:          hook.NewWaterfall[[]*step.Step, *StepDetails](),
		Post:           hook.NewWaterfall[[]*step.Step, *StepDetails](),
	}
}

// ProjectContext is passed to project plugins for one project.
type ProjectContext struct {
	Task      Name
	Workspace *workspace.Workspace
	Project   *workspace.Project
	Options   Options
	Hooks     *ProjectHooks
}

// WorkspaceContext is passed to workspace plugins.
type WorkspaceContext struct {
	Task      Name
	Workspace *workspace.Workspace
	Options   Options
	Hooks     *WorkspaceHooks
}

// ProjectTasks are the task hooks a project plugin may register on.
type ProjectTasks struct {
	Build *hook.ActionHook[*ProjectContext]
	Dev   *hook.ActionHook[*ProjectContext]
	Test  *hook.ActionHook[*ProjectContext]
}

// NewProjectTasks creates empty project task hooks.
func NewProjectTasks() *ProjectTasks {
	return &ProjectTasks{
		Build: hook.NewAction[*ProjectContext](),
		Dev:   hook.NewAction[*ProjectContext](),
		Test:  hook.NewAction[*ProjectContext](),
	}
}

// For returns the hook of task n, or nil when projects do not take part.
func (t *ProjectTasks) For(n Name) *hook.ActionHook[*ProjectContext] {
	switch n {
	case Build:
		return t.Build
	case Dev:
		return t.Dev
	case Test:
		return t.Test
	}
	return nil
}

// WorkspaceTasks are the task hooks a workspace plugin may register on.
type WorkspaceTasks struct {
	Build     *hook.ActionHook[*WorkspaceContext]
	Dev       *hook.ActionHook[*WorkspaceContext]
	Test      *hook.ActionHook[*WorkspaceContext]
	Lint      *hook.ActionHook[*WorkspaceContext]
	TypeCheck *hook.ActionHook[*WorkspaceContext]
}

// NewWorkspaceTasks creates empty workspace task hooks.
func NewWorkspaceTasks() *WorkspaceTasks {
	return &WorkspaceTasks{
		Build:     hook.NewAction[*WorkspaceContext](),
		Dev:       hook.NewAction[*WorkspaceContext](),
		Test:      hook.NewAction[*WorkspaceContext](),
		Lint:      hook.NewAction[*WorkspaceContext](),
		TypeCheck: hook.NewAction[*WorkspaceContext](),
	}
}

// For returns the hook of task n, or nil for an unknown task.
func (t *WorkspaceTasks) For(n Name) *hook.ActionHook[*WorkspaceContext] {
	switch n {
	case Build:
		return t.Build
	case Dev:
		return t.Dev
	case Test:
		return t.Test
	case Lint:
		return t.Lint
	case TypeCheck:
		return t.TypeCheck
	}
	return nil
}

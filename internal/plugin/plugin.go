// Package plugin implements kiln's plugin objects and their expansion.
//
// A plugin is either a leaf, whose run function registers callbacks on the
// task hooks, or a composition, whose compose function declares child
// plugins. Expand flattens a set of root plugins into their leaves and
// records which composition pulled each plugin in, so diagnostics can show
// the full chain behind any step.
//
// Plugins target either a project (run once per project) or the workspace
// (run once per task invocation). The task-narrowing factories such as
// ProjectBuild hand the author a callback bound to a single task hook, so a
// build plugin cannot wire into dev or test by accident.
package plugin

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/task"
)

// Target is the scope a plugin applies to.
type Target int

const (
	TargetProject Target = iota
	TargetWorkspace
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case TargetProject:
		return "project"
	case TargetWorkspace:
		return "workspace"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// ProjectRunFunc registers a project plugin's callbacks.
type ProjectRunFunc func(ctx context.Context, tasks *task.ProjectTasks) error

// WorkspaceRunFunc registers a workspace plugin's callbacks.
type WorkspaceRunFunc func(ctx context.Context, tasks *task.WorkspaceTasks) error

// ComposeFunc declares a composed plugin's children.
type ComposeFunc func(c Composer)

// Composer collects the children of a composed plugin.
type Composer interface {
	// Use adds children in order. Nil entries are ignored and a plugin
	// already added is not added again.
	Use(children ...*Plugin)
}

// Plugin is immutable once created and compared by pointer identity.
type Plugin struct {
	ID     string
	Target Target

	runProject   ProjectRunFunc
	runWorkspace WorkspaceRunFunc
	compose      ComposeFunc
}

// NewProjectPlugin creates a leaf project plugin.
func NewProjectPlugin(id string, run ProjectRunFunc) *Plugin {
	return &Plugin{ID: id, Target: TargetProject, runProject: run}
}

// NewWorkspacePlugin creates a leaf workspace plugin.
func NewWorkspacePlugin(id string, run WorkspaceRunFunc) *Plugin {
	return &Plugin{ID: id, Target: TargetWorkspace, runWorkspace: run}
}

// ComposeProjectPlugin creates a composed project plugin. It may only use
// project plugins.
func ComposeProjectPlugin(id string, compose ComposeFunc) *Plugin {
	return &Plugin{ID: id, Target: TargetProject, compose: compose}
}

// ComposeWorkspacePlugin creates a composed workspace plugin. It may use
// project and workspace plugins.
func ComposeWorkspacePlugin(id string, compose ComposeFunc) *Plugin {
	return &Plugin{ID: id, Target: TargetWorkspace, compose: compose}
}

// When returns p if cond holds and nil otherwise, for conditional Use.
func When(cond bool, p *Plugin) *Plugin {
	if !cond {
		return nil
	}
	return p
}

// IsComposed reports whether p declares children instead of running.
func (p *Plugin) IsComposed() bool {
	return p.compose != nil
}

// IsCore reports whether p belongs to kiln itself.
func (p *Plugin) IsCore() bool {
	return step.IsCoreID(p.ID)
}

// String implements fmt.Stringer.
func (p *Plugin) String() string {
	return p.ID
}

// Validate checks that p has an id and exactly one behavior matching its
// target.
func (p *Plugin) Validate() error {
	if p.ID == "" {
		return invalidPlugin("<unnamed>", "The plugin has no id.")
	}

	behaviors := 0
	if p.compose != nil {
		behaviors++
	}
	if p.runProject != nil {
		behaviors++
		if p.Target != TargetProject {
			return invalidPlugin(p.ID, "A workspace plugin was given a project run function.")
		}
	}
	if p.runWorkspace != nil {
		behaviors++
		if p.Target != TargetWorkspace {
			return invalidPlugin(p.ID, "A project plugin was given a workspace run function.")
		}
	}

	switch behaviors {
	case 0:
		return invalidPlugin(p.ID, "The plugin neither runs nor composes other plugins.")
	case 1:
		return nil
	default:
		return invalidPlugin(p.ID, "The plugin both runs and composes other plugins.")
	}
}

func invalidPlugin(id, content string) error {
	return errors.NewDiagnosticError(fmt.Sprintf("Invalid plugin %q", id)).
		WithContent(content).
		WithSuggestion("Create plugins with the plugin package factories, giving each a dot-namespaced id.").
		WithCause(errors.ErrInvalidPlugin)
}

// ApplyProject runs a leaf project plugin against tasks.
func (p *Plugin) ApplyProject(ctx context.Context, tasks *task.ProjectTasks) error {
	if p.runProject == nil {
		return invalidPlugin(p.ID, fmt.Sprintf("Cannot apply a %s plugin to project tasks.", p.kind()))
	}
	return p.runProject(ctx, tasks)
}

// ApplyWorkspace runs a leaf workspace plugin against tasks.
func (p *Plugin) ApplyWorkspace(ctx context.Context, tasks *task.WorkspaceTasks) error {
	if p.runWorkspace == nil {
		return invalidPlugin(p.ID, fmt.Sprintf("Cannot apply a %s plugin to workspace tasks.", p.kind()))
	}
	return p.runWorkspace(ctx, tasks)
}

func (p *Plugin) kind() string {
	if p.IsComposed() {
		return "composed " + p.Target.String()
	}
	return p.Target.String()
}

// ProjectTaskFunc is the callback of a task-narrowed project plugin.
type ProjectTaskFunc func(ctx context.Context, pc *task.ProjectContext) error

// WorkspaceTaskFunc is the callback of a task-narrowed workspace plugin.
type WorkspaceTaskFunc func(ctx context.Context, wc *task.WorkspaceContext) error

func projectTask(id string, name task.Name, fn ProjectTaskFunc) *Plugin {
	return NewProjectPlugin(id, func(_ context.Context, tasks *task.ProjectTasks) error {
		tasks.For(name).HookAction(id, fn)
		return nil
	})
}

func workspaceTask(id string, name task.Name, fn WorkspaceTaskFunc) *Plugin {
	return NewWorkspacePlugin(id, func(_ context.Context, tasks *task.WorkspaceTasks) error {
		tasks.For(name).HookAction(id, fn)
		return nil
	})
}

// ProjectBuild creates a project plugin that only hooks the build task.
func ProjectBuild(id string, fn ProjectTaskFunc) *Plugin {
	return projectTask(id, task.Build, fn)
}

// ProjectDev creates a project plugin that only hooks the dev task.
func ProjectDev(id string, fn ProjectTaskFunc) *Plugin {
	return projectTask(id, task.Dev, fn)
}

// ProjectTest creates a project plugin that only hooks the test task.
func ProjectTest(id string, fn ProjectTaskFunc) *Plugin {
	return projectTask(id, task.Test, fn)
}

// WorkspaceBuild creates a workspace plugin that only hooks the build task.
func WorkspaceBuild(id string, fn WorkspaceTaskFunc) *Plugin {
	return workspaceTask(id, task.Build, fn)
}

// WorkspaceDev creates a workspace plugin that only hooks the dev task.
func WorkspaceDev(id string, fn WorkspaceTaskFunc) *Plugin {
	return workspaceTask(id, task.Dev, fn)
}

// WorkspaceTest creates a workspace plugin that only hooks the test task.
func WorkspaceTest(id string, fn WorkspaceTaskFunc) *Plugin {
	return workspaceTask(id, task.Test, fn)
}

// WorkspaceLint creates a workspace plugin that only hooks the lint task.
func WorkspaceLint(id string, fn WorkspaceTaskFunc) *Plugin {
	return workspaceTask(id, task.Lint, fn)
}

// WorkspaceTypeCheck creates a workspace plugin that only hooks the
// type-check task.
func WorkspaceTypeCheck(id string, fn WorkspaceTaskFunc) *Plugin {
	return workspaceTask(id, task.TypeCheck, fn)
}

package orchestrator

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/hook"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

// Run group names.
const (
	GroupPre        = "pre"
	GroupMain       = "main"
	GroupPost       = "post"
	GroupIndefinite = "indefinite"
)

// Core plugin and step ids.
const (
	CorePluginID        = step.CorePrefix
	PrepareOutputStepID = step.CorePrefix + ".PrepareOutput"
)

// Group is one ordered set of steps run under a single filter.
type Group struct {
	Name  string
	Steps []*step.Step
}

// Plan is the set of steps one task invocation will run, along with where
// each step came from.
type Plan struct {
	Task      task.Name
	Workspace *workspace.Workspace
	Options   task.Options

	Pre  []*step.Step
	Main []*step.Step
	Post []*step.Step

	// Config is the workspace registry produced by the configure phase.
	Config *hook.Registry

	sources  map[*step.Step]*plugin.Plugin
	ancestry *plugin.Ancestry
}

// Groups returns pre, main and post in run order.
func (p *Plan) Groups() []Group {
	return []Group{
		{Name: GroupPre, Steps: p.Pre},
		{Name: GroupMain, Steps: p.Main},
		{Name: GroupPost, Steps: p.Post},
	}
}

// Len returns the number of planned steps across all groups.
func (p *Plan) Len() int {
	return len(p.Pre) + len(p.Main) + len(p.Post)
}

// Source returns the plugin whose hook callback produced s, or nil.
func (p *Plan) Source(s *step.Step) *plugin.Plugin {
	return p.sources[s]
}

// Ancestors returns the ids of the plugin that produced s followed by the
// compositions that pulled it in. Isolate patterns match against them.
func (p *Plan) Ancestors(s *step.Step) []string {
	src := p.sources[s]
	if src == nil {
		return nil
	}
	return p.ancestry.IDs(src)
}

// BuildPlan expands plugins, runs the task's hooks and collects the steps
// of each group. The core plugin is always applied first.
//
// Workspace task hooks run before project task hooks. Each project's steps
// are collected from its own hook set and become the initial value of the
// workspace Steps waterfall.
func BuildPlan(ctx context.Context, name task.Name, ws *workspace.Workspace, opts task.Options, plugins ...*plugin.Plugin) (*Plan, error) {
	roots := append([]*plugin.Plugin{corePlugin()}, plugins...)
	leaves, ancestry, err := plugin.Expand(roots...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*plugin.Plugin)
	for _, leaf := range leaves {
		for _, p := range ancestry.Chain(leaf) {
			if _, ok := byID[p.ID]; !ok {
				byID[p.ID] = p
			}
		}
	}

	projectTasks := task.NewProjectTasks()
	workspaceTasks := task.NewWorkspaceTasks()
	for _, leaf := range leaves {
		switch leaf.Target {
		case plugin.TargetProject:
			err = leaf.ApplyProject(ctx, projectTasks)
		case plugin.TargetWorkspace:
			err = leaf.ApplyWorkspace(ctx, workspaceTasks)
		}
		if err != nil {
			return nil, fmt.Errorf("apply plugin %s: %w", leaf.ID, err)
		}
	}

	plan := &Plan{
		Task:      name,
		Workspace: ws,
		Options:   opts,
		sources:   make(map[*step.Step]*plugin.Plugin),
		ancestry:  ancestry,
	}
	tap := func(id string, steps []*step.Step) {
		for _, s := range steps {
			if _, seen := plan.sources[s]; !seen {
				plan.sources[s] = byID[id]
			}
		}
	}

	wsHook := workspaceTasks.For(name)
	if wsHook == nil {
		return nil, errors.NewDiagnosticError("Unknown task").
			WithContent(fmt.Sprintf("%q is not a task kiln can run.", name)).
			WithCause(errors.ErrInvalidInput)
	}
	wc := &task.WorkspaceContext{Task: name, Workspace: ws, Options: opts, Hooks: task.NewWorkspaceHooks()}
	if _, err := wsHook.Run(ctx, wc); err != nil {
		return nil, err
	}
	registry, err := configure(ctx, wc.Hooks.ConfigureHooks, wc.Hooks.Configure, ws)
	if err != nil {
		return nil, err
	}
	plan.Config = registry

	var projectSteps []*step.Step
	if projectHook := projectTasks.For(name); projectHook != nil {
		for _, project := range ws.Projects {
			pc := &task.ProjectContext{Task: name, Workspace: ws, Project: project, Options: opts, Hooks: task.NewProjectHooks()}
			if _, err := projectHook.Run(ctx, pc); err != nil {
				return nil, err
			}
			preg, err := configure(ctx, pc.Hooks.ConfigureHooks, pc.Hooks.Configure, project)
			if err != nil {
				return nil, err
			}
			steps, err := pc.Hooks.Steps.RunTapped(ctx, nil, &task.StepDetails{Config: preg, Options: opts}, tap)
			if err != nil {
				return nil, fmt.Errorf("collect steps of project %s: %w", project.Name, err)
			}
			projectSteps = append(projectSteps, steps...)
		}
	}

	details := &task.StepDetails{Config: registry, Options: opts}
	if plan.Pre, err = wc.Hooks.Pre.RunTapped(ctx, nil, details, tap); err != nil {
		return nil, fmt.Errorf("collect pre steps: %w", err)
	}
	if plan.Main, err = wc.Hooks.Steps.RunTapped(ctx, projectSteps, details, tap); err != nil {
		return nil, fmt.Errorf("collect steps: %w", err)
	}
	if plan.Post, err = wc.Hooks.Post.RunTapped(ctx, nil, details, tap); err != nil {
		return nil, fmt.Errorf("collect post steps: %w", err)
	}

	plan.Pre = compact(plan.Pre)
	plan.Main = compact(plan.Main)
	plan.Post = compact(plan.Post)
	for _, g := range plan.Groups() {
		if err := checkCycles(g.Name, g.Steps); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// checkCycles rejects a group whose steps need each other, which would
// otherwise leave them queued forever.
func checkCycles(group string, steps []*step.Step) error {
	cycle := step.FindCycle(steps)
	if cycle == nil {
		return nil
	}
	ids := make([]string, len(cycle))
	for i, s := range cycle {
		ids[i] = s.ID
	}
	return errors.NewDiagnosticError("Dependency cycle").
		WithContent(fmt.Sprintf("Steps in the %s group need each other: %s", group, strings.Join(ids, " > "))).
		WithSuggestion("Remove one of the needs so the steps can be ordered.").
		WithCause(errors.ErrDependencyCycle)
}

// configure runs the extend waterfall on a fresh registry, then lets
// plugins tap the hooks it registered.
func configure[T any](ctx context.Context, extend *hook.WaterfallHook[*hook.Registry, T], tap *hook.ActionHook[*hook.Registry], target T) (*hook.Registry, error) {
	registry, err := extend.Run(ctx, hook.NewRegistry(), target)
	if err != nil {
		return nil, fmt.Errorf("configure hooks: %w", err)
	}
	if registry == nil {
		registry = hook.NewRegistry()
	}
	if _, err := tap.Run(ctx, registry); err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	return registry, nil
}

// compact drops nil entries and repeated pointers, keeping first positions.
func compact(steps []*step.Step) []*step.Step {
	seen := make(map[*step.Step]bool, len(steps))
	return slices.DeleteFunc(slices.Clone(steps), func(s *step.Step) bool {
		if s == nil || seen[s] {
			return true
		}
		seen[s] = true
		return false
	})
}

// corePlugin adds kiln's own pre-steps to every task.
func corePlugin() *plugin.Plugin {
	return plugin.NewWorkspacePlugin(CorePluginID, func(_ context.Context, tasks *task.WorkspaceTasks) error {
		for _, name := range task.Names() {
			tasks.For(name).HookAction(CorePluginID, func(_ context.Context, wc *task.WorkspaceContext) error {
				wc.Hooks.Pre.Hook(CorePluginID, func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
					return append([]*step.Step{prepareOutputStep(wc.Workspace)}, steps...), nil
				})
				return nil
			})
		}
		return nil
	})
}

// prepareOutputStep creates the workspace output directory.
func prepareOutputStep(ws *workspace.Workspace) *step.Step {
	return step.New(PrepareOutputStepID, func(_ context.Context, r step.Runner) error {
		dir := ws.OutputDir()
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		r.Log("Output directory: "+dir, step.LevelDebug)
		return nil
	}, step.WithLabel("Prepare output"))
}

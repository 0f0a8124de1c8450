package orchestrator

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/filter"
	"github.com/Iron-Ham/kiln/internal/hook"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/testutil"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

func noop(context.Context, step.Runner) error { return nil }

func ids(steps []*step.Step) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ID)
	}
	return out
}

// projectStepsPlugin adds "<Project>.<suffix>" to every project's build.
func projectStepsPlugin(id, suffix string) *plugin.Plugin {
	return plugin.ProjectBuild(id, func(_ context.Context, pc *task.ProjectContext) error {
		pc.Hooks.Steps.Hook(id, func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			return append(steps, step.New(pc.Project.Name+"."+suffix, noop)), nil
		})
		return nil
	})
}

// ----- BuildPlan Tests -----

func TestBuildPlan_GroupsAndOrder(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t, "Web", "Api")

	var initial []string
	workspaceSteps := plugin.WorkspaceBuild("Acme.Bundle", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Steps.Hook("Acme.Bundle", func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			initial = ids(steps)
			return append(steps, step.New("Workspace.Bundle", noop)), nil
		})
		wc.Hooks.Post.Hook("Acme.Bundle", func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			return append(steps, step.New("Workspace.Report", noop)), nil
		})
		return nil
	})

	plan, err := BuildPlan(context.Background(), task.Build, ws, task.Options{},
		projectStepsPlugin("Acme.Compile", "Compile"), workspaceSteps)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	if got := ids(plan.Pre); !reflect.DeepEqual(got, []string{PrepareOutputStepID}) {
		t.Errorf("Pre = %v", got)
	}
	if !reflect.DeepEqual(initial, []string{"Web.Compile", "Api.Compile"}) {
		t.Errorf("workspace waterfall started from %v, want the project steps", initial)
	}
	if got := ids(plan.Main); !reflect.DeepEqual(got, []string{"Web.Compile", "Api.Compile", "Workspace.Bundle"}) {
		t.Errorf("Main = %v", got)
	}
	if got := ids(plan.Post); !reflect.DeepEqual(got, []string{"Workspace.Report"}) {
		t.Errorf("Post = %v", got)
	}
	if plan.Len() != 5 {
		t.Errorf("Len() = %d, want 5", plan.Len())
	}
}

func TestBuildPlan_ProjectHooksOnlyForProjectTasks(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t, "Web")
	plan, err := BuildPlan(context.Background(), task.Lint, ws, task.Options{},
		projectStepsPlugin("Acme.Compile", "Compile"))
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(plan.Main) != 0 {
		t.Errorf("lint plan has project steps: %v", ids(plan.Main))
	}
}

func TestBuildPlan_SourceAttribution(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t, "Web")
	compile := projectStepsPlugin("Acme.Compile", "Compile")
	preset := plugin.ComposeWorkspacePlugin("Acme.Preset", func(c plugin.Composer) {
		c.Use(compile)
	})

	plan, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, preset)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	s := plan.Main[0]
	if plan.Source(s) != compile {
		t.Errorf("Source() = %v, want Acme.Compile", plan.Source(s))
	}
	if got := plan.Ancestors(s); !reflect.DeepEqual(got, []string{"Acme.Compile", "Acme.Preset"}) {
		t.Errorf("Ancestors() = %v", got)
	}
	if got := plan.Ancestors(plan.Pre[0]); !reflect.DeepEqual(got, []string{CorePluginID}) {
		t.Errorf("core step ancestors = %v", got)
	}
}

func TestBuildPlan_ConfigureRegistry(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t)
	const key = "acme.banner"

	var tapped []string
	provider := plugin.WorkspaceBuild("Acme.Provider", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.ConfigureHooks.Hook("Acme.Provider", func(_ context.Context, reg *hook.Registry, _ *workspace.Workspace) (*hook.Registry, error) {
			reg.Register(key, hook.NewAction[string]())
			return reg, nil
		})
		return nil
	})
	consumer := plugin.WorkspaceBuild("Acme.Consumer", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Configure.HookAction("Acme.Consumer", func(_ context.Context, reg *hook.Registry) error {
			banner, err := hook.Lookup[*hook.ActionHook[string]](reg, key)
			if err != nil {
				return err
			}
			banner.HookAction("Acme.Consumer", func(_ context.Context, s string) error {
				tapped = append(tapped, s)
				return nil
			})
			return nil
		})
		return nil
	})

	plan, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, provider, consumer)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	banner, err := hook.Lookup[*hook.ActionHook[string]](plan.Config, key)
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if _, err := banner.Run(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(tapped, []string{"hello"}) {
		t.Errorf("tapped = %v", tapped)
	}
}

func TestBuildPlan_MissingCapability(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t)
	consumer := plugin.WorkspaceBuild("Acme.Consumer", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Configure.HookAction("Acme.Consumer", func(_ context.Context, reg *hook.Registry) error {
			_, err := hook.Lookup[*hook.ActionHook[string]](reg, "nobody.registered")
			return err
		})
		return nil
	})

	if _, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, consumer); err == nil {
		t.Fatal("BuildPlan() succeeded with a missing capability")
	}
}

func TestBuildPlan_DuplicateStepsCollapsed(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t)
	shared := step.New("Workspace.Shared", noop)
	dup := plugin.WorkspaceBuild("Acme.Dup", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Steps.Hook("Acme.Dup", func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			return append(steps, shared, nil, shared), nil
		})
		return nil
	})

	plan, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, dup)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Main) != 1 || plan.Main[0] != shared {
		t.Errorf("Main = %v", ids(plan.Main))
	}
}

func TestBuildPlan_DependencyCycleRejected(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t)
	needs := func(id string) step.Option {
		return step.WithNeeds(func(other *step.Step) bool { return other.ID == id })
	}
	a := step.New("Web.Bundle", noop, needs("Web.Types"))
	b := step.New("Web.Types", noop, needs("Web.Bundle"))
	p := plugin.WorkspaceBuild("Acme.Cycle", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Post.Hook("Acme.Cycle", func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			return append(steps, a, b), nil
		})
		return nil
	})

	_, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, p)
	if !errors.Is(err, errors.ErrDependencyCycle) {
		t.Fatalf("BuildPlan() error = %v, want ErrDependencyCycle", err)
	}
	var diag *errors.DiagnosticError
	if !errors.As(err, &diag) {
		t.Fatalf("BuildPlan() error is not a diagnostic: %v", err)
	}
	if !strings.Contains(diag.Content, "post group") || !strings.Contains(diag.Content, "Web.Bundle > Web.Types > Web.Bundle") {
		t.Errorf("Content = %q, want the group and the cycle", diag.Content)
	}
}

func TestBuildPlan_DuplicatePluginIDsRejected(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t, "Web")
	_, err := BuildPlan(context.Background(), task.Build, ws, task.Options{},
		projectStepsPlugin("Acme.Compile", "Compile"),
		projectStepsPlugin("Acme.Compile", "Check"))
	if !errors.Is(err, errors.ErrInvalidPlugin) {
		t.Fatalf("BuildPlan() error = %v, want ErrInvalidPlugin", err)
	}
}

// ----- Describe Tests -----

func TestPlan_Describe(t *testing.T) {
	ws := testutil.SetupTestWorkspace(t)
	compile := step.New("Build.Compile", noop, step.WithLabel("Compile"), step.WithResources(step.Resources{CPU: 2}))
	lint := step.New("Build.Lint", noop, step.DependsOn(compile))
	p := plugin.WorkspaceBuild("Acme.Build", func(_ context.Context, wc *task.WorkspaceContext) error {
		wc.Hooks.Steps.Hook("Acme.Build", func(_ context.Context, steps []*step.Step, _ *task.StepDetails) ([]*step.Step, error) {
			return append(steps, compile, lint), nil
		})
		return nil
	})

	plan, err := BuildPlan(context.Background(), task.Build, ws, task.Options{}, p)
	if err != nil {
		t.Fatal(err)
	}
	filters, err := filter.NewFilters(filter.Options{IsolateSteps: []string{"Build.Compile"}})
	if err != nil {
		t.Fatal(err)
	}

	infos := plan.Describe(filters)
	if len(infos) != 3 {
		t.Fatalf("Describe() returned %d entries, want 3", len(infos))
	}
	if infos[0].ID != PrepareOutputStepID || infos[0].Permission != filter.Default {
		t.Errorf("core entry = %+v", infos[0])
	}
	got := infos[1]
	if got.Label != "Compile" || got.Permission != filter.Isolated || got.Resources == nil || got.Resources.CPU != 2 {
		t.Errorf("compile entry = %+v", got)
	}
	if !reflect.DeepEqual(got.Plugins, []string{"Acme.Build"}) {
		t.Errorf("compile plugins = %v", got.Plugins)
	}
	if infos[2].Permission != filter.Excluded || !reflect.DeepEqual(infos[2].Needs, []string{"Build.Compile"}) {
		t.Errorf("lint entry = %+v", infos[2])
	}
}

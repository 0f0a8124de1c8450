package shell

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/process"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/testutil"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

type execCall struct {
	name string
	args []string
}

// fakeRunner records Exec calls and indefinite registrations.
type fakeRunner struct {
	calls      []execCall
	indefinite []step.IndefiniteFunc
}

func (f *fakeRunner) Exec(_ context.Context, name string, args []string, _ ...process.Option) (*process.Result, error) {
	f.calls = append(f.calls, execCall{name: name, args: args})
	return &process.Result{Name: name, Args: args}, nil
}

func (f *fakeRunner) Log(string, step.LogLevel) {}
func (f *fakeRunner) Status(string)             {}
func (f *fakeRunner) Indefinite(fn step.IndefiniteFunc) {
	f.indefinite = append(f.indefinite, fn)
}
func (f *fakeRunner) RunNested(context.Context, ...*step.Step) error { return nil }

func testProjects() []config.ProjectConfig {
	return []config.ProjectConfig{
		{
			Name: "Web",
			Commands: []config.CommandConfig{
				{ID: "Bundle", Task: "build", Run: "vite build", Label: "Bundle web", Needs: []string{"Types", "Api.Schema"}},
				{ID: "Types", Task: "build", Run: "tsc"},
				{ID: "Serve", Task: "dev", Run: "vite", Indefinite: true, Watch: []string{"src/**"}},
				{ID: "Lint", Task: "lint", Run: "eslint ."},
			},
		},
		{
			Name: "Api",
			Commands: []config.CommandConfig{
				{ID: "Schema", Task: "build", Run: "make schema", CPU: 2},
				{ID: "Vet", Task: "lint", Run: "go vet ./..."},
			},
		},
	}
}

func testWorkspace() *workspace.Workspace {
	return workspace.New("mono", "/repo",
		&workspace.Project{Name: "Web", Root: "/repo/web"},
		&workspace.Project{Name: "Api", Root: "/repo/api"},
	)
}

func leafIDs(t *testing.T, p *plugin.Plugin) []string {
	t.Helper()
	leaves, _, err := plugin.Expand(p)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	var ids []string
	for _, l := range leaves {
		ids = append(ids, l.ID)
	}
	return ids
}

// projectSteps applies the plugin to one project and collects its steps.
func projectSteps(t *testing.T, p *plugin.Plugin, name task.Name, ws *workspace.Workspace, project string, opts task.Options) []*step.Step {
	t.Helper()
	ctx := context.Background()
	leaves, _, err := plugin.Expand(p)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	tasks := task.NewProjectTasks()
	for _, l := range leaves {
		if l.Target == plugin.TargetProject {
			if err := l.ApplyProject(ctx, tasks); err != nil {
				t.Fatalf("ApplyProject() error = %v", err)
			}
		}
	}
	proj, _ := ws.Project(project)
	pc := &task.ProjectContext{Task: name, Workspace: ws, Project: proj, Options: opts, Hooks: task.NewProjectHooks()}
	if _, err := tasks.For(name).Run(ctx, pc); err != nil {
		t.Fatalf("task hook error = %v", err)
	}
	steps, err := pc.Hooks.Steps.Run(ctx, nil, &task.StepDetails{Options: opts})
	if err != nil {
		t.Fatalf("Steps.Run() error = %v", err)
	}
	return steps
}

func stepIDs(steps []*step.Step) []string {
	var ids []string
	for _, s := range steps {
		ids = append(ids, s.ID)
	}
	return ids
}

// ----- Composition Tests -----

func TestNew_ComposesOnlyDeclaredTasks(t *testing.T) {
	got := leafIDs(t, New(testProjects()))
	want := []string{"Kiln.Shell.Build", "Kiln.Shell.Dev", "Kiln.Shell.Lint"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("leaves = %v, want %v", got, want)
	}

	if got := leafIDs(t, New(nil)); len(got) != 0 {
		t.Errorf("leaves without projects = %v", got)
	}
}

// ----- Step Generation Tests -----

func TestProjectSteps_BuildCommands(t *testing.T) {
	ws := testWorkspace()
	p := New(testProjects())

	web := projectSteps(t, p, task.Build, ws, "Web", task.Options{})
	if got := stepIDs(web); !reflect.DeepEqual(got, []string{"Web.Bundle", "Web.Types"}) {
		t.Fatalf("Web steps = %v", got)
	}
	api := projectSteps(t, p, task.Build, ws, "Api", task.Options{})
	if got := stepIDs(api); !reflect.DeepEqual(got, []string{"Api.Schema"}) {
		t.Fatalf("Api steps = %v", got)
	}

	bundle, types, schema := web[0], web[1], api[0]
	if bundle.Name() != "Bundle web" || types.Name() != "Web.Types" {
		t.Errorf("labels = %q, %q", bundle.Name(), types.Name())
	}
	if schema.Resources.CPU != 2 {
		t.Errorf("Resources = %+v", schema.Resources)
	}

	deps := step.Dependencies(bundle, []*step.Step{bundle, types, schema})
	if !reflect.DeepEqual(deps, []*step.Step{types, schema}) {
		t.Errorf("Bundle depends on %v, want [Web.Types Api.Schema]", deps)
	}
	if types.Needs != nil {
		t.Error("Types has a needs predicate without declaring needs")
	}
}

func TestProjectSteps_RunExecsShell(t *testing.T) {
	ws := testWorkspace()
	steps := projectSteps(t, New(testProjects()), task.Build, ws, "Api", task.Options{Args: []string{"--verbose", "a b"}})

	r := &fakeRunner{}
	if err := steps[0].Run(context.Background(), r); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := []execCall{{name: "sh", args: []string{"-c", `make schema "$@"`, "sh", "--verbose", "a b"}}}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("Exec calls = %+v, want %+v", r.calls, want)
	}
}

func TestProjectSteps_IndefiniteRegisters(t *testing.T) {
	ws := testWorkspace()
	steps := projectSteps(t, New(testProjects()), task.Dev, ws, "Web", task.Options{Watch: true})
	if got := stepIDs(steps); !reflect.DeepEqual(got, []string{"Web.Serve"}) {
		t.Fatalf("dev steps = %v", got)
	}

	r := &fakeRunner{}
	if err := steps[0].Run(context.Background(), r); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("indefinite step executed during the run: %+v", r.calls)
	}
	if len(r.indefinite) != 1 {
		t.Errorf("registered %d indefinite functions, want 1", len(r.indefinite))
	}
}

func TestProjectSteps_WatchRestartsForkedCommand(t *testing.T) {
	testutil.SkipIfNoShell(t)

	root := t.TempDir()
	webRoot := filepath.Join(root, "web")
	testutil.WriteFiles(t, webRoot, map[string]string{"src/app.ts": "export {}"})
	projects := []config.ProjectConfig{{Name: "Web", Commands: []config.CommandConfig{{
		ID:         "Serve",
		Task:       "dev",
		Run:        "echo start >> runs.log; sleep 30 && echo never",
		Indefinite: true,
		Watch:      []string{"src/**"},
	}}}}
	ws := workspace.New("mono", root, &workspace.Project{Name: "Web", Root: webRoot})

	steps := projectSteps(t, New(projects), task.Dev, ws, "Web", task.Options{Watch: true})
	r := &fakeRunner{}
	if err := steps[0].Run(context.Background(), r); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(r.indefinite) != 1 {
		t.Fatalf("registered %d indefinite functions, want 1", len(r.indefinite))
	}

	runs := func() int {
		data, _ := os.ReadFile(filepath.Join(webRoot, "runs.log"))
		return strings.Count(string(data), "start")
	}
	waitRuns := func(n int, within time.Duration) {
		t.Helper()
		deadline := time.Now().Add(within)
		for runs() < n {
			if time.Now().After(deadline) {
				t.Fatalf("command started %d times, want %d within %v", runs(), n, within)
			}
			time.Sleep(20 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	result := make(chan error, 1)
	go func() {
		result <- r.indefinite[0](ctx, step.Stdio{Stdout: io.Discard, Stderr: io.Discard})
	}()

	waitRuns(1, 3*time.Second)
	if err := os.WriteFile(filepath.Join(webRoot, "src", "app.ts"), []byte("export const a = 1"), 0644); err != nil {
		t.Fatal(err)
	}
	waitRuns(2, 3*time.Second)

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Errorf("indefinite function returned %v, want nil on cancel", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("indefinite function did not return after cancel")
	}
}

func TestProjectSteps_UnknownProjectAddsNothing(t *testing.T) {
	ws := workspace.New("mono", "/repo", &workspace.Project{Name: "Docs", Root: "/repo/docs"})
	if steps := projectSteps(t, New(testProjects()), task.Build, ws, "Docs", task.Options{}); len(steps) != 0 {
		t.Errorf("steps = %v", stepIDs(steps))
	}
}

func TestWorkspaceSteps_Lint(t *testing.T) {
	ctx := context.Background()
	ws := testWorkspace()
	leaves, _, err := plugin.Expand(New(testProjects()))
	if err != nil {
		t.Fatal(err)
	}
	tasks := task.NewWorkspaceTasks()
	for _, l := range leaves {
		if l.Target == plugin.TargetWorkspace {
			if err := l.ApplyWorkspace(ctx, tasks); err != nil {
				t.Fatal(err)
			}
		}
	}

	wc := &task.WorkspaceContext{Task: task.Lint, Workspace: ws, Hooks: task.NewWorkspaceHooks()}
	if _, err := tasks.Lint.Run(ctx, wc); err != nil {
		t.Fatal(err)
	}
	steps, err := wc.Hooks.Steps.Run(ctx, nil, &task.StepDetails{})
	if err != nil {
		t.Fatalf("Steps.Run() error = %v", err)
	}
	if got := stepIDs(steps); !reflect.DeepEqual(got, []string{"Web.Lint", "Api.Vet"}) {
		t.Errorf("lint steps = %v", got)
	}
}

// ----- Helper Tests -----

func TestArgs(t *testing.T) {
	tests := []struct {
		name string
		run  string
		pass []string
		want []string
	}{
		{"no passthrough", "go test ./...", nil, []string{"-c", "go test ./..."}},
		{"passthrough", "go test", []string{"-run", "X"}, []string{"-c", `go test "$@"`, "sh", "-run", "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Args(tt.run, tt.pass); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveNeeds(t *testing.T) {
	got := resolveNeeds("Web", []string{"Types", "Api.Schema"})
	want := map[string]struct{}{"web.types": {}, "api.schema": {}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("resolveNeeds() = %v", got)
	}
}

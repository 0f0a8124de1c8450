// Package internal contains integration tests that run whole tasks through
// the shell plugin, the orchestrator and the debug log.
package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/kiln/internal/config"
	"github.com/Iron-Ham/kiln/internal/errors"
	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/logging"
	"github.com/Iron-Ham/kiln/internal/orchestrator"
	"github.com/Iron-Ham/kiln/internal/plugin"
	"github.com/Iron-Ham/kiln/internal/process"
	"github.com/Iron-Ham/kiln/internal/shell"
	"github.com/Iron-Ham/kiln/internal/task"
	"github.com/Iron-Ham/kiln/internal/testutil"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// setupWorkspace resolves a workspace config rooted in a temp directory.
func setupWorkspace(t *testing.T, projects ...config.ProjectConfig) *workspace.Workspace {
	t.Helper()
	root := t.TempDir()
	for _, p := range projects {
		if err := os.MkdirAll(filepath.Join(root, p.Name), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return workspace.FromConfig(&config.WorkspaceConfig{Root: root, Projects: projects}, root)
}

func TestBuildRunsShellCommandsInOrder(t *testing.T) {
	testutil.SkipIfNoShell(t)

	projects := []config.ProjectConfig{
		{Name: "Web", Commands: []config.CommandConfig{
			{ID: "Bundle", Task: "build", Run: `echo web-bundle >> ../order.txt`, Needs: []string{"Types", "Api.Schema"}},
			{ID: "Types", Task: "build", Run: `echo web-types >> ../order.txt`},
		}},
		{Name: "Api", Commands: []config.CommandConfig{
			{ID: "Schema", Task: "build", Run: `echo "api-schema $1" >> ../order.txt`},
		}},
	}
	ws := setupWorkspace(t, projects...)

	logger, err := logging.NewLogger(ws.LogDir(), logging.LevelDebug, logging.DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close()

	out := &lockedBuffer{}
	events := testutil.NewEventRecorder()
	orch := orchestrator.New(ws, []*plugin.Plugin{shell.New(projects, shell.WithLogger(logger))},
		orchestrator.WithIO(strings.NewReader(""), out, out),
		orchestrator.WithInteractive(false),
		orchestrator.WithLogger(logger),
		orchestrator.WithSubscriber(events.Handle),
	)

	if err := orch.Run(context.Background(), task.Build, task.Options{Args: []string{"v2"}}); err != nil {
		t.Fatalf("Run() error = %v\n%s", err, out.String())
	}

	data, err := os.ReadFile(filepath.Join(ws.Root, "order.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[2], "web-bundle") {
		t.Errorf("order = %q, want web-bundle last", lines)
	}
	if !strings.Contains(string(data), "api-schema v2") {
		t.Errorf("passthrough argument missing: %q", data)
	}
	if n := events.Count(event.TypeStepSucceeded); n != 4 {
		t.Errorf("%d steps succeeded, want 4 (3 commands and the core step)", n)
	}

	entries, err := logging.ReadEntries(ws.LogDir())
	if err != nil {
		t.Fatalf("ReadEntries() error = %v", err)
	}
	runID := logging.LastRunID(entries)
	if runID == "" {
		t.Fatal("debug log has no run id")
	}
	bundle := logging.FilterEntries(entries, logging.Query{RunID: runID, Step: "Web.Bundle"})
	if len(bundle) == 0 {
		t.Error("debug log has no entries for Web.Bundle")
	}
}

func TestBuildFailureCarriesCommandOutput(t *testing.T) {
	testutil.SkipIfNoShell(t)

	projects := []config.ProjectConfig{
		{Name: "Web", Commands: []config.CommandConfig{
			{ID: "Bundle", Task: "build", Run: `echo "cannot resolve ./app" >&2; exit 3`},
		}},
	}
	ws := setupWorkspace(t, projects...)
	out := &lockedBuffer{}
	orch := orchestrator.New(ws, []*plugin.Plugin{shell.New(projects)},
		orchestrator.WithIO(nil, out, out),
		orchestrator.WithInteractive(false),
	)

	err := orch.Run(context.Background(), task.Build, task.Options{})
	var stepErr *errors.StepError
	if !errors.As(err, &stepErr) || stepErr.StepID != "Web.Bundle" {
		t.Fatalf("Run() error = %v, want a StepError for Web.Bundle", err)
	}
	var exitErr *process.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run() error = %v, want a wrapped ExitError", err)
	}
	if exitErr.ExitCode != 3 || !strings.Contains(string(exitErr.Stderr), "cannot resolve ./app") {
		t.Errorf("ExitError = code %d stderr %q", exitErr.ExitCode, exitErr.Stderr)
	}
}

func TestDevRunsIndefiniteCommands(t *testing.T) {
	testutil.SkipIfNoShell(t)

	projects := []config.ProjectConfig{
		{Name: "Web", Commands: []config.CommandConfig{
			{ID: "Codegen", Task: "dev", Run: `echo generated > gen.txt`},
			{ID: "Serve", Task: "dev", Run: `cat gen.txt; echo listening`, Indefinite: true, Needs: []string{"Codegen"}},
		}},
	}
	ws := setupWorkspace(t, projects...)
	out := &lockedBuffer{}
	orch := orchestrator.New(ws, []*plugin.Plugin{shell.New(projects)},
		orchestrator.WithIO(strings.NewReader(""), out, out),
		orchestrator.WithInteractive(false),
	)

	if err := orch.Run(context.Background(), task.Dev, task.Options{}); err != nil {
		t.Fatalf("Run() error = %v\n%s", err, out.String())
	}
	got := out.String()
	for _, want := range []string{"generated", "listening", "dev ready in"} {
		if !strings.Contains(got, want) {
			t.Errorf("output lacks %q:\n%s", want, got)
		}
	}
}

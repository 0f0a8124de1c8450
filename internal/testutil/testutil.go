// Package testutil provides testing utilities for kiln tests.
package testutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/Iron-Ham/kiln/internal/event"
	"github.com/Iron-Ham/kiln/internal/step"
	"github.com/Iron-Ham/kiln/internal/workspace"
)

// SetupTestWorkspace creates a temporary workspace with one directory per
// project. The directories are cleaned up when the test completes.
func SetupTestWorkspace(t *testing.T, projects ...string) *workspace.Workspace {
	t.Helper()

	root := t.TempDir()
	ws := workspace.New("test", root)
	for _, name := range projects {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("failed to create project dir: %v", err)
		}
		ws.Projects = append(ws.Projects, &workspace.Project{Name: name, Root: dir})
	}
	return ws
}

// WriteFiles creates files below dir, creating parent directories.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		full := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}

// SkipIfNoShell skips the test if sh is not installed.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH, skipping test")
	}
}

// EventRecorder collects every event published on a bus.
type EventRecorder struct {
	mu     sync.Mutex
	events []event.Event
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{}
}

// Handle records e. It is an event.Handler.
func (r *EventRecorder) Handle(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events in publish order.
func (r *EventRecorder) Events() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in publish order.
func (r *EventRecorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.EventType()
	}
	return types
}

// Count returns how many events of the given type were recorded.
func (r *EventRecorder) Count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType() == eventType {
			n++
		}
	}
	return n
}

// StepIDs returns the ids of the steps carried by events of the given
// type, in publish order.
func (r *EventRecorder) StepIDs(eventType string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, e := range r.events {
		if e.EventType() != eventType {
			continue
		}
		if ref, ok := stepRef(e); ok {
			ids = append(ids, ref.Step.ID)
		}
	}
	return ids
}

func stepRef(e event.Event) (event.StepRef, bool) {
	switch ev := e.(type) {
	case event.StepStartedEvent:
		return ev.StepRef, true
	case event.StepSucceededEvent:
		return ev.StepRef, true
	case event.StepFailedEvent:
		return ev.StepRef, true
	case event.StepSkippedEvent:
		return ev.StepRef, true
	case event.StepLogEvent:
		return ev.StepRef, true
	case event.StepStatusEvent:
		return ev.StepRef, true
	case event.StepIndefiniteEvent:
		return ev.StepRef, true
	}
	return event.StepRef{}, false
}

// RunLog records the order in which steps run.
type RunLog struct {
	mu  sync.Mutex
	ids []string
}

// Step creates a step that appends its id to the log and returns err.
func (l *RunLog) Step(id string, err error, opts ...step.Option) *step.Step {
	return step.New(id, func(context.Context, step.Runner) error {
		l.Record(id)
		return err
	}, opts...)
}

// Record appends id to the log.
func (l *RunLog) Record(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

// IDs returns the recorded ids in run order.
func (l *RunLog) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.ids)
}

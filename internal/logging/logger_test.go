package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewLogger(t *testing.T) {
	t.Run("creates debug.log in the log directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".kiln", "logs")

		logger, err := NewLogger(dir, LevelDebug, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Info("hello")
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(dir, FileName))
		if err != nil {
			t.Fatalf("log file not written: %v", err)
		}
		if !strings.Contains(string(data), `"msg":"hello"`) {
			t.Errorf("log = %s", data)
		}
	})

	t.Run("writes to stderr when the directory is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		if logger.closer != nil {
			t.Error("stderr logger owns a closer")
		}
		if err := logger.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{LevelDebug, []string{"d", "i", "w", "e"}},
		{LevelInfo, []string{"i", "w", "e"}},
		{"warning", []string{"w", "e"}},
		{LevelError, []string{"e"}},
		{"bogus", []string{"i", "w", "e"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLoggerWithWriter(&buf, tt.level)
			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			var got []string
			for _, m := range decodeLines(t, buf.Bytes()) {
				got = append(got, m["msg"].(string))
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("messages = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter(&buf, LevelDebug)

	run := base.WithRun("run-1").WithTask("build")
	run.WithGroup("main").WithStep("Web.Bundle").Info("step succeeded", "duration_ms", 12)
	run.Info("run finished")

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}

	first := lines[0]
	for key, want := range map[string]any{
		KeyRun: "run-1", KeyTask: "build", KeyGroup: "main", KeyStep: "Web.Bundle", "duration_ms": float64(12),
	} {
		if first[key] != want {
			t.Errorf("%s = %v, want %v", key, first[key], want)
		}
	}

	if _, ok := lines[1][KeyStep]; ok {
		t.Error("parent logger picked up the child's step attribute")
	}
	if lines[1][KeyRun] != "run-1" {
		t.Errorf("run_id = %v", lines[1][KeyRun])
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf, LevelInfo)

	if l.With() != l {
		t.Error("With() without args should return the same logger")
	}

	l.With("attempt", 2, 99, "ignored", "dangling").Info("retry")
	m := decodeLines(t, buf.Bytes())[0]
	if m["attempt"] != float64(2) {
		t.Errorf("attempt = %v", m["attempt"])
	}
	if _, ok := m["dangling"]; ok {
		t.Error("dangling key was logged")
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Error("nothing")
	if err := l.WithStep("x").Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug": LevelDebug, "INFO": LevelInfo, " warn ": LevelWarn,
		"Warning": LevelWarn, "error": LevelError, "": LevelInfo, "trace": LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() = %v", ValidLevels())
	}
}

func TestClose_SharedByChildren(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}
	child := logger.WithRun("r")

	if err := child.Close(); err != nil {
		t.Fatalf("child Close() = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(dir, LevelInfo, DefaultRotationConfig())
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			child := logger.With("worker", i)
			for j := 0; j < 50; j++ {
				child.Info("tick", "j", j)
			}
		}(i)
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if got := len(decodeLines(t, data)); got != 500 {
		t.Errorf("got %d lines, want 500", got)
	}
}

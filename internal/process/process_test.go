package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRingBuffer(t *testing.T) {
	tests := []struct {
		name   string
		size   int
		writes []string
		want   string
	}{
		{"empty", 5, nil, ""},
		{"partial", 5, []string{"abc"}, "abc"},
		{"exactly full", 5, []string{"abc", "de"}, "abcde"},
		{"wraps", 5, []string{"abc", "de", "fg"}, "cdefg"},
		{"single oversized write", 3, []string{"abcdefgh"}, "fgh"},
		{"zero size clamps to one", 0, []string{"xyz"}, "z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rb := NewRingBuffer(tt.size)
			for _, w := range tt.writes {
				n, err := rb.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if got := string(rb.Bytes()); got != tt.want {
				t.Errorf("Bytes() = %q, want %q", got, tt.want)
			}
			if rb.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", rb.Len(), len(tt.want))
			}
		})
	}
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer(4)
	_, _ = rb.Write([]byte("abcdef"))
	rb.Reset()
	if rb.Len() != 0 {
		t.Errorf("Len() after Reset = %d", rb.Len())
	}
	_, _ = rb.Write([]byte("xy"))
	if got := string(rb.Bytes()); got != "xy" {
		t.Errorf("Bytes() = %q, want %q", got, "xy")
	}
}

func TestRun_Success(t *testing.T) {
	skipIfNoShell(t)

	var streamed bytes.Buffer
	res, err := Run(context.Background(), "sh", []string{"-c", "echo out; echo err 1>&2"},
		WithStdout(&streamed))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Errorf("Stdout = %q", res.Stdout)
	}
	if strings.TrimSpace(string(res.Stderr)) != "err" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
	if strings.TrimSpace(streamed.String()) != "out" {
		t.Errorf("streamed stdout = %q", streamed.String())
	}
}

func TestRun_DirAndEnv(t *testing.T) {
	skipIfNoShell(t)

	dir := t.TempDir()
	res, err := Run(context.Background(), "sh", []string{"-c", "pwd; echo $KILN_TEST_VALUE"},
		WithDir(dir), WithEnv("KILN_TEST_VALUE=hello"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := string(res.Stdout)
	if !strings.Contains(out, "hello") {
		t.Errorf("Stdout = %q, want env value", out)
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	skipIfNoShell(t)

	res, err := Run(context.Background(), "sh", []string{"-c", "echo failing 1>&2; exit 3"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("ExitCode = %d/%d, want 3", exitErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(string(exitErr.Stderr), "failing") {
		t.Errorf("Stderr = %q", exitErr.Stderr)
	}
	if !strings.Contains(exitErr.Error(), "exited with code 3") {
		t.Errorf("Error() = %q", exitErr.Error())
	}
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := Run(context.Background(), "kiln-definitely-not-a-binary", nil)
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("error = %v, want *ExitError", err)
	}
	if exitErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", exitErr.ExitCode)
	}
	if !errors.Is(err, exec.ErrNotFound) {
		t.Errorf("errors.Is(err, exec.ErrNotFound) = false for %v", err)
	}
}

func TestRun_ContextCancel(t *testing.T) {
	skipIfNoShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, "sh", []string{"-c", "sleep 5"})
	if err == nil {
		t.Fatal("Run() error = nil, want cancellation error")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Run() did not stop when the context was canceled")
	}
}

func TestRun_ContextCancelStopsDescendants(t *testing.T) {
	skipIfNoShell(t)

	tests := []struct {
		name   string
		script string
	}{
		{"chained command", "sleep 3 && echo ready"},
		{"background child", "sleep 3 & wait; echo ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			var out bytes.Buffer
			start := time.Now()
			_, err := Run(ctx, "sh", []string{"-c", tt.script}, WithStdout(&out))
			elapsed := time.Since(start)

			if err == nil {
				t.Fatal("Run() error = nil, want cancellation error")
			}
			if elapsed > 2*time.Second {
				t.Errorf("Run() returned after %v, want the process group stopped promptly", elapsed)
			}
			if strings.Contains(out.String(), "ready") {
				t.Errorf("command kept running after cancel: %q", out.String())
			}
		})
	}
}

func TestRun_WaitDelayBoundsIgnoredTerm(t *testing.T) {
	skipIfNoShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Run(ctx, "sh", []string{"-c", `trap "" TERM; sleep 3 & wait`},
		WithWaitDelay(200*time.Millisecond))
	if err == nil {
		t.Fatal("Run() error = nil, want cancellation error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Run() returned after %v, want the wait delay to bound it", elapsed)
	}
}

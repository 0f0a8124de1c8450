// Package process runs the subprocesses steps spawn through Runner.Exec.
//
// Output is captured into bounded tail buffers so a failing command can be
// reported with the end of its stdout and stderr, and it can additionally be
// streamed to a caller-supplied writer. Commands may run under a
// pseudo-terminal (WithPTY) for tools that only colorize or animate when
// attached to a TTY; stdout and stderr are merged in that mode.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// DefaultTailSize is the number of trailing output bytes kept per stream.
const DefaultTailSize = 64 * 1024

// DefaultWaitDelay is how long a canceled command's process group gets to
// exit after SIGTERM before it is killed and its output abandoned.
const DefaultWaitDelay = 2 * time.Second

// Option configures a command.
type Option func(*options)

type options struct {
	dir      string
	env      []string
	stdin    io.Reader
	stdout   io.Writer
	stderr   io.Writer
	pty       bool
	tailSize  int
	waitDelay time.Duration
}

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) Option {
	return func(o *options) { o.env = append(o.env, env...) }
}

// WithStdin connects r to the command's standard input.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// WithStdout streams stdout to w in addition to capturing its tail.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr streams stderr to w in addition to capturing its tail.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithPTY runs the command attached to a pseudo-terminal.
func WithPTY() Option {
	return func(o *options) { o.pty = true }
}

// WithTailSize overrides DefaultTailSize.
func WithTailSize(n int) Option {
	return func(o *options) { o.tailSize = n }
}

// WithWaitDelay overrides DefaultWaitDelay. Values <= 0 keep the default.
func WithWaitDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitDelay = d
		}
	}
}

// Result describes a finished command.
type Result struct {
	Name     string
	Args     []string
	ExitCode int
	Duration time.Duration
	Stdout   []byte
	Stderr   []byte
}

// ExitError is returned when a command could not start or exited non-zero.
// It carries the captured output tails for error reporting.
type ExitError struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	cause    error
}

// Error returns the formatted error message.
func (e *ExitError) Error() string {
	cmd := strings.TrimSpace(e.Name + " " + strings.Join(e.Args, " "))
	if e.ExitCode >= 0 {
		return fmt.Sprintf("command %q exited with code %d", cmd, e.ExitCode)
	}
	return fmt.Sprintf("command %q failed: %v", cmd, e.cause)
}

// Unwrap returns the underlying exec error.
func (e *ExitError) Unwrap() error {
	return e.cause
}

// Run executes name with args and waits for it to exit. Canceling ctx sends
// SIGTERM to the command's whole process group; whatever is still running
// after the wait delay is killed. A non-zero exit yields an *ExitError
// alongside the Result.
func Run(ctx context.Context, name string, args []string, opts ...Option) (*Result, error) {
	o := options{tailSize: DefaultTailSize, waitDelay: DefaultWaitDelay}
	for _, opt := range opts {
		opt(&o)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = o.dir
	if len(o.env) > 0 {
		cmd.Env = append(os.Environ(), o.env...)
	}
	configureCancel(cmd, o)

	stdoutTail := NewRingBuffer(o.tailSize)
	stderrTail := NewRingBuffer(o.tailSize)

	start := time.Now()
	var runErr error
	if o.pty {
		runErr = runPTY(cmd, o, stdoutTail)
	} else {
		cmd.Stdin = o.stdin
		cmd.Stdout = tee(stdoutTail, o.stdout)
		cmd.Stderr = tee(stderrTail, o.stderr)
		runErr = cmd.Run()
	}
	if ctx.Err() != nil {
		killGroup(cmd)
	}

	res := &Result{
		Name:     name,
		Args:     args,
		ExitCode: exitCode(cmd, runErr),
		Duration: time.Since(start),
		Stdout:   stdoutTail.Bytes(),
		Stderr:   stderrTail.Bytes(),
	}
	if runErr != nil {
		return res, &ExitError{
			Name:     name,
			Args:     args,
			ExitCode: res.ExitCode,
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			cause:    runErr,
		}
	}
	return res, nil
}

// runPTY starts cmd under a pseudo-terminal and copies its merged output.
func runPTY(cmd *exec.Cmd, o options, tail *RingBuffer) error {
	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	if o.stdin != nil {
		go func() { _, _ = io.Copy(f, o.stdin) }()
	}

	// Reading the master side fails with EIO once every holder of the
	// terminal has exited; that is the normal end of stream on Linux.
	copied := make(chan error, 1)
	go func() {
		_, err := io.Copy(tee(tail, o.stdout), f)
		copied <- err
	}()

	waitErr := cmd.Wait()
	var copyErr error
	select {
	case copyErr = <-copied:
	case <-time.After(o.waitDelay):
		// A descendant kept the terminal open after the command exited.
		killGroup(cmd)
		_ = f.Close()
		copyErr = <-copied
	}
	if waitErr != nil {
		return waitErr
	}
	if copyErr != nil && !errors.Is(copyErr, syscall.EIO) && !errors.Is(copyErr, os.ErrClosed) {
		return copyErr
	}
	return nil
}

func tee(tail *RingBuffer, w io.Writer) io.Writer {
	if w == nil {
		return tail
	}
	return io.MultiWriter(tail, w)
}

// exitCode returns the process exit code, or -1 if it never ran.
func exitCode(cmd *exec.Cmd, err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}

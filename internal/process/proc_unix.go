//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"github.com/mattn/go-isatty"
)

// configureCancel puts the command in its own process group and makes
// cancellation signal the whole group, so shell children and their
// descendants stop with it. Under a pty the session created by pty.Start
// already makes the child a group leader. A command reading an inherited
// terminal stays in kiln's group, where a background group would be
// stopped by SIGTTIN.
func configureCancel(cmd *exec.Cmd, o options) {
	group := o.pty || !readsTerminal(o.stdin)
	if group && !o.pty {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	cmd.Cancel = func() error {
		var err error
		if group {
			err = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		} else {
			err = cmd.Process.Signal(syscall.SIGTERM)
		}
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = o.waitDelay
}

func readsTerminal(r any) bool {
	f, ok := r.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// killGroup force-kills whatever is left of the command's own process
// group.
func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil || cmd.SysProcAttr == nil {
		return
	}
	if cmd.SysProcAttr.Setpgid || cmd.SysProcAttr.Setsid {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

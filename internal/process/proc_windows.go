//go:build windows

package process

import "os/exec"

func configureCancel(cmd *exec.Cmd, o options) {
	cmd.WaitDelay = o.waitDelay
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

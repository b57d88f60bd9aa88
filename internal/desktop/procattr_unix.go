//go:build unix

package desktop

import (
	"os/exec"
	"syscall"
)

// setProcGroup runs the command in its own process group so the whole
// tree can be killed together.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup kills every process in the group led by pid.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

//go:build !windows

package bundler

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr places the command in a new process group so the whole
// Metro worker tree can be killed together.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup sends SIGTERM to the entire process group.
func killProcessGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGTERM)
}

// forceKillProcessGroup sends SIGKILL to the entire process group.
func forceKillProcessGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGKILL)
}

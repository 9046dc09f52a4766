//go:build !windows

package tunnel

import "syscall"

// killByPID sends SIGKILL to a single process.
func killByPID(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

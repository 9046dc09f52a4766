//go:build !windows

package session

import "syscall"

// killByPID sends SIGKILL to a single process.
func killByPID(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}

// processAlive reports whether a process with the PID exists.
func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

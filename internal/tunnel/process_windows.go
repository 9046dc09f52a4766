//go:build windows

package tunnel

import "os"

// killByPID kills a single process by PID.
func killByPID(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

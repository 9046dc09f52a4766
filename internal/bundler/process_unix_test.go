//go:build !windows

package bundler

import (
	"os/exec"
	"testing"
	"time"
)

func TestTerminateProcessGroup(t *testing.T) {
	cmd := exec.Command("sleep", "60")
	setSysProcAttr(cmd)
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start sleep: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	terminateProcessGroup(cmd.Process.Pid, 50*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process survived group termination")
	}
}

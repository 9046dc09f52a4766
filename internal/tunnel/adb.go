package tunnel

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/charmbracelet/log"
)

// AdbReverser forwards local ports onto a USB-attached Android device.
//
// Everything here is best-effort: a missing adb binary or no connected
// device must never fail a tunnel start.
type AdbReverser struct {
	// AdbPath overrides the adb executable.
	AdbPath string
}

// NewAdbReverser creates an adb reverse helper.
//
// Returns:
//   - *AdbReverser: A new helper instance
func NewAdbReverser() *AdbReverser {
	return &AdbReverser{AdbPath: "adb"}
}

// Reverse maps each port on the device back to the host.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ports: Local ports to expose on the device
//
// Returns:
//   - bool: True if every reverse succeeded
func (a *AdbReverser) Reverse(ctx context.Context, ports ...int) bool {
	ok := true
	for _, port := range ports {
		spec := fmt.Sprintf("tcp:%d", port)
		cmd := exec.CommandContext(ctx, a.AdbPath, "reverse", spec, spec)
		if err := cmd.Run(); err != nil {
			log.Debug("adb reverse failed", "port", port, "error", err)
			ok = false
		}
	}
	if ok {
		log.Info("successfully ran `adb reverse`; your device should load from this machine")
	}
	return ok
}

// Stop removes the reverse mappings for each port.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ports: Local ports to unmap
func (a *AdbReverser) Stop(ctx context.Context, ports ...int) {
	for _, port := range ports {
		spec := fmt.Sprintf("tcp:%d", port)
		cmd := exec.CommandContext(ctx, a.AdbPath, "reverse", "--remove", spec)
		if err := cmd.Run(); err != nil {
			log.Debug("adb reverse --remove failed", "port", port, "error", err)
		}
	}
}

// Package bundler manages the JavaScript bundler backing a development
// session.
//
// Two adapters exist. The dev-server adapter hosts the session's HTTP
// surface in-process and proxies bundle requests to a Metro child on an
// internal port. The legacy adapter drives the React Native CLI packager as
// a detached child process and leaves HTTP serving to a separate manifest
// server. Mode selection is by SDK capability.
package bundler

import (
	"strconv"
	"strings"
	"time"

	"github.com/orbitlabs/orbit-cli/internal/project"
)

// devServerMinSDK is the first SDK major version with dev-server support.
const devServerMinSDK = 40

// stopGracePeriod is how long a bundler process group gets to exit on its
// own before the group is killed outright.
const stopGracePeriod = 500 * time.Millisecond

// terminateProcessGroup asks a process group to exit, waits out the grace
// period, then kills whatever is left. Killing an already-dead group is a
// no-op, so the force pass always runs.
func terminateProcessGroup(pid int, grace time.Duration) {
	killProcessGroup(pid)
	time.Sleep(grace)
	forceKillProcessGroup(pid)
}

// Options configures a bundler start in either mode.
type Options struct {
	// MetroPort pins the bundler port. Zero selects automatically.
	MetroPort int

	// DevClient starts the bundler for a native development client build
	// rather than the sandbox app.
	DevClient bool

	// Reset clears the bundler cache on start.
	Reset bool

	// MaxWorkers caps Metro's worker pool. Zero leaves the default.
	MaxWorkers int
}

// SupportsDevServer reports whether an SDK version can use the in-process
// dev-server adapter.
//
// Parameters:
//   - sdkVersion: The project's SDK version string, e.g. "40.0.0"
//
// Returns:
//   - bool: True for SDK 40 and later, and for unversioned projects
func SupportsDevServer(sdkVersion string) bool {
	if sdkVersion == project.UnversionedSDK {
		return true
	}
	major, _, _ := strings.Cut(sdkVersion, ".")
	n, err := strconv.Atoi(major)
	if err != nil {
		return false
	}
	return n >= devServerMinSDK
}

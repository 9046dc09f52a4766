package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/tunnel"
)

// Health describes a project's session as seen from outside the owning
// process.
type Health string

const (
	// HealthRunning means tracked state exists and the session responds.
	HealthRunning Health = "running"

	// HealthIll means tracked state exists but the session is unresponsive,
	// usually after a crash left stale state behind.
	HealthIll Health = "ill"

	// HealthStopped means no session state is tracked.
	HealthStopped Health = "stopped"
)

// shutdownRequestTimeout bounds the polite shutdown request to a session
// owned by another process.
const shutdownRequestTimeout = 2 * time.Second

// Diagnose inspects a project's tracked state and probes the processes it
// names.
//
// Parameters:
//   - store: The settings store
//   - projectRoot: The project root
//
// Returns:
//   - Health: The observed session health
//   - error: State read errors
func Diagnose(store *settings.Store, projectRoot string) (Health, error) {
	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return HealthStopped, err
	}

	if info.ServerPort == nil && info.PackagerPort == nil && info.WebpackServerPort == nil {
		return HealthStopped, nil
	}

	if info.PackagerPID != nil && !processAlive(*info.PackagerPID) {
		return HealthIll, nil
	}
	if info.ServerPort != nil && !ports.IsPortOpen("127.0.0.1", *info.ServerPort) {
		return HealthIll, nil
	}
	if info.WebpackServerPort != nil && !ports.IsPortOpen("127.0.0.1", *info.WebpackServerPort) {
		return HealthIll, nil
	}
	return HealthRunning, nil
}

// StopDetached stops a session started by another process.
//
// The manifest server gets a polite shutdown request first, so the owning
// process can tear down cleanly. Any processes still tracked afterwards are
// killed by PID, tunnels are stopped, and the transient state is cleared.
//
// Parameters:
//   - ctx: Context for cancellation
//   - store: The settings store
//   - projectRoot: The project root
//
// Returns:
//   - bool: Whether any tracked session state existed
//   - error: State read or write errors
func StopDetached(ctx context.Context, store *settings.Store, projectRoot string) (bool, error) {
	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return false, err
	}
	if info.ServerPort == nil && info.PackagerPort == nil && info.WebpackServerPort == nil {
		return false, nil
	}

	if info.ServerPort != nil {
		requestShutdown(ctx, *info.ServerPort)
	}

	for _, pid := range []*int{info.PackagerPID, info.NgrokPID} {
		if pid == nil || !processAlive(*pid) {
			continue
		}
		if err := killByPID(*pid); err != nil {
			log.Debug("failed to kill tracked process", "pid", *pid, "error", err)
		}
	}

	manager := tunnel.NewManager(store, tunnel.NewResolver())
	if err := manager.StopTunnels(ctx, projectRoot); err != nil {
		log.Debug("failed to stop tunnels", "error", err)
	}

	if err := store.ClearPackagerInfo(projectRoot); err != nil {
		return true, err
	}
	return true, nil
}

// requestShutdown posts to the running session's shutdown endpoint.
func requestShutdown(ctx context.Context, port int) {
	url := fmt.Sprintf("http://127.0.0.1:%d/shutdown", port)
	reqCtx, cancel := context.WithTimeout(ctx, shutdownRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, nil)
	if err != nil {
		return
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Debug("shutdown request failed", "port", port, "error", err)
		return
	}
	resp.Body.Close()
}

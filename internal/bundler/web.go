package bundler

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

// webDefaultPortStart is where the web bundler port scan begins.
const webDefaultPortStart = 19006

// WebRunner drives the webpack dev server for web-only sessions.
type WebRunner struct {
	projectRoot string
	store       *settings.Store
	opts        Options

	pollInterval time.Duration
	maxPolls     int

	mu      sync.Mutex
	cmd     *exec.Cmd
	port    int
	running bool
}

// NewWebRunner creates a web bundler runner.
//
// Parameters:
//   - store: The settings store tracking web server state
//   - projectRoot: The project root
//   - opts: Bundler options
//
// Returns:
//   - *WebRunner: A new runner instance
func NewWebRunner(store *settings.Store, projectRoot string, opts Options) *WebRunner {
	return &WebRunner{
		projectRoot:  projectRoot,
		store:        store,
		opts:         opts,
		pollInterval: statusPollInterval,
		maxPolls:     statusPollMax,
	}
}

// Start launches webpack and blocks until its port accepts connections.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Spawn or readiness-timeout errors
func (w *WebRunner) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}

	port := w.opts.MetroPort
	if port == 0 {
		var err error
		port, err = ports.GetFreePort(webDefaultPortStart)
		if err != nil {
			w.mu.Unlock()
			return err
		}
	}

	bin := filepath.Join(w.projectRoot, "node_modules", ".bin", "webpack-dev-server")
	if _, err := os.Stat(bin); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("webpack-dev-server is not installed in this project; run `npm install` first")
	}

	cmd := exec.CommandContext(ctx, bin, "--port", strconv.Itoa(port), "--host", "0.0.0.0")
	cmd.Dir = w.projectRoot
	cmd.Env = append(os.Environ(), "CI=1")
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to start web bundler: %w", err)
	}

	w.cmd = cmd
	w.port = port
	w.mu.Unlock()

	_, err := w.store.UpdatePackagerInfo(w.projectRoot, func(info *settings.PackagerInfo) {
		info.WebpackServerPort = &port
	})
	if err != nil {
		w.Stop()
		return err
	}

	exitChan := make(chan error, 1)
	go func() { exitChan <- cmd.Wait() }()

	for i := 0; i < w.maxPolls; i++ {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case err := <-exitChan:
			w.Stop()
			return fmt.Errorf("web bundler exited before becoming ready: %v", err)
		case <-time.After(w.pollInterval):
		}
		if ports.IsPortOpen("127.0.0.1", port) {
			w.mu.Lock()
			w.running = true
			w.mu.Unlock()
			log.Debug("web bundler started", "port", port)
			return nil
		}
	}

	w.Stop()
	return fmt.Errorf("timed out waiting for the web bundler to start")
}

// Port returns the web bundler's port, or 0 before Start.
//
// Returns:
//   - int: The port number
func (w *WebRunner) Port() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.port
}

// Stop terminates the web bundler and clears its tracked state. Idempotent.
//
// Returns:
//   - error: Persistence errors only
func (w *WebRunner) Stop() error {
	w.mu.Lock()
	cmd := w.cmd
	w.cmd = nil
	w.running = false
	w.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		terminateProcessGroup(cmd.Process.Pid, stopGracePeriod)
	}

	_, err := w.store.UpdatePackagerInfo(w.projectRoot, func(info *settings.PackagerInfo) {
		info.WebpackServerPort = nil
	})
	return err
}

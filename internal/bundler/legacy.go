package bundler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

const (
	// statusRunning is the body fragment the packager status endpoint
	// returns once it accepts bundle requests.
	statusRunning = "packager-status:running"

	// statusPollInterval and statusPollMax bound the readiness poll loop.
	statusPollInterval = 100 * time.Millisecond
	statusPollMax      = 300
)

// suppressedOutput lists known-benign bundler output fragments that would
// otherwise alarm users. Duplicate-module warnings come from watchman's
// vendored haste map; the node warnings fire on every Windows install.
var suppressedOutput = []string{
	"Duplicate module name: bser",
	"Duplicate module name: fb-watchman",
	"ExperimentalWarning:",
	"DeprecationWarning: Buffer()",
	"UnhandledPromiseRejectionWarning: Error: EMFILE",
}

// Runner drives the React Native CLI packager as a detached child process.
//
// The child is placed in its own process group so Metro's workers die with
// it. Start blocks until the packager's status endpoint reports running or
// the child exits.
type Runner struct {
	projectRoot string
	store       *settings.Store
	opts        Options

	// pollInterval, maxPolls, and httpClient are overridable for tests.
	pollInterval time.Duration
	maxPolls     int
	httpClient   *http.Client

	mu      sync.Mutex
	cmd     *exec.Cmd
	port    int
	running bool
}

// NewRunner creates a legacy packager runner.
//
// Parameters:
//   - store: The settings store tracking packager state
//   - projectRoot: The project root
//   - opts: Bundler options
//
// Returns:
//   - *Runner: A new runner instance
func NewRunner(store *settings.Store, projectRoot string, opts Options) *Runner {
	return &Runner{
		projectRoot:  projectRoot,
		store:        store,
		opts:         opts,
		pollInterval: statusPollInterval,
		maxPolls:     statusPollMax,
		httpClient:   &http.Client{Timeout: 2 * time.Second},
	}
}

// Start launches the packager and blocks until it reports running.
//
// The child's port and PID are persisted to PackagerInfo as soon as the
// process starts, before readiness, so a crashed CLI can still find and
// kill it later.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Spawn, readiness-timeout, or child-exit errors
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}

	port := r.opts.MetroPort
	if port == 0 {
		var err error
		port, err = ports.GetFreePort(19001)
		if err != nil {
			r.mu.Unlock()
			return err
		}
	}

	config, err := project.LoadAppConfig(r.projectRoot)
	if err != nil {
		r.mu.Unlock()
		return err
	}

	cliPath := filepath.Join(r.projectRoot, "node_modules", "react-native", "local-cli", "cli.js")
	if _, err := os.Stat(cliPath); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("react-native is not installed in this project; run `npm install` first")
	}

	cmd := exec.CommandContext(ctx, "node", append([]string{cliPath}, r.buildArgs(port, config)...)...)
	cmd.Dir = r.projectRoot
	cmd.Env = append(os.Environ(), "CI=1", "ORBIT_NO_TELEMETRY=1")
	setSysProcAttr(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to capture stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to capture stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("failed to start packager: %w", err)
	}

	r.cmd = cmd
	r.port = port
	r.mu.Unlock()

	pid := cmd.Process.Pid
	_, err = r.store.UpdatePackagerInfo(r.projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = &port
		info.PackagerPID = &pid
	})
	if err != nil {
		r.Stop()
		return err
	}

	var scanners sync.WaitGroup
	scanners.Add(2)
	go r.forwardOutput(&scanners, stdout, false)
	go r.forwardOutput(&scanners, stderr, true)

	exitChan := make(chan error, 1)
	go func() {
		scanners.Wait()
		exitChan <- cmd.Wait()
	}()

	if err := r.waitUntilReady(ctx, port, exitChan); err != nil {
		r.Stop()
		return err
	}

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	return nil
}

// buildArgs assembles the packager CLI arguments.
func (r *Runner) buildArgs(port int, config *project.AppConfig) []string {
	args := []string{"start", "--port", strconv.Itoa(port)}

	reporter := filepath.Join(r.projectRoot, "node_modules", "@orbit", "metro-config", "build", "reporter.js")
	if _, err := os.Stat(reporter); err == nil {
		args = append(args, "--customLogReporterPath", reporter)
	}

	assetPlugin := filepath.Join(r.projectRoot, "node_modules", "@orbit", "tools", "hashAssetFiles.js")
	if _, err := os.Stat(assetPlugin); err == nil {
		args = append(args, "--assetPlugins", assetPlugin)
	}

	// Older SDKs ship a Metro without TypeScript defaults.
	if !SupportsDevServer(config.SDKVersion) {
		args = append(args, "--sourceExts", "expo.ts,expo.tsx,expo.js,expo.jsx,ts,tsx,js,jsx,json,wasm")
	}

	if r.opts.Reset {
		args = append(args, "--reset-cache")
	}
	if r.opts.MaxWorkers > 0 {
		args = append(args, "--max-workers", strconv.Itoa(r.opts.MaxWorkers))
	}
	return args
}

// forwardOutput relays one output stream line-by-line through the rewrite
// filter into the log.
func (r *Runner) forwardOutput(wg *sync.WaitGroup, stream io.Reader, isStderr bool) {
	defer wg.Done()
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := rewriteOutputLine(scanner.Text())
		if !ok {
			continue
		}
		if isStderr {
			log.Error(line)
		} else {
			log.Info(line)
		}
	}
}

// rewriteOutputLine filters one packager output line.
//
// Returns:
//   - string: The line to log
//   - bool: False when the line should be suppressed entirely
func rewriteOutputLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}
	for _, pattern := range suppressedOutput {
		if strings.Contains(trimmed, pattern) {
			return "", false
		}
	}
	return trimmed, true
}

// waitUntilReady polls the packager status endpoint, racing the child exit.
func (r *Runner) waitUntilReady(ctx context.Context, port int, exitChan <-chan error) error {
	statusURL := fmt.Sprintf("http://127.0.0.1:%d/status", port)

	for i := 0; i < r.maxPolls; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-exitChan:
			if err != nil {
				return fmt.Errorf("packager exited before becoming ready: %w", err)
			}
			return fmt.Errorf("packager exited before becoming ready")
		case <-time.After(r.pollInterval):
		}

		if r.checkStatus(ctx, statusURL) {
			return nil
		}
	}
	return fmt.Errorf("timed out waiting for the packager to start")
}

// checkStatus probes the status endpoint once.
func (r *Runner) checkStatus(ctx context.Context, statusURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return false
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	return strings.Contains(string(body), statusRunning)
}

// Stop terminates the packager process group and clears its tracked state.
//
// Idempotent. The group gets a grace period to exit cleanly, then a group
// kill; Metro worker processes only die reliably with a group kill.
//
// Returns:
//   - error: Persistence errors only
func (r *Runner) Stop() error {
	r.mu.Lock()
	cmd := r.cmd
	r.cmd = nil
	r.running = false
	r.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		terminateProcessGroup(cmd.Process.Pid, stopGracePeriod)
	}

	_, err := r.store.UpdatePackagerInfo(r.projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = nil
		info.PackagerPID = nil
	})
	return err
}

// Port returns the packager's port, or 0 before Start.
//
// Returns:
//   - int: The port number
func (r *Runner) Port() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.port
}

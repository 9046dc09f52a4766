package tunnel

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// urlRegex matches the public URL the tunnel client prints once connected.
var urlRegex = regexp.MustCompile(`https://[a-z0-9.\-]+\.orbit\.host`)

// errCodeRegex matches provider error lines, e.g. "err code=103 msg=...".
var errCodeRegex = regexp.MustCompile(`code=(\d+)\s+msg=(.*)`)

// statusRegex matches status-change lines, e.g. "status changed to online".
var statusRegex = regexp.MustCompile(`status changed to (\w+)`)

// connectTimeout bounds a single tunnel process's time to print its URL.
const connectTimeout = 30 * time.Second

// processClient drives the @orbit/ngrok client as a child process, one
// process per open tunnel, all sharing a single status handler.
type processClient struct {
	pkgDir string

	mu       sync.Mutex
	procs    []*exec.Cmd
	handler  StatusHandler
	lastPID  int
}

// newProcessClient creates a client for a resolved package directory.
func newProcessClient(pkgDir string) *processClient {
	return &processClient{pkgDir: pkgDir}
}

// Connect opens a tunnel by spawning the client binary and scanning its
// output for the public URL.
func (c *processClient) Connect(ctx context.Context, opts ConnectOptions) (string, error) {
	script := filepath.Join(c.pkgDir, "bin", "ngrok.js")
	cmd := exec.CommandContext(ctx, "node", script,
		"http",
		"--port", strconv.Itoa(opts.Port),
		"--hostname", opts.Hostname,
		"--log", "stdout",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to capture stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start tunnel client: %w", err)
	}

	c.mu.Lock()
	c.procs = append(c.procs, cmd)
	c.lastPID = cmd.Process.Pid
	c.mu.Unlock()

	urlChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(stdout)
		reported := false
		for scanner.Scan() {
			line := scanner.Text()

			if match := statusRegex.FindStringSubmatch(line); match != nil {
				c.emitStatus(match[1])
				continue
			}
			if match := errCodeRegex.FindStringSubmatch(line); match != nil && !reported {
				code, _ := strconv.Atoi(match[1])
				reported = true
				errChan <- &ClientError{Code: code, Message: strings.TrimSpace(match[2])}
				continue
			}
			if match := urlRegex.FindString(line); match != "" && !reported {
				reported = true
				urlChan <- match
			}
		}
		if !reported {
			errChan <- fmt.Errorf("tunnel client exited without providing a URL")
		}
	}()

	select {
	case url := <-urlChan:
		return url, nil
	case err := <-errChan:
		c.kill(cmd)
		return "", err
	case <-time.After(connectTimeout):
		c.kill(cmd)
		return "", fmt.Errorf("timeout waiting for tunnel URL (%s)", connectTimeout)
	case <-ctx.Done():
		c.kill(cmd)
		return "", ctx.Err()
	}
}

// KillAll tears down every tunnel process owned by this client.
func (c *processClient) KillAll() error {
	c.mu.Lock()
	procs := c.procs
	c.procs = nil
	c.mu.Unlock()

	for _, cmd := range procs {
		c.kill(cmd)
	}
	return nil
}

// PID returns the most recently spawned tunnel process's ID.
func (c *processClient) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPID
}

// OnStatusChange registers the status handler for all tunnels.
func (c *processClient) OnStatusChange(handler StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// emitStatus delivers a status event to the registered handler.
func (c *processClient) emitStatus(status string) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(status)
	}
}

// kill terminates one tunnel process, falling back from interrupt to kill.
func (c *processClient) kill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil {
		// Process may already be dead.
		log.Debug("tunnel process kill failed", "pid", cmd.Process.Pid, "error", err)
	}
	go cmd.Wait()
}

// Package session orchestrates the lifecycle of a development session: the
// bundler, the manifest HTTP surface, tunnels, and the backend heartbeat.
package session

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/api"
	"github.com/orbitlabs/orbit-cli/internal/bundler"
	"github.com/orbitlabs/orbit-cli/internal/manifest"
	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/project"
	"github.com/orbitlabs/orbit-cli/internal/server"
	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/tunnel"
)

// State is the controller's lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// stopTimeout bounds a clean Stop before falling back to force quit.
const stopTimeout = 2 * time.Second

// InvalidOptionsError indicates a session start with unusable options.
type InvalidOptionsError struct {
	Reason string
}

func (e *InvalidOptionsError) Error() string {
	return "invalid session options: " + e.Reason
}

// Options configures a session start.
type Options struct {
	// WebOnly runs just the web bundler.
	WebOnly bool

	// Offline skips all backend traffic: signing, heartbeat, tunnels.
	Offline bool

	// DevClient targets a native development client build.
	DevClient bool

	// MetroPort pins the bundler port.
	MetroPort int

	// Reset clears the bundler cache on start.
	Reset bool
}

// Controller owns one project's development session.
type Controller struct {
	projectRoot string
	store       *settings.Store
	apiClient   *api.Client
	version     string

	loader  *project.Loader
	service *manifest.Service
	tunnels *tunnel.Manager

	// stopFn and forceQuitFn are swappable for tests; timeout too.
	stopFn      func(ctx context.Context) error
	forceQuitFn func()
	timeout     time.Duration

	heartbeat *heartbeat

	mu        sync.Mutex
	state     State
	devServer *bundler.DevServerInstance
	runner    *bundler.Runner
	webRunner *bundler.WebRunner
	srv       *server.Server
	cancel    context.CancelFunc
}

// NewController creates a session controller.
//
// Parameters:
//   - store: The settings store
//   - apiClient: The backend client; nil for fully offline use
//   - projectRoot: The project root
//   - version: The CLI version reported in manifests
//
// Returns:
//   - *Controller: A new controller instance
func NewController(store *settings.Store, apiClient *api.Client, projectRoot, version string) *Controller {
	loader := project.NewLoader(projectRoot)
	builder := manifest.NewBuilder(store, loader, version)
	signer := manifest.NewSigner(apiClient)
	service := manifest.NewService(builder, signer)

	c := &Controller{
		projectRoot: projectRoot,
		store:       store,
		apiClient:   apiClient,
		version:     version,
		loader:      loader,
		service:     service,
		tunnels:     tunnel.NewManager(store, tunnel.NewResolver()),
		timeout:     stopTimeout,
		state:       StateStopped,
	}
	c.stopFn = c.stopComponents
	c.forceQuitFn = c.forceQuit
	c.heartbeat = newHeartbeat(c)
	return c
}

// State returns the controller's current lifecycle state.
//
// Returns:
//   - State: The current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Service returns the manifest service backing this session.
//
// Returns:
//   - *manifest.Service: The service
func (c *Controller) Service() *manifest.Service {
	return c.service
}

// Start brings the session up.
//
// The serving path depends on the project: web-only sessions run webpack,
// dev-server-capable SDKs host everything on one port, and older SDKs get a
// standalone manifest server next to a legacy packager child. Tunnel
// failures never fail the start; the session falls back to LAN serving.
//
// Parameters:
//   - ctx: Context spanning the session's lifetime
//   - opts: Start options
//
// Returns:
//   - error: Already-running, config, bundler, or server errors
func (c *Controller) Start(ctx context.Context, opts Options) error {
	if err := validateOptions(opts); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateStopped {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("session is already %s", state)
	}
	c.state = StateStarting
	c.mu.Unlock()

	if opts.Offline {
		c.service.Signer().SetOffline()
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.start(sessionCtx, opts); err != nil {
		c.setState(StateStopped)
		cancel()
		return err
	}

	c.setState(StateRunning)
	return nil
}

// validateOptions rejects option combinations no serving path can satisfy.
func validateOptions(opts Options) error {
	if opts.WebOnly && opts.DevClient {
		return &InvalidOptionsError{Reason: "a web-only session cannot target a native development client"}
	}
	if opts.MetroPort < 0 || opts.MetroPort > 65535 {
		return &InvalidOptionsError{Reason: fmt.Sprintf("port %d is out of range", opts.MetroPort)}
	}
	return nil
}

func (c *Controller) start(ctx context.Context, opts Options) error {
	config, err := c.loader.Get()
	if err != nil {
		return err
	}
	if err := c.loader.Watch(ctx); err != nil {
		log.Debug("app config watcher unavailable", "error", err)
	}

	bundlerOpts := bundler.Options{
		MetroPort: opts.MetroPort,
		DevClient: opts.DevClient,
		Reset:     opts.Reset,
	}

	switch {
	case opts.WebOnly:
		webRunner := bundler.NewWebRunner(c.store, c.projectRoot, bundlerOpts)
		if err := webRunner.Start(ctx); err != nil {
			return err
		}
		c.mu.Lock()
		c.webRunner = webRunner
		c.mu.Unlock()

	case bundler.SupportsDevServer(config.SDKVersion):
		if err := c.startDevServerPath(ctx, bundlerOpts); err != nil {
			return err
		}

	default:
		if err := c.startLegacyPath(ctx, bundlerOpts); err != nil {
			return err
		}
	}

	if !opts.WebOnly {
		c.maybeStartTunnels(ctx, config)
	}

	c.heartbeat.start(ctx, opts)
	return nil
}

// startDevServerPath hosts manifests and bundles on one port.
func (c *Controller) startDevServerPath(ctx context.Context, opts bundler.Options) error {
	srv := server.New(c.store, c.service, c.projectRoot)
	srv.OnShutdown(func() { c.Stop(context.Background()) })

	devServer := bundler.NewDevServer(c.store, c.projectRoot, opts)
	if err := devServer.Start(ctx); err != nil {
		return err
	}

	handler := srv.Handler()
	devServer.Mount("/manifest", handler)
	devServer.Mount("/index.exp", handler)
	devServer.Mount("/update-manifest-experimental", handler)
	devServer.Mount("/_orbit", handler)
	devServer.Mount("/logs", handler)
	devServer.Mount("/shutdown", handler)
	// The root manifest route goes in front so nothing shadows it, and
	// matches exactly so bundle requests still reach Metro.
	devServer.MountExactFront("/", handler)

	// App config edits push a reload to connected clients.
	c.loader.OnChange(func() { devServer.Socket().Broadcast("reload") })

	c.mu.Lock()
	c.devServer = devServer
	c.srv = srv
	c.mu.Unlock()
	return nil
}

// startLegacyPath runs a standalone manifest server and a packager child.
func (c *Controller) startLegacyPath(ctx context.Context, opts bundler.Options) error {
	srv := server.New(c.store, c.service, c.projectRoot)
	srv.OnShutdown(func() { c.Stop(context.Background()) })
	if err := srv.Start(ctx, 0); err != nil {
		return err
	}

	runner := bundler.NewRunner(c.store, c.projectRoot, opts)
	if err := runner.Start(ctx); err != nil {
		srv.Stop()
		return err
	}

	c.mu.Lock()
	c.srv = srv
	c.runner = runner
	c.mu.Unlock()
	return nil
}

// maybeStartTunnels opens tunnels when the hosting mode asks for them.
// Failures are logged and swallowed; the session serves over LAN instead.
func (c *Controller) maybeStartTunnels(ctx context.Context, config *project.AppConfig) {
	projectSettings, err := c.store.ReadSettings(c.projectRoot)
	if err != nil {
		log.Debug("failed to read settings before tunnel start", "error", err)
		return
	}
	if projectSettings.HostType != settings.HostTypeTunnel || c.service.Signer().Offline() {
		return
	}

	err = c.tunnels.StartTunnels(ctx, c.projectRoot, tunnel.StartOptions{
		Username: config.Owner,
		Slug:     config.Slug,
	})
	if err != nil {
		log.Warn("failed to start tunnels, the session is reachable over LAN only", "error", err)
		log.Warn("switch to LAN mode with `orbit start --host lan` to silence this warning")
	}
}

// SessionURL returns the URL clients use to reach the running session.
//
// Returns:
//   - string: An exp:// URL through the tunnel or the LAN
//   - error: State read errors, or an error when nothing is running
func (c *Controller) SessionURL() (string, error) {
	return SessionURL(c.store, c.projectRoot)
}

// SessionURL derives the reachable session URL from tracked state.
//
// Parameters:
//   - store: The settings store
//   - projectRoot: The project root
//
// Returns:
//   - string: An exp:// URL through the tunnel or the LAN
//   - error: State read errors, or an error when nothing is running
func SessionURL(store *settings.Store, projectRoot string) (string, error) {
	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return "", err
	}
	if info.ServerNgrokURL != nil {
		return "exp://" + stripScheme(*info.ServerNgrokURL), nil
	}
	if info.ServerPort != nil {
		return "exp://" + net.JoinHostPort(ports.LANAddress(), strconv.Itoa(*info.ServerPort)), nil
	}
	if info.WebpackServerPort != nil {
		return "http://" + net.JoinHostPort(ports.LANAddress(), strconv.Itoa(*info.WebpackServerPort)), nil
	}
	return "", fmt.Errorf("the project does not appear to be running")
}

// stripScheme removes the scheme from a URL string.
func stripScheme(raw string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if len(raw) > len(prefix) && raw[:len(prefix)] == prefix {
			return raw[len(prefix):]
		}
	}
	return raw
}

// Stop brings the session down, never taking longer than the stop timeout.
//
// A clean stop tears every component down in order. When that exceeds the
// timeout, the remaining processes are force killed by their tracked PIDs
// and all transient state is cleared.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Errors from a clean stop; force quit never fails
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateStopping || c.state == StateStopped {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	c.heartbeat.stop()

	done := make(chan error, 1)
	go func() { done <- c.stopFn(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(c.timeout):
		log.Warn("clean stop took too long, force quitting")
		c.forceQuitFn()
	}

	if cancel != nil {
		cancel()
	}
	c.loader.Close()
	c.setState(StateStopped)
	return err
}

// stopComponents tears down everything a start may have created.
func (c *Controller) stopComponents(ctx context.Context) error {
	c.mu.Lock()
	devServer := c.devServer
	runner := c.runner
	webRunner := c.webRunner
	srv := c.srv
	c.devServer = nil
	c.runner = nil
	c.webRunner = nil
	c.srv = nil
	c.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if webRunner != nil {
		record(webRunner.Stop())
	}
	if devServer != nil {
		record(devServer.Stop())
	}
	if srv != nil {
		record(srv.Stop())
	}
	if runner != nil {
		record(runner.Stop())
	}
	record(c.tunnels.StopTunnels(ctx, c.projectRoot))
	return firstErr
}

// forceQuit kills every tracked PID and clears transient state.
func (c *Controller) forceQuit() {
	info, err := c.store.ReadPackagerInfo(c.projectRoot)
	if err == nil {
		for _, pid := range []*int{info.PackagerPID, info.NgrokPID} {
			if pid == nil {
				continue
			}
			if err := killByPID(*pid); err != nil {
				log.Debug("force quit kill failed", "pid", *pid, "error", err)
			}
		}
	}
	if err := c.store.ClearPackagerInfo(c.projectRoot); err != nil {
		log.Debug("failed to clear packager info during force quit", "error", err)
	}
}

func (c *Controller) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

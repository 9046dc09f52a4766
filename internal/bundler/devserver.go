package bundler

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

// devClientPortEnv forces the classic dev-client port when set.
const devClientPortEnv = "ORBIT_DEV_CLIENT_PORT"

// DevServerInstance hosts the session's HTTP surface in-process.
//
// The instance owns the public port: manifest and control handlers are
// mounted on its middleware stack, the message socket lives at /message,
// and any unmatched request is proxied to a Metro child running on an
// internal port. Packager and server ports are therefore the same port.
type DevServerInstance struct {
	projectRoot string
	store       *settings.Store
	opts        Options

	stack  *Stack
	socket *MessageSocket

	// skipBundler leaves the Metro child unstarted. Unmatched requests
	// then 404.
	skipBundler bool

	mu       sync.Mutex
	port     int
	server   *http.Server
	listener net.Listener
	runner   *Runner
	running  bool
}

// NewDevServer creates a dev-server instance.
//
// Parameters:
//   - store: The settings store tracking packager state
//   - projectRoot: The project root
//   - opts: Bundler options
//
// Returns:
//   - *DevServerInstance: A new instance
func NewDevServer(store *settings.Store, projectRoot string, opts Options) *DevServerInstance {
	return &DevServerInstance{
		projectRoot: projectRoot,
		store:       store,
		opts:        opts,
		socket:      NewMessageSocket(),
	}
}

// choosePort selects the public port for the dev server.
//
// Precedence: an explicit option, then the fixed dev-client port when the
// environment requests it, then a free port scanned from 19000.
func (d *DevServerInstance) choosePort() (int, error) {
	if d.opts.MetroPort != 0 {
		return d.opts.MetroPort, nil
	}
	if os.Getenv(devClientPortEnv) != "" {
		return 8081, nil
	}
	return ports.GetFreePort(19000)
}

// Start binds the public port, starts the Metro child, and begins serving.
//
// Both PackagerInfo ports are persisted as the public port once serving.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - error: Port, spawn, or persistence errors
func (d *DevServerInstance) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	port, err := d.choosePort()
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind port %d: %w", port, err)
	}

	fallback := http.Handler(http.NotFoundHandler())
	var runner *Runner
	if !d.skipBundler {
		metroPort, err := ports.GetFreePort(port + 1)
		if err != nil {
			listener.Close()
			return err
		}
		runner = NewRunner(d.store, d.projectRoot, Options{
			MetroPort:  metroPort,
			DevClient:  d.opts.DevClient,
			Reset:      d.opts.Reset,
			MaxWorkers: d.opts.MaxWorkers,
		})
		if err := runner.Start(ctx); err != nil {
			listener.Close()
			return err
		}
		target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", metroPort)}
		fallback = httputil.NewSingleHostReverseProxy(target)
	}

	stack := NewStack(fallback)
	stack.Mount("/message", d.socket)

	server := &http.Server{Handler: stack}

	d.mu.Lock()
	d.port = port
	d.stack = stack
	d.server = server
	d.listener = listener
	d.runner = runner
	d.running = true
	d.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("dev server stopped unexpectedly", "error", err)
		}
	}()

	// Ports are recorded after serving begins so readers never see a port
	// nothing answers on.
	_, err = d.store.UpdatePackagerInfo(d.projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = &port
		info.ServerPort = &port
	})
	if err != nil {
		d.Stop()
		return err
	}

	log.Debug("dev server started", "port", port)
	return nil
}

// Mount appends a handler to the middleware stack.
//
// Parameters:
//   - prefix: The path prefix to match
//   - handler: The handler to serve matching requests
func (d *DevServerInstance) Mount(prefix string, handler http.Handler) {
	d.mu.Lock()
	stack := d.stack
	d.mu.Unlock()
	if stack != nil {
		stack.Mount(prefix, handler)
	}
}

// MountFront inserts a handler ahead of all existing mounts. The manifest
// handler must go through here or the proxy's static serving shadows it.
//
// Parameters:
//   - prefix: The path prefix to match
//   - handler: The handler to serve matching requests
func (d *DevServerInstance) MountFront(prefix string, handler http.Handler) {
	d.mu.Lock()
	stack := d.stack
	d.mu.Unlock()
	if stack != nil {
		stack.MountFront(prefix, handler)
	}
}

// MountExactFront inserts an exact-path handler ahead of all existing
// mounts.
//
// Parameters:
//   - path: The exact path to match
//   - handler: The handler to serve matching requests
func (d *DevServerInstance) MountExactFront(path string, handler http.Handler) {
	d.mu.Lock()
	stack := d.stack
	d.mu.Unlock()
	if stack != nil {
		stack.MountExactFront(path, handler)
	}
}

// Socket returns the message socket for broadcasting control events.
//
// Returns:
//   - *MessageSocket: The instance's socket
func (d *DevServerInstance) Socket() *MessageSocket {
	return d.socket
}

// Port returns the public port, or 0 before Start.
//
// Returns:
//   - int: The port number
func (d *DevServerInstance) Port() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port
}

// Stop shuts the server down and clears its tracked state. Idempotent.
//
// Returns:
//   - error: Persistence errors only
func (d *DevServerInstance) Stop() error {
	d.mu.Lock()
	server := d.server
	listener := d.listener
	runner := d.runner
	d.server = nil
	d.listener = nil
	d.runner = nil
	d.running = false
	d.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
		cancel()
	}
	if listener != nil {
		listener.Close()
	}
	d.socket.Close()
	if runner != nil {
		if err := runner.Stop(); err != nil {
			log.Debug("failed to stop packager", "error", err)
		}
	}

	_, err := d.store.UpdatePackagerInfo(d.projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = nil
		info.ServerPort = nil
	})
	return err
}

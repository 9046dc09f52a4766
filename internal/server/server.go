// Package server exposes the session's HTTP surface: manifest negotiation,
// the updates-protocol endpoint, device log ingestion, and the loading and
// deep-link helper pages.
//
// In dev-server mode the handler is mounted on the bundler's middleware
// stack; in legacy mode it runs as its own HTTP server next to the packager
// child.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/manifest"
	"github.com/orbitlabs/orbit-cli/internal/ports"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

// Server serves the manifest HTTP surface for one project.
type Server struct {
	projectRoot string
	store       *settings.Store
	service     *manifest.Service

	// onShutdown runs when a client posts /shutdown. Wired to the session
	// controller's stop path.
	onShutdown func()

	// onDeepLink runs with the redirect target whenever a client follows
	// the deep-link endpoint.
	onDeepLink func(target string)

	mu          sync.Mutex
	port        int
	httpServer  *http.Server
	listener    net.Listener
	running     bool
	seenDevices map[string]struct{}
}

// New creates a server.
//
// Parameters:
//   - store: The settings store
//   - service: The manifest service
//   - projectRoot: The project root
//
// Returns:
//   - *Server: A new server instance
func New(store *settings.Store, service *manifest.Service, projectRoot string) *Server {
	return &Server{
		projectRoot: projectRoot,
		store:       store,
		service:     service,
		seenDevices: make(map[string]struct{}),
	}
}

// HasDevices reports whether any client device has contacted this server.
//
// Returns:
//   - bool: True once at least one device posted logs
func (s *Server) HasDevices() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seenDevices) > 0
}

// OnShutdown registers the callback invoked by POST /shutdown.
//
// Parameters:
//   - fn: The callback
func (s *Server) OnShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onShutdown = fn
}

// OnDeepLink registers the callback invoked when GET /_orbit/link redirects
// a client into the app.
//
// Parameters:
//   - fn: The callback, receiving the redirect target URL
func (s *Server) OnDeepLink(fn func(target string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDeepLink = fn
}

// Handler returns the full route table as a single handler, for mounting on
// the dev-server middleware stack or serving standalone.
//
// Returns:
//   - http.Handler: The route handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/manifest", s.handleManifest)
	mux.HandleFunc("/index.exp", s.handleManifest)
	mux.HandleFunc("/update-manifest-experimental", s.handleUpdatesManifest)
	mux.HandleFunc("/_orbit/loading", s.handleLoading)
	mux.HandleFunc("/_orbit/link", s.handleLink)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	return mux
}

// handleRoot serves the manifest on exactly "/" and 404s everything else
// that fell through the route table.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.handleManifest(w, r)
}

// Start binds a port and serves until Stop.
//
// The chosen port is persisted as the project's server port.
//
// Parameters:
//   - ctx: Context for cancellation
//   - port: The port to bind; 0 scans for a free port from 19000
//
// Returns:
//   - error: Bind or persistence errors
func (s *Server) Start(ctx context.Context, port int) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if port == 0 {
		var err error
		port, err = ports.GetFreePort(19000)
		if err != nil {
			return err
		}
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("failed to bind port %d: %w", port, err)
	}

	httpServer := &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	s.port = port
	s.httpServer = httpServer
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("manifest server stopped unexpectedly", "error", err)
		}
	}()

	_, err = s.store.UpdatePackagerInfo(s.projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = &port
	})
	if err != nil {
		s.Stop()
		return err
	}

	log.Debug("manifest server started", "port", port)
	return nil
}

// Port returns the bound port, or 0 before Start.
//
// Returns:
//   - int: The port number
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Stop shuts the server down and clears its tracked port. Idempotent.
//
// Returns:
//   - error: Persistence errors only
func (s *Server) Stop() error {
	s.mu.Lock()
	httpServer := s.httpServer
	listener := s.listener
	s.httpServer = nil
	s.listener = nil
	s.running = false
	s.mu.Unlock()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
		cancel()
	}
	if listener != nil {
		listener.Close()
	}

	_, err := s.store.UpdatePackagerInfo(s.projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = nil
	})
	return err
}

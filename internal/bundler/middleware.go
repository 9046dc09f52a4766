package bundler

import (
	"net/http"
	"strings"
	"sync"
)

// Stack is an ordered set of prefix-mounted handlers with a fallback.
//
// Requests are matched against mounts in order; the first matching prefix
// wins. The manifest handler must always be mounted at the front, otherwise
// a static mount at "/" would shadow it.
type Stack struct {
	mu       sync.RWMutex
	mounts   []mount
	fallback http.Handler
}

type mount struct {
	prefix  string
	exact   bool
	handler http.Handler
}

// NewStack creates a middleware stack.
//
// Parameters:
//   - fallback: Handler for requests no mount matches; nil means 404
//
// Returns:
//   - *Stack: A new stack instance
func NewStack(fallback http.Handler) *Stack {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return &Stack{fallback: fallback}
}

// Mount appends a handler for a path prefix.
//
// Parameters:
//   - prefix: The path prefix to match, e.g. "/message"
//   - handler: The handler to serve matching requests
func (s *Stack) Mount(prefix string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append(s.mounts, mount{prefix: prefix, handler: handler})
}

// MountFront inserts a handler ahead of every existing mount.
//
// Parameters:
//   - prefix: The path prefix to match
//   - handler: The handler to serve matching requests
func (s *Stack) MountFront(prefix string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append([]mount{{prefix: prefix, handler: handler}}, s.mounts...)
}

// MountExactFront inserts a handler matching one exact path ahead of every
// existing mount. Used for the root manifest route, which must not swallow
// bundle requests the way a "/" prefix would.
//
// Parameters:
//   - path: The exact path to match
//   - handler: The handler to serve matching requests
func (s *Stack) MountExactFront(path string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mounts = append([]mount{{prefix: path, exact: true, handler: handler}}, s.mounts...)
}

// ServeHTTP dispatches to the first matching mount.
func (s *Stack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	mounts := s.mounts
	fallback := s.fallback
	s.mu.RUnlock()

	for _, m := range mounts {
		if m.exact {
			if r.URL.Path == m.prefix {
				m.handler.ServeHTTP(w, r)
				return
			}
			continue
		}
		if matchesPrefix(r.URL.Path, m.prefix) {
			m.handler.ServeHTTP(w, r)
			return
		}
	}
	fallback.ServeHTTP(w, r)
}

// matchesPrefix reports whether a request path falls under a mount prefix.
// "/manifest" matches "/manifest" and "/manifest/x" but not "/manifesto".
func matchesPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

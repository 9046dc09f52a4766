package bundler

import (
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// MessageSocket broadcasts control events to connected client apps.
//
// Clients connect to /message over websocket and receive JSON frames of the
// form {"method": "reload"}. Known methods are "reload", "devMenu", and
// "sendDevCommand".
type MessageSocket struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

// NewMessageSocket creates a message socket.
//
// Returns:
//   - *MessageSocket: A new socket instance
func NewMessageSocket() *MessageSocket {
	return &MessageSocket{
		upgrader: websocket.Upgrader{
			// The socket is loopback or tunnel traffic from the client app;
			// there is no browser origin to validate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades a request and tracks the connection until it closes.
func (s *MessageSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("message socket upgrade failed", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// Drain incoming frames so pings are answered; drop on read error.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends a method frame to every connected client.
//
// Parameters:
//   - method: The control method name, e.g. "reload"
func (s *MessageSocket) Broadcast(method string) {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	payload := map[string]string{"method": method}
	for _, conn := range conns {
		if err := conn.WriteJSON(payload); err != nil {
			log.Debug("message socket write failed", "error", err)
			s.drop(conn)
		}
	}
}

// ClientCount returns the number of connected clients.
//
// Returns:
//   - int: The current client count
func (s *MessageSocket) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and rejects future connections.
func (s *MessageSocket) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// drop removes and closes one connection.
func (s *MessageSocket) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// Package tunnel manages the public tunnels that expose the local manifest
// server and bundler to client devices.
//
// The tunnel provider is injected behind the Client interface so the manager
// stays testable and provider error codes remain opaque sentinels.
package tunnel

import (
	"context"
	"fmt"
)

// ErrCodeAddressBound is the provider error code meaning the requested
// hostname is still bound to an earlier tunnel process. Its exact upstream
// semantics are undocumented; it is treated as an opaque sentinel.
const ErrCodeAddressBound = 103

// ConnectOptions configures a single tunnel connection.
type ConnectOptions struct {
	// Port is the local TCP port to expose.
	Port int

	// Hostname is the requested public hostname.
	Hostname string
}

// StatusHandler receives tunnel status-change events ("online",
// "reconnecting", "closed").
type StatusHandler func(status string)

// Client is a tunnel provider client.
//
// Implementations wrap the resolved @orbit/ngrok installation. All methods
// may be called from the manager only; the manager serializes access.
type Client interface {
	// Connect opens a tunnel and returns its public URL.
	Connect(ctx context.Context, opts ConnectOptions) (string, error)

	// KillAll tears down every tunnel owned by this client instance.
	KillAll() error

	// PID returns the OS process ID of the tunnel client process, or 0 if
	// none is running.
	PID() int

	// OnStatusChange registers a handler for tunnel status events.
	OnStatusChange(handler StatusHandler)
}

// ClientError is a structured failure reported by the tunnel provider.
type ClientError struct {
	// Code is the provider's numeric error code.
	Code int

	// Message is the provider's error text.
	Message string
}

// Error returns a human-readable error message.
func (e *ClientError) Error() string {
	return fmt.Sprintf("tunnel provider error %d: %s", e.Code, e.Message)
}

// NgrokError wraps a tunnel failure after retries are exhausted or the
// global connect deadline fires.
type NgrokError struct {
	// Attempts is how many connection attempts were made.
	Attempts int

	// Err is the final underlying error.
	Err error
}

// Error returns a human-readable error message.
func (e *NgrokError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("failed to start tunnel after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to start tunnel: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *NgrokError) Unwrap() error { return e.Err }

// NoPackagerPortError indicates the bundler has not been started yet.
type NoPackagerPortError struct{}

// Error returns a human-readable error message.
func (e *NoPackagerPortError) Error() string {
	return "no packager port found: start the bundler before opening tunnels"
}

// NoServerPortError indicates the manifest server has not been started yet.
type NoServerPortError struct{}

// Error returns a human-readable error message.
func (e *NoServerPortError) Error() string {
	return "no server port found: start the project before opening tunnels"
}

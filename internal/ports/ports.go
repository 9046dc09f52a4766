// Package ports provides TCP port allocation and probing for local dev servers.
package ports

import (
	"fmt"
	"net"
	"time"
)

const (
	// scanRange is how many ports above the range start are probed before
	// giving up.
	scanRange = 100

	// probeTimeout is the timeout for checking if a port is already serving.
	probeTimeout = 100 * time.Millisecond
)

// NoPortFoundError indicates no free port was found in the scan range.
type NoPortFoundError struct {
	// RangeStart is the first port that was probed.
	RangeStart int

	// RangeEnd is the last port that was probed.
	RangeEnd int
}

// Error returns a human-readable error message.
func (e *NoPortFoundError) Error() string {
	return fmt.Sprintf("no available TCP port found between %d and %d", e.RangeStart, e.RangeEnd)
}

// GetFreePort finds an available TCP port starting at rangeStart.
//
// Ports are probed in ascending order; a port counts as free when a
// listener can be bound to it. The scan is bounded, and exhausting it
// returns a NoPortFoundError.
//
// Parameters:
//   - rangeStart: The first port to probe
//
// Returns:
//   - int: The first free port found
//   - error: NoPortFoundError if the scan range is exhausted
func GetFreePort(rangeStart int) (int, error) {
	for port := rangeStart; port < rangeStart+scanRange; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			continue
		}
		ln.Close()
		return port, nil
	}
	return 0, &NoPortFoundError{RangeStart: rangeStart, RangeEnd: rangeStart + scanRange - 1}
}

// IsPortOpen checks if a TCP port is open on the given host.
//
// Parameters:
//   - host: The hostname to check
//   - port: The port number to check
//
// Returns:
//   - bool: True if the port is open and accepting connections
func IsPortOpen(host string, port int) bool {
	address := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := net.DialTimeout("tcp", address, probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// LANAddress returns the machine's primary non-loopback IPv4 address.
//
// Falls back to 127.0.0.1 when no suitable interface address is found.
//
// Returns:
//   - string: The LAN IP address
func LANAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

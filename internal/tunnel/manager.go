package tunnel

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/settings"
	"github.com/orbitlabs/orbit-cli/internal/util"
)

const (
	// TunnelDomain is the fixed domain all tunnel hostnames end with.
	TunnelDomain = "orbit.host"

	// maxConnectAttempts bounds per-tunnel connection retries.
	maxConnectAttempts = 3

	// retryDelay is the pause between connection attempts.
	retryDelay = 100 * time.Millisecond

	// tunnelsTimeout is the hard deadline for connecting both tunnels.
	// This guards against the provider client hanging indefinitely; it is
	// not a per-attempt timeout.
	tunnelsTimeout = 10 * time.Second
)

// ClientResolver locates the tunnel client. Implemented by *Resolver.
type ClientResolver interface {
	Resolve(projectRoot string, allowPrompt bool) (Client, error)
	Cached() Client
}

// StartOptions carries the identity components of the tunnel hostnames.
type StartOptions struct {
	// Username is the account name, or empty for anonymous.
	Username string

	// Slug is the project slug.
	Slug string
}

// Manager opens and closes the pair of tunnels backing a project session.
type Manager struct {
	store    *settings.Store
	resolver ClientResolver
	adb      *AdbReverser

	// sleep, killProcess, newRandomness, and timeout are injected so retry
	// behavior is testable without real timers or processes.
	sleep         func(time.Duration)
	killProcess   func(pid int) error
	newRandomness func() string
	timeout       time.Duration
}

// NewManager creates a tunnel manager.
//
// Parameters:
//   - store: The settings store for the managed projects
//   - resolver: The tunnel client resolver
//
// Returns:
//   - *Manager: A new manager instance
func NewManager(store *settings.Store, resolver ClientResolver) *Manager {
	return &Manager{
		store:         store,
		resolver:      resolver,
		adb:           NewAdbReverser(),
		sleep:         time.Sleep,
		killProcess:   killByPID,
		newRandomness: randomnessSeed,
		timeout:       tunnelsTimeout,
	}
}

// randomnessSeed generates a fresh hostname randomness component.
func randomnessSeed() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// StartTunnels opens the manifest-server and packager tunnels for a project.
//
// Both the bundler and manifest server ports must already be recorded in
// PackagerInfo; distinct error kinds report whichever is missing. Existing
// tunnels are always torn down first. The combined connect operation races
// a hard deadline; exceeding it fails even if attempts are still in flight.
//
// Parameters:
//   - ctx: Context for cancellation
//   - projectRoot: The project root
//   - opts: Hostname identity components
//
// Returns:
//   - error: Precondition, retry-exhaustion, or deadline errors
func (m *Manager) StartTunnels(ctx context.Context, projectRoot string, opts StartOptions) error {
	info, err := m.store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return err
	}
	if info.PackagerPort == nil {
		return &NoPackagerPortError{}
	}
	if info.ServerPort == nil {
		return &NoServerPortError{}
	}
	packagerPort, serverPort := *info.PackagerPort, *info.ServerPort

	// Tear down, never reconfigure incrementally.
	if err := m.StopTunnels(ctx, projectRoot); err != nil {
		log.Debug("failed to stop existing tunnels", "error", err)
	}

	m.adb.Reverse(ctx, serverPort, packagerPort)

	client, err := m.resolver.Resolve(projectRoot, true)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	var serverURL, packagerURL string
	go func() {
		var err error
		serverURL, err = m.connectWithRetry(ctx, client, projectRoot, serverPort, opts, "")
		if err != nil {
			done <- err
			return
		}
		packagerURL, err = m.connectWithRetry(ctx, client, projectRoot, packagerPort, opts, "packager.")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-time.After(m.timeout):
		return &NgrokError{Err: errors.New("tunnels took too long to connect")}
	case <-ctx.Done():
		return ctx.Err()
	}

	pid := client.PID()
	_, err = m.store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerNgrokURL = &serverURL
		info.PackagerNgrokURL = &packagerURL
		if pid != 0 {
			info.NgrokPID = &pid
		}
	})
	if err != nil {
		return err
	}

	client.OnStatusChange(func(status string) {
		switch status {
		case "reconnecting":
			log.Warn("tunnel connection lost, reconnecting...")
		case "online":
			log.Info("tunnel connected")
		}
	})

	log.Debug("tunnels ready", "server", serverURL, "packager", packagerURL)
	return nil
}

// connectWithRetry opens one tunnel with bounded retries.
//
// A provider "address already bound" failure triggers a PID kill before the
// second attempt and a randomness reset before the third, so the retry lands
// on a fresh hostname. Any other failure just retries.
func (m *Manager) connectWithRetry(ctx context.Context, client Client, projectRoot string, port int, opts StartOptions, hostPrefix string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		randomness, err := m.currentRandomness(projectRoot)
		if err != nil {
			return "", err
		}

		hostname := hostPrefix + m.hostname(randomness, opts)
		url, err := client.Connect(ctx, ConnectOptions{Port: port, Hostname: hostname})
		if err == nil {
			return url, nil
		}
		lastErr = err

		var clientErr *ClientError
		if errors.As(err, &clientErr) && clientErr.Code == ErrCodeAddressBound {
			switch attempt {
			case 1:
				m.killTrackedClient(projectRoot, client)
			case 2:
				if _, err := m.store.SetSettings(projectRoot, &settings.SettingsPatch{ClearRandomness: true}); err != nil {
					return "", err
				}
			}
		}

		if attempt < maxConnectAttempts {
			m.sleep(retryDelay)
		}
	}

	return "", &NgrokError{Attempts: maxConnectAttempts, Err: lastErr}
}

// killTrackedClient terminates whichever tunnel process the project last
// recorded, preferring a raw PID kill over the client's own teardown.
func (m *Manager) killTrackedClient(projectRoot string, client Client) {
	info, err := m.store.ReadPackagerInfo(projectRoot)
	if err == nil && info.NgrokPID != nil {
		if err := m.killProcess(*info.NgrokPID); err != nil {
			// Process may already be dead.
			log.Debug("failed to kill tracked tunnel process", "pid", *info.NgrokPID, "error", err)
		}
		return
	}
	if err := client.KillAll(); err != nil {
		log.Debug("tunnel client kill-all failed", "error", err)
	}
}

// currentRandomness returns the persisted hostname randomness, creating and
// persisting a fresh seed when none exists. Reusing the seed lets a session
// reconnect to the same public address.
func (m *Manager) currentRandomness(projectRoot string) (string, error) {
	s, err := m.store.ReadSettings(projectRoot)
	if err != nil {
		return "", err
	}
	if s.URLRandomness != nil && *s.URLRandomness != "" {
		return *s.URLRandomness, nil
	}

	seed := m.newRandomness()
	if _, err := m.store.SetSettings(projectRoot, &settings.SettingsPatch{URLRandomness: &seed}); err != nil {
		return "", err
	}
	return seed, nil
}

// hostname builds the deterministic public hostname for a project.
func (m *Manager) hostname(randomness string, opts StartOptions) string {
	username := opts.Username
	if username == "" {
		username = "anonymous"
	}
	parts := []string{
		randomness,
		util.Domainify(username),
		util.Domainify(opts.Slug),
		TunnelDomain,
	}
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ".")
}

// StopTunnels tears down a project's tunnels and clears their tracked state.
//
// Safe to call when nothing is running. The client is resolved without
// prompting; when it cannot be resolved the tracked state is still cleared.
//
// Parameters:
//   - ctx: Context for cancellation
//   - projectRoot: The project root
//
// Returns:
//   - error: Persistence errors only; kill failures are logged and ignored
func (m *Manager) StopTunnels(ctx context.Context, projectRoot string) error {
	info, err := m.store.ReadPackagerInfo(projectRoot)
	if err != nil {
		return err
	}

	client := m.resolver.Cached()
	if client == nil {
		if resolved, err := m.resolver.Resolve(projectRoot, false); err == nil {
			client = resolved
		} else {
			log.Debug("tunnel client unresolvable during stop", "error", err)
		}
	}

	switch {
	case info.NgrokPID != nil && (client == nil || client.PID() != *info.NgrokPID):
		// The tracked process lives outside our client handle; kill it raw.
		if err := m.killProcess(*info.NgrokPID); err != nil {
			log.Debug("failed to kill tunnel process", "pid", *info.NgrokPID, "error", err)
		}
	case client != nil:
		if err := client.KillAll(); err != nil {
			log.Debug("tunnel client kill-all failed", "error", err)
		}
	}

	var ports []int
	if info.ServerPort != nil {
		ports = append(ports, *info.ServerPort)
	}
	if info.PackagerPort != nil {
		ports = append(ports, *info.PackagerPort)
	}
	if len(ports) > 0 {
		m.adb.Stop(ctx, ports...)
	}

	_, err = m.store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerNgrokURL = nil
		info.PackagerNgrokURL = nil
		info.NgrokPID = nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear tunnel state: %w", err)
	}
	return nil
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/orbitlabs/orbit-cli/internal/api"
)

// heartbeatInterval is how often a running session re-announces itself.
const heartbeatInterval = 20 * time.Second

// aliveNotifier is the backend surface the heartbeat needs. Implemented by
// *api.Client.
type aliveNotifier interface {
	HasSession() bool
	NotifyAlive(ctx context.Context, req *api.NotifyAliveRequest) error
}

// heartbeat periodically announces the session to the backend so it shows
// up in the hosted dev tools.
type heartbeat struct {
	c        *Controller
	interval time.Duration
	notifier aliveNotifier

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newHeartbeat(c *Controller) *heartbeat {
	h := &heartbeat{c: c, interval: heartbeatInterval}
	if c.apiClient != nil {
		h.notifier = c.apiClient
	}
	return h
}

// start begins the heartbeat loop.
//
// Nothing is sent for offline sessions, and each beat is additionally gated
// on having either an authenticated session or a device that already talked
// to us: an anonymous session nobody connected to is not worth announcing.
func (h *heartbeat) start(ctx context.Context, opts Options) {
	if h.notifier == nil || opts.Offline {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()

	platform := "native"
	if opts.WebOnly {
		platform = "web"
	}

	go func() {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.beat(ctx, platform)
			}
		}
	}()
}

// beat sends one notify-alive call if the gates allow it.
func (h *heartbeat) beat(ctx context.Context, platform string) {
	if h.c.service.Signer().Offline() {
		return
	}

	h.c.mu.Lock()
	srv := h.c.srv
	h.c.mu.Unlock()
	hasDevices := srv != nil && srv.HasDevices()
	if !h.notifier.HasSession() && !hasDevices {
		return
	}

	url, err := h.c.SessionURL()
	if err != nil {
		return
	}

	config, err := h.c.loader.Get()
	if err != nil {
		return
	}

	err = h.notifier.NotifyAlive(ctx, &api.NotifyAliveRequest{
		URL:         url,
		Platform:    platform,
		Description: config.Slug,
		Source:      "desktop",
	})
	if err != nil {
		log.Debug("development session heartbeat failed", "error", err)
	}
}

// stop ends the heartbeat loop.
func (h *heartbeat) stop() {
	h.mu.Lock()
	cancel := h.cancel
	h.cancel = nil
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

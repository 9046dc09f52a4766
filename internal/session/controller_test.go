package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orbitlabs/orbit-cli/internal/api"
	"github.com/orbitlabs/orbit-cli/internal/settings"
)

func newTestController(t *testing.T) (*Controller, *settings.Store, string) {
	t.Helper()

	projectRoot := t.TempDir()
	appJSON := `{"expo": {"name": "Demo", "slug": "demo", "sdkVersion": "40.0.0"}}`
	if err := os.WriteFile(filepath.Join(projectRoot, "app.json"), []byte(appJSON), 0644); err != nil {
		t.Fatal(err)
	}

	store := settings.NewStoreWithDir(t.TempDir())
	c := NewController(store, nil, projectRoot, "1.0.0")
	return c, store, projectRoot
}

func TestStartWhileRunning(t *testing.T) {
	c, _, _ := newTestController(t)
	c.setState(StateRunning)

	err := c.Start(context.Background(), Options{})
	if err == nil || !strings.Contains(err.Error(), "already") {
		t.Fatalf("Start() error = %v, want already-running error", err)
	}
}

func TestStartRejectsInvalidOptions(t *testing.T) {
	c, _, _ := newTestController(t)

	tests := []struct {
		name string
		opts Options
	}{
		{name: "web only with dev client", opts: Options{WebOnly: true, DevClient: true}},
		{name: "negative port", opts: Options{MetroPort: -1}},
		{name: "port out of range", opts: Options{MetroPort: 70000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Start(context.Background(), tt.opts)
			var optErr *InvalidOptionsError
			if !errors.As(err, &optErr) {
				t.Fatalf("Start() error = %v, want InvalidOptionsError", err)
			}
			if got := c.State(); got != StateStopped {
				t.Errorf("state = %s, want stopped after rejected start", got)
			}
		})
	}
}

func TestStopIsBounded(t *testing.T) {
	c, store, projectRoot := newTestController(t)
	c.setState(StateRunning)
	c.timeout = 200 * time.Millisecond

	// Simulate a wedged component that never finishes stopping.
	c.stopFn = func(ctx context.Context) error {
		select {}
	}

	pid := 999999
	port := 19000
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPID = &pid
		info.PackagerPort = &port
		info.ServerPort = &port
	}); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop() took %s, want bounded by the stop timeout", elapsed)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}

	// Force quit clears all transient state.
	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		t.Fatal(err)
	}
	if info.PackagerPID != nil || info.PackagerPort != nil || info.ServerPort != nil {
		t.Errorf("packager info not cleared: %+v", info)
	}
}

func TestStopWhenStopped(t *testing.T) {
	c, _, _ := newTestController(t)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() on stopped session error = %v", err)
	}
	if got := c.State(); got != StateStopped {
		t.Errorf("state = %s, want stopped", got)
	}
}

func TestStopCleanPath(t *testing.T) {
	c, _, _ := newTestController(t)
	c.setState(StateRunning)

	wantErr := errors.New("component failed")
	c.stopFn = func(ctx context.Context) error { return wantErr }
	c.forceQuitFn = func() { t.Error("force quit ran despite clean stop") }

	if err := c.Stop(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Stop() error = %v, want %v", err, wantErr)
	}
}

func TestSessionURL(t *testing.T) {
	_, store, projectRoot := newTestController(t)

	// Nothing running.
	if _, err := SessionURL(store, projectRoot); err == nil {
		t.Fatal("SessionURL() error = nil, want not-running error")
	}

	// LAN serving.
	port := 19000
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = &port
	}); err != nil {
		t.Fatal(err)
	}
	url, err := SessionURL(store, projectRoot)
	if err != nil {
		t.Fatalf("SessionURL() error = %v", err)
	}
	if !strings.HasPrefix(url, "exp://") || !strings.HasSuffix(url, ":19000") {
		t.Errorf("SessionURL() = %q", url)
	}

	// Tunnel takes precedence.
	tunnelURL := "https://abcd.anonymous.demo.orbit.host"
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerNgrokURL = &tunnelURL
	}); err != nil {
		t.Fatal(err)
	}
	url, err = SessionURL(store, projectRoot)
	if err != nil {
		t.Fatalf("SessionURL() error = %v", err)
	}
	if url != "exp://abcd.anonymous.demo.orbit.host" {
		t.Errorf("SessionURL() = %q", url)
	}
}

// fakeNotifier records notify-alive calls.
type fakeNotifier struct {
	session bool
	calls   []*api.NotifyAliveRequest
}

func (f *fakeNotifier) HasSession() bool { return f.session }

func (f *fakeNotifier) NotifyAlive(ctx context.Context, req *api.NotifyAliveRequest) error {
	f.calls = append(f.calls, req)
	return nil
}

func TestHeartbeatGating(t *testing.T) {
	c, store, projectRoot := newTestController(t)

	port := 19000
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = &port
	}); err != nil {
		t.Fatal(err)
	}

	// Anonymous with no connected devices: nothing is sent.
	notifier := &fakeNotifier{session: false}
	c.heartbeat.notifier = notifier
	c.heartbeat.beat(context.Background(), "native")
	if len(notifier.calls) != 0 {
		t.Fatalf("anonymous beat sent %d calls, want 0", len(notifier.calls))
	}

	// Authenticated: the beat goes out with the session URL.
	notifier.session = true
	c.heartbeat.beat(context.Background(), "native")
	if len(notifier.calls) != 1 {
		t.Fatalf("authenticated beat sent %d calls, want 1", len(notifier.calls))
	}
	req := notifier.calls[0]
	if !strings.HasPrefix(req.URL, "exp://") {
		t.Errorf("heartbeat URL = %q", req.URL)
	}
	if req.Platform != "native" || req.Source != "desktop" || req.Description != "demo" {
		t.Errorf("heartbeat payload = %+v", req)
	}

	// Offline sessions never beat.
	c.service.Signer().SetOffline()
	c.heartbeat.beat(context.Background(), "native")
	if len(notifier.calls) != 1 {
		t.Errorf("offline beat sent %d calls, want 1 total", len(notifier.calls))
	}
}

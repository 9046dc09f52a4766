package session

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/orbitlabs/orbit-cli/internal/settings"
)

func TestDiagnoseStopped(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())

	health, err := Diagnose(store, t.TempDir())
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if health != HealthStopped {
		t.Errorf("health = %q, want stopped with no tracked state", health)
	}
}

func TestDiagnoseIllDeadProcess(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())
	projectRoot := t.TempDir()

	// A PID that cannot exist on any reasonable system.
	deadPID := 1 << 22
	port := 19000
	_, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = &port
		info.PackagerPID = &deadPID
	})
	if err != nil {
		t.Fatal(err)
	}

	health, err := Diagnose(store, projectRoot)
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if health != HealthIll {
		t.Errorf("health = %q, want ill for a dead tracked process", health)
	}
}

func TestDiagnoseIllClosedPort(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())
	projectRoot := t.TempDir()

	// Grab a free port and release it so nothing listens there.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = &port
	}); err != nil {
		t.Fatal(err)
	}

	health, err := Diagnose(store, projectRoot)
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if health != HealthIll {
		t.Errorf("health = %q, want ill for a closed tracked port", health)
	}
}

func TestDiagnoseRunning(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())
	projectRoot := t.TempDir()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()
	port := listener.Addr().(*net.TCPAddr).Port

	livePID := os.Getpid()
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.ServerPort = &port
		info.PackagerPID = &livePID
	}); err != nil {
		t.Fatal(err)
	}

	health, err := Diagnose(store, projectRoot)
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if health != HealthRunning {
		t.Errorf("health = %q, want running", health)
	}
}

func TestStopDetachedNothingTracked(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())

	stopped, err := StopDetached(context.Background(), store, t.TempDir())
	if err != nil {
		t.Fatalf("StopDetached() error = %v", err)
	}
	if stopped {
		t.Error("StopDetached() reported a stop with nothing tracked")
	}
}

func TestStopDetachedClearsState(t *testing.T) {
	store := settings.NewStoreWithDir(t.TempDir())
	projectRoot := t.TempDir()

	deadPID := 1 << 22
	port := 19000
	if _, err := store.UpdatePackagerInfo(projectRoot, func(info *settings.PackagerInfo) {
		info.PackagerPort = &port
		info.PackagerPID = &deadPID
	}); err != nil {
		t.Fatal(err)
	}

	stopped, err := StopDetached(context.Background(), store, projectRoot)
	if err != nil {
		t.Fatalf("StopDetached() error = %v", err)
	}
	if !stopped {
		t.Error("StopDetached() found no tracked state")
	}

	info, err := store.ReadPackagerInfo(projectRoot)
	if err != nil {
		t.Fatal(err)
	}
	if info.PackagerPort != nil || info.PackagerPID != nil {
		t.Errorf("tracked state survived the stop: %+v", info)
	}

	health, err := Diagnose(store, projectRoot)
	if err != nil {
		t.Fatal(err)
	}
	if health != HealthStopped {
		t.Errorf("health after stop = %q, want stopped", health)
	}
}

package ports

import (
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestGetFreePort_SkipsOccupiedPort(t *testing.T) {
	// Grab a free port, hold it open, then ask for a port starting there.
	start, err := GetFreePort(42000)
	if err != nil {
		t.Fatalf("GetFreePort failed: %v", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", start))
	if err != nil {
		t.Fatalf("failed to occupy port %d: %v", start, err)
	}
	defer ln.Close()

	got, err := GetFreePort(start)
	if err != nil {
		t.Fatalf("GetFreePort failed: %v", err)
	}
	if got == start {
		t.Errorf("GetFreePort returned occupied port %d", start)
	}
	if got < start || got >= start+scanRange {
		t.Errorf("GetFreePort returned %d, want within [%d, %d)", got, start, start+scanRange)
	}
}

func TestNoPortFoundError_Message(t *testing.T) {
	err := &NoPortFoundError{RangeStart: 19000, RangeEnd: 19099}
	want := "no available TCP port found between 19000 and 19099"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	var target *NoPortFoundError
	if !errors.As(error(err), &target) {
		t.Error("expected errors.As to match NoPortFoundError")
	}
}

func TestIsPortOpen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if !IsPortOpen("127.0.0.1", port) {
		t.Errorf("IsPortOpen = false for listening port %d", port)
	}

	ln.Close()
	if IsPortOpen("127.0.0.1", port) {
		t.Errorf("IsPortOpen = true for closed port %d", port)
	}
}

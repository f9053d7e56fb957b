package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"platecrane/internal/daemonctl"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platecraned.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err := daemonctl.ReadPID(path)
	if err != nil {
		t.Fatalf("ReadPID returned error: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("unexpected pid %d", pid)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
	if _, err := daemonctl.ReadPID(filepath.Join(dir, "missing.pid")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "platecrane.sock")
	if _, err := daemonctl.Stop(socket, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if err := daemonctl.WaitForShutdown(socket, time.Second); err != nil {
		t.Fatalf("expected missing socket to count as shut down, got %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch("  ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable path")
	}
}

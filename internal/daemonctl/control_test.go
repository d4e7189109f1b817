package daemonctl_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pidish/internal/daemonctl"
	"pidish/internal/testsupport"
)

func TestProcessInfoWithoutSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "missing.sock")
	alive, pid, err := daemonctl.ProcessInfo(socket)
	if err != nil {
		t.Fatalf("ProcessInfo: %v", err)
	}
	if alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d", alive, pid)
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemonctl.StopAndTerminate(cfg, 10*time.Millisecond); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestReadPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pidish.pid")
	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := daemonctl.ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("expected 4242, got %d (%v)", pid, err)
	}

	if err := os.WriteFile(path, []byte("nope"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := daemonctl.ReadPID(path); err == nil {
		t.Fatal("expected error for garbage pid file")
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := daemonctl.Launch(" ", daemonctl.LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

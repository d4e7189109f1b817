package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pidish/internal/config"
	"pidish/internal/ipc"
)

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	SocketPath string
	LogLevel   string
}

// Launch starts a detached pidish daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	proc := exec.Command(executablePath, launchArgs(opts)...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

func launchArgs(opts LaunchOptions) []string {
	args := []string{"daemon", "run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if sock := strings.TrimSpace(opts.SocketPath); sock != "" {
		args = append(args, "--socket", sock)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	return args
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless it already answers on the
// socket. It reports whether a new process was launched.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (bool, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		client.Close()
		return false, nil
	}
	if err := Launch(executablePath, opts); err != nil {
		return false, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return true, err
	}
	client.Close()
	return true, nil
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, err := client.Status()
	if err != nil {
		return true, 0, err
	}
	return true, status.PID, nil
}

// WaitForShutdown waits for the daemon socket to stop answering.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		alive, _, err := ProcessInfo(socketPath)
		if err == nil && !alive {
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}

// ReadPID parses the daemon pid file.
func ReadPID(pidPath string) (int, error) {
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %q", pidPath)
	}
	return pid, nil
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// StopAndTerminate sends SIGTERM so the daemon parks the lift and blanks
// the display, then SIGKILLs it if it is still alive after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	alive, pid, err := ProcessInfo(cfg.Paths.SocketPath)
	if err != nil {
		return StopResult{}, err
	}
	if !alive {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == 0 {
		if pid, err = ReadPID(cfg.PIDPath()); err != nil {
			return StopResult{}, err
		}
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if WaitForShutdown(cfg.Paths.SocketPath, gracePeriod) == nil {
		return result, nil
	}

	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{cfg.PIDPath(), cfg.LockPath(), cfg.Paths.SocketPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return result, fmt.Errorf("remove %q: %w", path, err)
		}
	}
	result.ForcedKill = true
	return result, nil
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

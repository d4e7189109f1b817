package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pidish/internal/config"
	"pidish/internal/daemon"
	"pidish/internal/display"
	"pidish/internal/gpio"
	"pidish/internal/ipc"
	"pidish/internal/printer"
	"pidish/internal/testsupport"
	"pidish/internal/variables"
)

type instantPacer struct{}

func (instantPacer) Hold(time.Duration) {}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	testsupport.WriteSlices(t, cfg.Paths.ObjectsDir, "cube.slice", "cube", 2)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteFile(t, configPath, string(data))

	store := testsupport.MustOpenHistory(t, cfg)
	vars, err := variables.Open(cfg.VariablesPath(), nil)
	if err != nil {
		t.Fatalf("variables.Open: %v", err)
	}
	d, err := daemon.New(cfg, store, vars, nil,
		daemon.WithDriver(gpio.NewRecorder()),
		daemon.WithDisplay(display.NewRecorder(nil)),
		daemon.WithPacer(instantPacer{}),
		daemon.WithSleep(func(time.Duration) {}),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, cfg.Paths.SocketPath, d, nil)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	waitFor(t, 5*time.Second, func() bool { return d.PrinterStatus().State == printer.StateReady })
	return &cliTestEnv{cfg: cfg, daemon: d, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestStatusShowsReadyPrinter(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Ready")
	requireContains(t, out, "No jobs recorded")
}

func TestStatusWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteFile(t, configPath, string(data))

	out, _, err := runCLI(t, []string{"status"}, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Not running")

	_, _, err = runCLI(t, []string{"home"}, configPath)
	if err == nil || !strings.Contains(err.Error(), "pidish daemon run") {
		t.Fatalf("expected dial hint, got %v", err)
	}
}

func TestPrintThenHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"print", "cube.slice", "--exposure", "1.5"}, env.configPath)
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	requireContains(t, out, "Queued print_object")

	ctx := context.Background()
	waitFor(t, 5*time.Second, func() bool {
		recs, err := env.daemon.History(ctx, 1)
		return err == nil && len(recs) == 1 && recs[0].Outcome == string(printer.OutcomeCompleted)
	})

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "cube")
	requireContains(t, out, "Completed")
	requireContains(t, out, "2/2")

	out, _, err = runCLI(t, []string{"vars"}, env.configPath)
	if err != nil {
		t.Fatalf("vars: %v", err)
	}
	requireContains(t, out, "exposure_time")
	requireContains(t, out, "1.5")
}

func TestRejectedCommandReturnsError(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"lift", "sideways"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Fatalf("expected rejection, got %v", err)
	}

	_, _, err = runCLI(t, []string{"send", "command=dance"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command, got %v", err)
	}

	out, _, err := runCLI(t, []string{"send", "command=lift_move", "dir=down", "lift_amount=10"}, env.configPath)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	requireContains(t, out, "Queued lift_move")
}

func TestObjectsListing(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"objects"}, env.configPath)
	if err != nil {
		t.Fatalf("objects: %v", err)
	}
	requireContains(t, out, "cube")
}

func TestLogsPrintsTail(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteFile(t, configPath, string(data))
	testsupport.WriteFile(t, cfg.LogPath(), "one\ntwo\nthree\n")

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if out != "two\nthree\n" {
		t.Fatalf("unexpected logs output %q", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "pidish", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected sample at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestTestNotifyPostsToTopic(t *testing.T) {
	var title string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		title = r.Header.Get("Title")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t)
	cfg.Notifications.NtfyTopic = server.URL
	configPath := filepath.Join(testsupport.BaseDir(cfg), "notify.toml")
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	testsupport.WriteFile(t, configPath, string(data))

	out, _, err := runCLI(t, []string{"test-notify"}, configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "Test notification sent")
	if title != "pidish - Test" {
		t.Fatalf("unexpected title %q", title)
	}
}

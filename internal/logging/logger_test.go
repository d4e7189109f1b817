package logging_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pidish/internal/logging"
	"pidish/internal/testsupport"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started")

	content, err := os.ReadFile(cfg.LogPath())
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "daemon started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndJob(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format: "console",
		Level:  "info",
		File:   logPath,
		Quiet:  true,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "printer")
	logger = logging.WithJob(logger, "0123456789abcdef")
	logger.Info("layer exposed", logging.Int(logging.FieldLayer, 4), logging.Float64("display_seconds", 12.5))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, want := range []string{"INFO [printer] job 01234567 L4: layer exposed display_seconds=12.5\n"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output, got %q", want, text)
		}
	}
	if strings.Contains(text, "\x1b[") {
		t.Fatalf("expected no colour codes in file output, got %q", text)
	}
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", text)
	}
}

func TestJSONLoggerCarriesContextFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{
		Format: "json",
		Level:  "warn",
		File:   logPath,
		Quiet:  true,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("filtered out")
	logging.WarnWithContext(logger, "display disconnected", "hotplug_disconnect", logging.Error(errors.New("no signal")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single warn line, got %d: %q", len(lines), content)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("unexpected level %v", entry["level"])
	}
	if entry[logging.FieldEventType] != "hotplug_disconnect" {
		t.Fatalf("expected event_type, got %v", entry[logging.FieldEventType])
	}
	if entry[logging.FieldImpact] == nil || entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected impact and error_hint defaults, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", File: filepath.Join(t.TempDir(), "x.log"), Quiet: true}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestOversizedLogIsRotated(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pidish.log")
	if err := os.WriteFile(logPath, make([]byte, 9<<20), 0o644); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	logger, err := logging.New(logging.Options{File: logPath, Quiet: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("fresh start")

	if info, err := os.Stat(logPath + ".1"); err != nil || info.Size() != 9<<20 {
		t.Fatalf("expected rotated file, got %v", err)
	}
	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "fresh start") || len(content) > 4096 {
		t.Fatalf("expected a fresh log file, got %d bytes", len(content))
	}
}

func TestConsoleLoggerQuotesAndGroups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{File: logPath, Quiet: true})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.WithGroup("lift").Info("moved", logging.String("target", "resin top"), logging.Int("steps", 320))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	want := `: moved lift.target="resin top" lift.steps=320`
	if !strings.Contains(string(content), want) {
		t.Fatalf("expected %q in output, got %q", want, content)
	}
}

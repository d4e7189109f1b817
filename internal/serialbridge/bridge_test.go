package serialbridge_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"pidish/internal/ipc"
	"pidish/internal/printer"
	"pidish/internal/serialbridge"
)

type fakeDaemon struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (f *fakeDaemon) Send(wire map[string]string) (*ipc.SendResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, wire)
	if wire["command"] == "dance" {
		return &ipc.SendResponse{Message: "unknown command"}, nil
	}
	return &ipc.SendResponse{Accepted: true, Verb: printer.NormalizeVerb(wire["command"])}, nil
}

func (f *fakeDaemon) Status() (*ipc.StatusResponse, error) {
	return &ipc.StatusResponse{Printer: printer.Status{Title: printer.TitleReady}}, nil
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type port struct {
	io.Reader
	io.Writer
}

func TestParseLine(t *testing.T) {
	wire, err := serialbridge.ParseLine("command=lift_move dir=up lift_amount=1000")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if wire["command"] != "lift_move" || wire["dir"] != "up" || wire["lift_amount"] != "1000" {
		t.Fatalf("unexpected wire: %#v", wire)
	}

	wire, err = serialbridge.ParseLine("  home ")
	if err != nil || wire["command"] != "home" {
		t.Fatalf("expected bare verb, got %#v (%v)", wire, err)
	}

	if _, err := serialbridge.ParseLine("   "); !errors.Is(err, serialbridge.ErrEmptyLine) {
		t.Fatalf("expected ErrEmptyLine, got %v", err)
	}
	if _, err := serialbridge.ParseLine("dir=up"); !errors.Is(err, printer.ErrMalformed) {
		t.Fatalf("expected ErrMalformed without command, got %v", err)
	}
	if _, err := serialbridge.ParseLine("home extra"); !errors.Is(err, printer.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for stray token, got %v", err)
	}
}

func TestBridgeForwardsLinesAndReportsStatus(t *testing.T) {
	input := strings.NewReader("command=home\n\ncommand=dance\nbogus token\n")
	out := &lockedBuffer{}
	daemon := &fakeDaemon{}
	bridge := serialbridge.New(port{Reader: input, Writer: out}, daemon, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bridge.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := out.String()
	for _, want := range []string{"ok home\n", "err unknown command\n", "err malformed command", "Ready|\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in output, got %q", want, got)
		}
	}
	if len(daemon.sent) != 2 {
		t.Fatalf("expected 2 forwarded commands, got %#v", daemon.sent)
	}
}

func TestFormatStatusEscapesSeparator(t *testing.T) {
	got := serialbridge.FormatStatus(printer.Status{Title: "Printing", Detail: "a|b: layer 1 of 2"})
	if got != "Printing|a/b: layer 1 of 2" {
		t.Fatalf("unexpected status line %q", got)
	}
}

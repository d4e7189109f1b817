// Package serialbridge lets a serial pendant drive the daemon.
//
// The pendant writes one command per line as space separated key=value
// pairs, for example "command=lift_move dir=up lift_amount=1000". Each line
// is forwarded as a wire map; the reply is "ok <verb>" or "err <reason>".
// Whenever the printer status changes the bridge writes "title|detail".
package serialbridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"pidish/internal/config"
	"pidish/internal/ipc"
	"pidish/internal/logging"
	"pidish/internal/printer"
)

// ErrEmptyLine is returned by ParseLine for blank input.
var ErrEmptyLine = errors.New("empty line")

// Daemon is the subset of the IPC client the bridge drives.
type Daemon interface {
	Send(wire map[string]string) (*ipc.SendResponse, error)
	Status() (*ipc.StatusResponse, error)
}

// Open opens the configured serial port in 8N1 mode.
func Open(cfg config.Serial) (serial.Port, error) {
	if strings.TrimSpace(cfg.Port) == "" {
		return nil, errors.New("serial port not configured (set serial.port or pass --port)")
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	return port, nil
}

// ParseLine turns "key=value key=value" into a wire map. A bare first
// token is taken as the verb.
func ParseLine(line string) (map[string]string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrEmptyLine
	}
	wire := make(map[string]string, len(fields))
	for i, field := range fields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			if i == 0 {
				wire[printer.KeyCommand] = field
				continue
			}
			return nil, fmt.Errorf("%w: %q is not key=value", printer.ErrMalformed, field)
		}
		if key == "" {
			return nil, fmt.Errorf("%w: empty key in %q", printer.ErrMalformed, field)
		}
		wire[key] = value
	}
	if wire[printer.KeyCommand] == "" {
		return nil, fmt.Errorf("%w: missing command", printer.ErrMalformed)
	}
	return wire, nil
}

// Bridge relays between a serial stream and the daemon.
type Bridge struct {
	port     io.ReadWriter
	daemon   Daemon
	interval time.Duration
	logger   *slog.Logger

	writeMu sync.Mutex
}

// New builds a bridge that polls status every interval.
func New(port io.ReadWriter, daemon Daemon, interval time.Duration, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Bridge{
		port:     port,
		daemon:   daemon,
		interval: interval,
		logger:   logging.NewComponentLogger(logger, "serial"),
	}
}

// Run relays until ctx is done or the port reaches EOF.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.pumpStatus(ctx)
	}()

	err := b.readCommands(ctx)
	cancel()
	wg.Wait()
	return err
}

func (b *Bridge) readCommands(ctx context.Context) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(b.port)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if err != nil {
				return fmt.Errorf("read serial: %w", err)
			}
			return nil
		case line := <-lines:
			b.handle(line)
		}
	}
}

func (b *Bridge) handle(line string) {
	wire, err := ParseLine(line)
	if errors.Is(err, ErrEmptyLine) {
		return
	}
	if err != nil {
		b.reply("err " + err.Error())
		return
	}
	resp, err := b.daemon.Send(wire)
	if err != nil {
		b.logger.Warn("daemon unreachable", logging.Error(err),
			logging.String(logging.FieldEventType, "serial_send_failed"))
		b.reply("err " + err.Error())
		return
	}
	if !resp.Accepted {
		b.reply("err " + resp.Message)
		return
	}
	b.logger.Debug("forwarded", logging.String(logging.FieldCommand, resp.Verb))
	b.reply("ok " + resp.Verb)
}

func (b *Bridge) pumpStatus(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	last := ""
	for {
		status, err := b.daemon.Status()
		if err == nil {
			text := FormatStatus(status.Printer)
			if text != last {
				b.reply(text)
				last = text
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// FormatStatus renders a snapshot as the pendant's two-field line.
func FormatStatus(st printer.Status) string {
	clean := strings.NewReplacer("|", "/", "\n", " ", "\r", " ")
	return clean.Replace(st.Title) + "|" + clean.Replace(st.Detail)
}

func (b *Bridge) reply(line string) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if _, err := io.WriteString(b.port, line+"\n"); err != nil {
		b.logger.Debug("serial write failed", logging.Error(err))
	}
}

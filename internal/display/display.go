// Package display drives the light engine that exposes slice images.
package display

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"pidish/internal/config"
	"pidish/internal/logging"
)

const frameTimeout = 10 * time.Second

// Display shows frames on the light engine. Calls block until the frame is up.
type Display interface {
	Black() error
	Show(imagePath string) error
	Shutdown() error
}

// New returns the renderer configured in cfg, or a logging Recorder when no
// renderer command is set.
func New(cfg config.Display, logger *slog.Logger) Display {
	logger = logging.NewComponentLogger(logger, "display")
	if cfg.Command == "" {
		return NewRecorder(logger)
	}
	return &commandDisplay{cfg: cfg, logger: logger, run: runCommand}
}

type commandDisplay struct {
	cfg    config.Display
	logger *slog.Logger
	run    func(ctx context.Context, name string, args []string) error
}

func (d *commandDisplay) Black() error {
	if d.cfg.BlackImage == "" {
		return errors.New("display.black_image is not configured")
	}
	return d.Show(d.cfg.BlackImage)
}

func (d *commandDisplay) Show(imagePath string) error {
	args := make([]string, 0, len(d.cfg.Args)+1)
	substituted := false
	for _, arg := range d.cfg.Args {
		if strings.Contains(arg, "{image}") {
			substituted = true
			arg = strings.ReplaceAll(arg, "{image}", imagePath)
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, imagePath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	if err := d.run(ctx, d.cfg.Command, args); err != nil {
		return fmt.Errorf("render %s: %w", imagePath, err)
	}
	d.logger.Debug("frame shown", logging.String("image", imagePath))
	return nil
}

func (d *commandDisplay) Shutdown() error {
	cmdline := strings.Fields(d.cfg.ShutdownCommand)
	if len(cmdline) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), frameTimeout)
	defer cancel()
	if err := d.run(ctx, cmdline[0], cmdline[1:]); err != nil {
		return fmt.Errorf("display shutdown: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args []string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

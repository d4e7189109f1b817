package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"pidish/internal/config"
	"pidish/internal/daemon"
	"pidish/internal/history"
	"pidish/internal/ipc"
	"pidish/internal/logging"
	"pidish/internal/preflight"
	"pidish/internal/variables"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the pidish daemon and blocks until a signal arrives or the
// control loop stops on its own. A fault shutdown is returned as an error
// so a supervisor restarts the process.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)
	logPreflight(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		logger.Error("open job history", logging.Error(err))
		return err
	}
	defer store.Close()

	vars, err := variables.Open(cfg.VariablesPath(), logger)
	if err != nil {
		return fmt.Errorf("load variables: %w", err)
	}

	d, err := daemon.New(cfg, store, vars, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	ipcServer, err := ipc.NewServer(signalCtx, cfg.Paths.SocketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	select {
	case <-signalCtx.Done():
		logger.Info("pidish daemon shutting down")
		d.Stop()
		return nil
	case <-d.Done():
	}

	if err := d.Err(); err != nil {
		logging.ErrorWithContext(logger, "control loop stopped", "control_loop_stopped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "printer hardware is disabled"),
			logging.String(logging.FieldErrorHint, "check wiring and the display, then restart the daemon"),
		)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.Bool("gpio_simulated", cfg.GPIO.Simulate),
		logging.String("gpio_device", cfg.GPIO.Device),
		logging.String("microstep_mode", cfg.Motion.MicrostepMode),
		logging.Float64("slice_thickness", cfg.Schedule.SliceThickness),
		logging.Int("breakpoints", len(cfg.Schedule.Breakpoints)),
		logging.String("display_command", cfg.Display.Command),
		logging.Bool("hotplug_enabled", cfg.Hotplug.Enabled),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
		logging.String("objects_dir", cfg.Paths.ObjectsDir),
	)
}

func logPreflight(logger *slog.Logger, cfg *config.Config) {
	for _, r := range preflight.Failed(preflight.RunAll(cfg)) {
		impact := "printing will fail"
		if r.Optional {
			impact = "some commands will not work"
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, impact),
			logging.String(logging.FieldErrorHint, "fix the path or setting named in detail, then restart"),
		)
	}
}

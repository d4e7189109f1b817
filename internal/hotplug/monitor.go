// Package hotplug watches the light engine's display connector through udev
// and reports when it is unplugged.
package hotplug

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"pidish/internal/config"
	"pidish/internal/logging"
)

// Connector states as reported by the DRM status file.
const (
	Connected    = "connected"
	Disconnected = "disconnected"
	Unknown      = "unknown"
)

// Monitor listens for DRM change uevents and re-reads the connector status
// after each one.
type Monitor struct {
	statusPath     string
	logger         *slog.Logger
	onDisconnect   func()
	readStatusFile func(string) ([]byte, error)

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	last    string
}

// New returns nil when hotplug watching is disabled.
func New(cfg config.Hotplug, logger *slog.Logger, onDisconnect func()) *Monitor {
	if !cfg.Enabled || strings.TrimSpace(cfg.ConnectorStatus) == "" {
		return nil
	}
	return &Monitor{
		statusPath:     cfg.ConnectorStatus,
		logger:         logging.NewComponentLogger(logger, "hotplug"),
		onDisconnect:   onDisconnect,
		readStatusFile: os.ReadFile,
	}
}

// Start connects to the udev netlink socket. Failure to connect is logged
// and otherwise ignored.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	m.last = m.readStatus()

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run the daemon with access to netlink sockets"),
			logging.String(logging.FieldImpact, "display unplug will not pause jobs"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
		logging.String("status_file", m.statusPath),
		logging.String("connector", m.last),
	)
	return nil
}

// Stop disconnects from udev.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false
	m.logger.Info("hotplug monitor stopped", logging.String(logging.FieldEventType, "hotplug_monitor_stopped"))
}

// Running reports whether the monitor is connected.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Connector returns the last observed connector state.
func (m *Monitor) Connector() string {
	if m == nil {
		return Unknown
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			logging.WarnWithContext(m.logger, "netlink monitor error", "netlink_monitor_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "display unplug detection may be affected"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=drm, ACTION=change.
func buildMatcher() netlink.Matcher {
	action := "change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "drm",
		},
	})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	status := m.readStatus()

	m.mu.Lock()
	previous := m.last
	m.last = status
	m.mu.Unlock()

	m.logger.Debug("drm change event",
		logging.String("kobj", uevent.KObj),
		logging.String("connector", status),
	)
	if status != Disconnected || previous == Disconnected {
		return
	}
	logging.WarnWithContext(m.logger, "display disconnected", "display_disconnected",
		logging.String(logging.FieldErrorHint, "reconnect the projector and unpause"),
		logging.String(logging.FieldImpact, "running job paused"),
	)
	if m.onDisconnect != nil {
		m.onDisconnect()
	}
}

func (m *Monitor) readStatus() string {
	data, err := m.readStatusFile(m.statusPath)
	if err != nil {
		return Unknown
	}
	switch status := strings.TrimSpace(string(data)); status {
	case Connected, Disconnected:
		return status
	default:
		return Unknown
	}
}

package testsupport

import (
	"path/filepath"
	"testing"

	"pidish/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// GPIO is simulated and every wait is shortened to keep job tests fast.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ObjectsDir = filepath.Join(base, "objects")
	cfgVal.Paths.SocketPath = filepath.Join(base, "state", "pidish.sock")
	cfgVal.Calibration.ImageDir = filepath.Join(base, "calibrate")
	cfgVal.GPIO.Simulate = true
	cfgVal.Schedule.DipWaitSeconds = 0
	cfgVal.Schedule.ResinSettleSeconds = 0
	cfgVal.Channel.PollIntervalMS = 5
	cfgVal.Motion.RealtimePriority = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBreakpoints replaces the slice direction table.
func WithBreakpoints(bps ...config.Breakpoint) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Schedule.Breakpoints = bps
	}
}

// WithCalibrationHeight sets the calibration height so the sweep has layers layers.
func WithCalibrationHeight(layers int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Calibration.Height = float64(layers) * b.cfg.Schedule.SliceThickness
	}
}

// WithPollInterval overrides the command poll interval in milliseconds.
func WithPollInterval(ms int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Channel.PollIntervalMS = ms
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
	ObjectsDir string `toml:"objects_dir"`
}

// GPIO selects the pin driver and the BCM line numbers wired to the stepper driver.
type GPIO struct {
	Device    string `toml:"device"`
	Simulate  bool   `toml:"simulate"`
	EnablePin int    `toml:"enable_pin"`
	MS1Pin    int    `toml:"ms1_pin"`
	MS2Pin    int    `toml:"ms2_pin"`
	MS3Pin    int    `toml:"ms3_pin"`
	ResetPin  int    `toml:"reset_pin"`
	SleepPin  int    `toml:"sleep_pin"`
	StepPin   int    `toml:"step_pin"`
	DirPin    int    `toml:"dir_pin"`
}

// Motion describes lift geometry. Distances are microns, speeds microns per second.
type Motion struct {
	MicronsPerFullStep float64 `toml:"microns_per_full_step"`
	MicrostepMode      string  `toml:"microstep_mode"`
	LiftSpeed          float64 `toml:"lift_speed"`
	LiftLength         float64 `toml:"lift_length"`
	ResinTop           float64 `toml:"resin_top"`
	RealtimePriority   int     `toml:"realtime_priority"`
}

// Breakpoint is one row of the slice direction table.
type Breakpoint struct {
	Layer  int     `toml:"layer"`
	Method string  `toml:"method"`
	Factor float64 `toml:"factor"`
}

// Schedule holds the per-layer motion parameters and the slice direction table.
type Schedule struct {
	SliceThickness     float64      `toml:"slice_thickness"`
	DipDistance        float64      `toml:"dip_distance"`
	DipSpeedDown       float64      `toml:"dip_speed_down"`
	DipSpeedUp         float64      `toml:"dip_speed_up"`
	DipWaitSeconds     float64      `toml:"dip_wait_seconds"`
	ResinSettleSeconds float64      `toml:"resin_settle_seconds"`
	SlowDipDistance    float64      `toml:"slow_dip_distance"`
	SlowDipSpeed       float64      `toml:"slow_dip_speed"`
	Breakpoints        []Breakpoint `toml:"breakpoints"`
}

// Calibration configures the synthetic exposure sweep.
type Calibration struct {
	Height      float64 `toml:"height"`
	BoostLayers int     `toml:"boost_layers"`
	BoostFactor float64 `toml:"boost_factor"`
	ImageDir    string  `toml:"image_dir"`
}

// Channel tunes the command/status link between front end and control loop.
type Channel struct {
	PollIntervalMS int `toml:"poll_interval_ms"`
	QueueSize      int `toml:"queue_size"`
}

// Display configures the external light-engine renderer.
type Display struct {
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	BlackImage      string   `toml:"black_image"`
	FocusImage      string   `toml:"focus_image"`
	ShutdownCommand string   `toml:"shutdown_command"`
}

// Hotplug configures the light-engine connector watcher.
type Hotplug struct {
	Enabled         bool   `toml:"enabled"`
	ConnectorStatus string `toml:"connector_status"`
}

// Serial configures the optional pendant bridge.
type Serial struct {
	Port string `toml:"port"`
	Baud int    `toml:"baud"`
}

// Notifications configures ntfy job alerts. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for pidish.
//
// Configuration sections by subsystem:
//   - Paths: state, logs, socket, and object directories
//   - GPIO: pin driver and stepper driver wiring
//   - Motion: lift geometry and speeds
//   - Schedule: dip parameters and the slice direction table
//   - Calibration: exposure sweep geometry and swatch images
//   - Channel: command polling interval and queue depth
//   - Display: light-engine renderer command
//   - Hotplug: connector watcher
//   - Serial: pendant bridge port
//   - Notifications: ntfy alerts for finished jobs
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	GPIO          GPIO          `toml:"gpio"`
	Motion        Motion        `toml:"motion"`
	Schedule      Schedule      `toml:"schedule"`
	Calibration   Calibration   `toml:"calibration"`
	Channel       Channel       `toml:"channel"`
	Display       Display       `toml:"display"`
	Hotplug       Hotplug       `toml:"hotplug"`
	Serial        Serial        `toml:"serial"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pidish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, filepath.Dir(c.Paths.SocketPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// VariablesPath is the persisted printer variables file.
func (c *Config) VariablesPath() string {
	return filepath.Join(c.Paths.StateDir, "printer_variables.txt")
}

// HistoryPath is the SQLite job history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath guards the GPIO lines against a second daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pidish.lock")
}

// PIDPath records the running daemon's process ID.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "pidish.pid")
}

// LogPath is the daemon's log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "pidish.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}

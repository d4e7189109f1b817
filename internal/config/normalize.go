package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDisplay(); err != nil {
		return err
	}
	c.normalizeMotion()
	c.normalizeSchedule()
	c.normalizeChannel()
	c.normalizeSerial()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.ObjectsDir, err = expandPath(c.Paths.ObjectsDir); err != nil {
		return fmt.Errorf("paths.objects_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = filepath.Join(c.Paths.StateDir, defaultSocketName)
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if c.Calibration.ImageDir, err = expandPath(c.Calibration.ImageDir); err != nil {
		return fmt.Errorf("calibration.image_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDisplay() error {
	c.Display.Command = strings.TrimSpace(c.Display.Command)
	var err error
	if c.Display.BlackImage, err = expandPath(c.Display.BlackImage); err != nil {
		return fmt.Errorf("display.black_image: %w", err)
	}
	if c.Display.FocusImage, err = expandPath(c.Display.FocusImage); err != nil {
		return fmt.Errorf("display.focus_image: %w", err)
	}
	return nil
}

func (c *Config) normalizeMotion() {
	c.Motion.MicrostepMode = strings.ToLower(strings.TrimSpace(c.Motion.MicrostepMode))
	if c.Motion.MicrostepMode == "" {
		c.Motion.MicrostepMode = defaultMicrostepMode
	}
}

func (c *Config) normalizeSchedule() {
	if len(c.Schedule.Breakpoints) == 0 {
		c.Schedule.Breakpoints = defaultBreakpoints()
	}
	for i := range c.Schedule.Breakpoints {
		bp := &c.Schedule.Breakpoints[i]
		bp.Method = canonicalMethod(bp.Method)
	}
}

// canonicalMethod folds the spellings used by older slice direction tables.
func canonicalMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	switch method {
	case "continuous":
		return "cont"
	case "slow dip", "slowdip", "slow-dip":
		return "slow_dip"
	default:
		return method
	}
}

func (c *Config) normalizeChannel() {
	if c.Channel.PollIntervalMS <= 0 {
		c.Channel.PollIntervalMS = defaultPollIntervalMS
	}
	if c.Channel.QueueSize <= 0 {
		c.Channel.QueueSize = defaultQueueSize
	}
}

func (c *Config) normalizeSerial() {
	c.Serial.Port = strings.TrimSpace(c.Serial.Port)
	if c.Serial.Baud <= 0 {
		c.Serial.Baud = defaultSerialBaud
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

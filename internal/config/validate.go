package config

import (
	"errors"
	"fmt"
	"strings"
)

var microstepModes = map[string]bool{
	"full":      true,
	"half":      true,
	"quarter":   true,
	"eighth":    true,
	"sixteenth": true,
}

var scheduleMethods = map[string]bool{
	"dip":      true,
	"cont":     true,
	"bottom":   true,
	"slow_dip": true,
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateGPIO(); err != nil {
		return err
	}
	if err := c.validateMotion(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateCalibration(); err != nil {
		return err
	}
	if err := c.validateDisplay(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeoutSeconds < 0 {
		return errors.New("notifications.request_timeout_seconds must not be negative")
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDisplay() error {
	if c.Display.Command == "" {
		return nil
	}
	if c.Display.BlackImage == "" {
		return errors.New("display.black_image must be set when display.command is set")
	}
	if c.Display.FocusImage == "" {
		return errors.New("display.focus_image must be set when display.command is set")
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateGPIO() error {
	if c.GPIO.Simulate {
		return nil
	}
	if strings.TrimSpace(c.GPIO.Device) == "" {
		return errors.New("gpio.device must be set unless gpio.simulate is true")
	}
	pins := map[string]int{
		"enable_pin": c.GPIO.EnablePin,
		"ms1_pin":    c.GPIO.MS1Pin,
		"ms2_pin":    c.GPIO.MS2Pin,
		"ms3_pin":    c.GPIO.MS3Pin,
		"reset_pin":  c.GPIO.ResetPin,
		"sleep_pin":  c.GPIO.SleepPin,
		"step_pin":   c.GPIO.StepPin,
		"dir_pin":    c.GPIO.DirPin,
	}
	seen := make(map[int]string, len(pins))
	for name, pin := range pins {
		if pin < 0 || pin > 53 {
			return fmt.Errorf("gpio.%s must be a BCM line between 0 and 53, got %d", name, pin)
		}
		if other, dup := seen[pin]; dup {
			return fmt.Errorf("gpio.%s and gpio.%s share line %d", name, other, pin)
		}
		seen[pin] = name
	}
	return nil
}

func (c *Config) validateMotion() error {
	if c.Motion.MicronsPerFullStep <= 0 {
		return errors.New("motion.microns_per_full_step must be positive")
	}
	if !microstepModes[c.Motion.MicrostepMode] {
		return fmt.Errorf("motion.microstep_mode %q is not one of full, half, quarter, eighth, sixteenth", c.Motion.MicrostepMode)
	}
	if c.Motion.LiftSpeed <= 0 {
		return errors.New("motion.lift_speed must be positive")
	}
	if c.Motion.LiftLength <= 0 {
		return errors.New("motion.lift_length must be positive")
	}
	if c.Motion.ResinTop < 0 || c.Motion.ResinTop > c.Motion.LiftLength {
		return errors.New("motion.resin_top must lie within motion.lift_length")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	s := c.Schedule
	if s.SliceThickness <= 0 {
		return errors.New("schedule.slice_thickness must be positive")
	}
	if s.DipDistance < s.SliceThickness || s.SlowDipDistance < s.SliceThickness {
		return errors.New("schedule dip distances must be at least one slice_thickness")
	}
	if s.DipSpeedDown <= 0 || s.DipSpeedUp <= 0 || s.SlowDipSpeed <= 0 {
		return errors.New("schedule dip speeds must be positive")
	}
	if s.DipWaitSeconds < 0 || s.ResinSettleSeconds < 0 {
		return errors.New("schedule wait times must not be negative")
	}
	return ValidateBreakpoints(s.Breakpoints)
}

// ValidateBreakpoints checks a slice direction table: non-empty, starting at
// layer 0, strictly ascending, known methods, and positive factors.
func ValidateBreakpoints(bps []Breakpoint) error {
	if len(bps) == 0 {
		return errors.New("schedule.breakpoints must not be empty")
	}
	if bps[0].Layer != 0 {
		return fmt.Errorf("schedule.breakpoints must start at layer 0, got %d", bps[0].Layer)
	}
	for i, bp := range bps {
		if !scheduleMethods[bp.Method] {
			return fmt.Errorf("schedule.breakpoints[%d]: unknown method %q", i, bp.Method)
		}
		if bp.Factor <= 0 {
			return fmt.Errorf("schedule.breakpoints[%d]: factor must be positive", i)
		}
		if i > 0 && bp.Layer <= bps[i-1].Layer {
			return fmt.Errorf("schedule.breakpoints[%d]: layer %d is not after layer %d", i, bp.Layer, bps[i-1].Layer)
		}
	}
	return nil
}

func (c *Config) validateCalibration() error {
	if c.Calibration.Height < c.Schedule.SliceThickness {
		return errors.New("calibration.height must be at least one slice_thickness")
	}
	if c.Calibration.BoostLayers < 0 {
		return errors.New("calibration.boost_layers must not be negative")
	}
	if c.Calibration.BoostFactor <= 0 {
		return errors.New("calibration.boost_factor must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

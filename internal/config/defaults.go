package config

import "time"

const (
	defaultConfigPath = "~/.config/pidish/config.toml"
	defaultStateDir   = "~/.local/share/pidish"
	defaultLogDir     = "~/.local/share/pidish/logs"
	defaultObjectsDir = "~/objects"
	defaultSocketName = "pidish.sock"
	defaultGPIODevice = "/dev/gpiomem"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	// BCM line numbers for header pins 40, 38, 37, 36, 35, 33, 32, 31.
	defaultEnablePin = 21
	defaultMS1Pin    = 20
	defaultMS2Pin    = 26
	defaultMS3Pin    = 16
	defaultResetPin  = 19
	defaultSleepPin  = 13
	defaultStepPin   = 12
	defaultDirPin    = 6

	defaultMicronsPerFullStep = 7.03125
	defaultMicrostepMode      = "sixteenth"
	defaultLiftSpeed          = 5280
	defaultLiftLength         = 103000
	defaultResinTop           = 25400
	defaultRealtimePriority   = -10

	defaultSliceThickness     = 100
	defaultDipDistance        = 3000
	defaultDipSpeed           = 1000
	defaultDipWaitSeconds     = 2.0
	defaultResinSettleSeconds = 8.0
	defaultSlowDipDistance    = 1000
	defaultSlowDipSpeed       = 20
	defaultFirstLayerFactor   = 2.5

	defaultCalibrationHeight = 5000
	defaultBoostLayers       = 3
	defaultCalibrationDir    = "~/.local/share/pidish/calibrate"

	defaultPollIntervalMS = 500
	defaultQueueSize      = 16

	defaultConnectorStatus = "/sys/class/drm/card0-HDMI-A-1/status"
	defaultSerialBaud      = 115200

	defaultNtfyTimeoutSeconds = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			ObjectsDir: defaultObjectsDir,
		},
		GPIO: GPIO{
			Device:    defaultGPIODevice,
			EnablePin: defaultEnablePin,
			MS1Pin:    defaultMS1Pin,
			MS2Pin:    defaultMS2Pin,
			MS3Pin:    defaultMS3Pin,
			ResetPin:  defaultResetPin,
			SleepPin:  defaultSleepPin,
			StepPin:   defaultStepPin,
			DirPin:    defaultDirPin,
		},
		Motion: Motion{
			MicronsPerFullStep: defaultMicronsPerFullStep,
			MicrostepMode:      defaultMicrostepMode,
			LiftSpeed:          defaultLiftSpeed,
			LiftLength:         defaultLiftLength,
			ResinTop:           defaultResinTop,
			RealtimePriority:   defaultRealtimePriority,
		},
		Schedule: Schedule{
			SliceThickness:     defaultSliceThickness,
			DipDistance:        defaultDipDistance,
			DipSpeedDown:       defaultDipSpeed,
			DipSpeedUp:         defaultDipSpeed,
			DipWaitSeconds:     defaultDipWaitSeconds,
			ResinSettleSeconds: defaultResinSettleSeconds,
			SlowDipDistance:    defaultSlowDipDistance,
			SlowDipSpeed:       defaultSlowDipSpeed,
			Breakpoints:        defaultBreakpoints(),
		},
		Calibration: Calibration{
			Height:      defaultCalibrationHeight,
			BoostLayers: defaultBoostLayers,
			BoostFactor: defaultFirstLayerFactor,
			ImageDir:    defaultCalibrationDir,
		},
		Channel: Channel{
			PollIntervalMS: defaultPollIntervalMS,
			QueueSize:      defaultQueueSize,
		},
		Hotplug: Hotplug{
			ConnectorStatus: defaultConnectorStatus,
		},
		Serial: Serial{
			Baud: defaultSerialBaud,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

func defaultBreakpoints() []Breakpoint {
	return []Breakpoint{
		{Layer: 0, Method: "dip", Factor: defaultFirstLayerFactor},
		{Layer: 3, Method: "dip", Factor: 1.0},
	}
}

// PollInterval returns the channel poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Channel.PollIntervalMS) * time.Millisecond
}

// DipWait returns the post-dip wait as a duration.
func (c *Config) DipWait() time.Duration {
	return seconds(c.Schedule.DipWaitSeconds)
}

// ResinSettle returns the resin settle delay as a duration.
func (c *Config) ResinSettle() time.Duration {
	return seconds(c.Schedule.ResinSettleSeconds)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

package motion

import (
	"log/slog"

	"pidish/internal/config"
)

// OptionsFromConfig maps the gpio and motion sections onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	mode, err := ParseMode(cfg.Motion.MicrostepMode)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Pins: Pins{
			Enable: cfg.GPIO.EnablePin,
			MS1:    cfg.GPIO.MS1Pin,
			MS2:    cfg.GPIO.MS2Pin,
			MS3:    cfg.GPIO.MS3Pin,
			Reset:  cfg.GPIO.ResetPin,
			Sleep:  cfg.GPIO.SleepPin,
			Step:   cfg.GPIO.StepPin,
			Dir:    cfg.GPIO.DirPin,
		},
		Mode:               mode,
		MicronsPerFullStep: cfg.Motion.MicronsPerFullStep,
		Logger:             logger,
	}, nil
}

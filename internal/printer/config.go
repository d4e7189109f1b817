package printer

import (
	"log/slog"

	"pidish/internal/config"
	"pidish/internal/schedule"
)

// OptionsFromConfig fills the tunables of Options from cfg. Hardware,
// channel and observer are left to the caller.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) (Options, error) {
	params, err := schedule.FromConfig(cfg)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Schedule: params,
		Calibration: Calibration{
			Layers:      int(cfg.Calibration.Height / cfg.Schedule.SliceThickness),
			BoostLayers: cfg.Calibration.BoostLayers,
			BoostFactor: cfg.Calibration.BoostFactor,
			ImageDir:    cfg.Calibration.ImageDir,
		},
		LiftSpeed:    cfg.Motion.LiftSpeed,
		LiftLength:   cfg.Motion.LiftLength,
		ResinTop:     cfg.Motion.ResinTop,
		FocusImage:   cfg.Display.FocusImage,
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	}, nil
}

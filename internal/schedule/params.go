package schedule

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"pidish/internal/config"
)

// OverrideFile is looked up in an object directory to replace the configured
// schedule for that job.
const OverrideFile = "schedule.yaml"

// Params is the full per-job schedule: motion constants plus breakpoints.
// Distances are microns and speeds microns per second.
type Params struct {
	SliceThickness  float64
	DipDistance     float64
	DipSpeedDown    float64
	DipSpeedUp      float64
	DipWait         time.Duration
	ResinSettle     time.Duration
	SlowDipDistance float64
	SlowDipSpeed    float64
	Breakpoints     []Breakpoint
}

// FromConfig converts the schedule section.
func FromConfig(cfg *config.Config) (Params, error) {
	bps, err := convertBreakpoints(cfg.Schedule.Breakpoints)
	if err != nil {
		return Params{}, err
	}
	return Params{
		SliceThickness:  cfg.Schedule.SliceThickness,
		DipDistance:     cfg.Schedule.DipDistance,
		DipSpeedDown:    cfg.Schedule.DipSpeedDown,
		DipSpeedUp:      cfg.Schedule.DipSpeedUp,
		DipWait:         cfg.DipWait(),
		ResinSettle:     cfg.ResinSettle(),
		SlowDipDistance: cfg.Schedule.SlowDipDistance,
		SlowDipSpeed:    cfg.Schedule.SlowDipSpeed,
		Breakpoints:     bps,
	}, nil
}

func convertBreakpoints(in []config.Breakpoint) ([]Breakpoint, error) {
	if err := config.ValidateBreakpoints(in); err != nil {
		return nil, err
	}
	out := make([]Breakpoint, 0, len(in))
	for _, bp := range in {
		method, err := ParseMethod(bp.Method)
		if err != nil {
			return nil, err
		}
		out = append(out, Breakpoint{Layer: bp.Layer, Method: method, Factor: bp.Factor})
	}
	return out, nil
}

type overrideDoc struct {
	Breakpoints []struct {
		Layer  int     `yaml:"layer"`
		Method string  `yaml:"method"`
		Factor float64 `yaml:"factor"`
	} `yaml:"breakpoints"`
	DipDistance        *float64 `yaml:"dip_distance"`
	DipSpeedDown       *float64 `yaml:"dip_speed_down"`
	DipSpeedUp         *float64 `yaml:"dip_speed_up"`
	DipWaitSeconds     *float64 `yaml:"dip_wait_seconds"`
	ResinSettleSeconds *float64 `yaml:"resin_settle_seconds"`
	SlowDipDistance    *float64 `yaml:"slow_dip_distance"`
	SlowDipSpeed       *float64 `yaml:"slow_dip_speed"`
}

// LoadOverride applies dir/schedule.yaml on top of base. The boolean reports
// whether a file was found.
func LoadOverride(dir string, base Params) (Params, bool, error) {
	path := filepath.Join(dir, OverrideFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return base, false, nil
		}
		return base, false, fmt.Errorf("read %s: %w", path, err)
	}

	var doc overrideDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return base, false, fmt.Errorf("parse %s: %w", path, err)
	}

	out := base
	if len(doc.Breakpoints) > 0 {
		raw := make([]config.Breakpoint, 0, len(doc.Breakpoints))
		for _, bp := range doc.Breakpoints {
			method, err := ParseMethod(bp.Method)
			if err != nil {
				return base, false, fmt.Errorf("%s: %w", path, err)
			}
			raw = append(raw, config.Breakpoint{Layer: bp.Layer, Method: method.String(), Factor: bp.Factor})
		}
		if out.Breakpoints, err = convertBreakpoints(raw); err != nil {
			return base, false, fmt.Errorf("%s: %w", path, err)
		}
	}
	setFloat(&out.DipDistance, doc.DipDistance)
	setFloat(&out.DipSpeedDown, doc.DipSpeedDown)
	setFloat(&out.DipSpeedUp, doc.DipSpeedUp)
	setFloat(&out.SlowDipDistance, doc.SlowDipDistance)
	setFloat(&out.SlowDipSpeed, doc.SlowDipSpeed)
	if doc.DipWaitSeconds != nil {
		out.DipWait = time.Duration(*doc.DipWaitSeconds * float64(time.Second))
	}
	if doc.ResinSettleSeconds != nil {
		out.ResinSettle = time.Duration(*doc.ResinSettleSeconds * float64(time.Second))
	}
	if err := out.validate(); err != nil {
		return base, false, fmt.Errorf("%s: %w", path, err)
	}
	return out, true, nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func (p Params) validate() error {
	if p.DipDistance < p.SliceThickness || p.SlowDipDistance < p.SliceThickness {
		return errors.New("dip distances must be at least one slice thickness")
	}
	if p.DipSpeedDown <= 0 || p.DipSpeedUp <= 0 || p.SlowDipSpeed <= 0 {
		return errors.New("dip speeds must be positive")
	}
	if p.DipWait < 0 || p.ResinSettle < 0 {
		return errors.New("wait times must not be negative")
	}
	return nil
}

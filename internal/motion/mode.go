package motion

import (
	"fmt"
	"strings"
)

// FullStepsPerRevolution is the motor's native step count per shaft turn.
const FullStepsPerRevolution = 200

// Mode is a driver microstep setting: the MS1..MS3 line levels and the number
// of pulses per full step.
type Mode struct {
	Name       string
	MS1        bool
	MS2        bool
	MS3        bool
	Multiplier int
}

var (
	FullStep      = Mode{Name: "full", Multiplier: 1}
	HalfStep      = Mode{Name: "half", MS1: true, Multiplier: 2}
	QuarterStep   = Mode{Name: "quarter", MS2: true, Multiplier: 4}
	EighthStep    = Mode{Name: "eighth", MS1: true, MS2: true, Multiplier: 8}
	SixteenthStep = Mode{Name: "sixteenth", MS1: true, MS2: true, MS3: true, Multiplier: 16}
)

var modes = []Mode{FullStep, HalfStep, QuarterStep, EighthStep, SixteenthStep}

// ParseMode resolves a mode by name.
func ParseMode(name string) (Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, m := range modes {
		if m.Name == name {
			return m, nil
		}
	}
	return Mode{}, fmt.Errorf("unknown microstep mode %q", name)
}

// StepsPerRevolution returns pulses per shaft turn in this mode.
func (m Mode) StepsPerRevolution() int {
	return FullStepsPerRevolution * m.Multiplier
}

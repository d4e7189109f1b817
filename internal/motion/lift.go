package motion

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"pidish/internal/gpio"
	"pidish/internal/logging"
)

const (
	// MaxStepRate keeps each half-period at or above one microsecond.
	MaxStepRate = 500_000.0

	resetPulse  = 250 * time.Millisecond
	chargeDelay = 2 * time.Millisecond
)

// ErrInvalidSpeed is returned when a move is requested with a non-positive speed.
var ErrInvalidSpeed = errors.New("motion: speed must be positive")

// ErrOutOfRange reports a distance that cannot be expressed in steps.
var ErrOutOfRange = errors.New("motion: distance out of range")

// maxSteps keeps step counts exact in a float64 and leaves headroom for
// position arithmetic.
const maxSteps = 1 << 52

// Pins are the BCM lines wired to the driver board.
type Pins struct {
	Enable int
	MS1    int
	MS2    int
	MS3    int
	Reset  int
	Sleep  int
	Step   int
	Dir    int
}

// Options configures a Lift.
type Options struct {
	Pins               Pins
	Mode               Mode
	MicronsPerFullStep float64
	Pacer              Pacer
	Sleep              func(time.Duration)
	Logger             *slog.Logger
}

// Lift is a single stepper axis with open-loop position tracking.
type Lift struct {
	drv            gpio.Driver
	pins           Pins
	mode           Mode
	micronsPerStep float64
	pacer          Pacer
	sleep          func(time.Duration)
	logger         *slog.Logger

	// position is written only by the goroutine running moves; the atomic
	// lets status readers observe it mid-move.
	position atomic.Int64
}

// New configures every control line, selects the microstep mode, and resets
// the driver. The lift starts at position zero.
func New(drv gpio.Driver, opts Options) (*Lift, error) {
	if drv == nil {
		return nil, errors.New("motion: gpio driver is required")
	}
	if opts.MicronsPerFullStep <= 0 {
		return nil, fmt.Errorf("motion: microns per full step must be positive, got %v", opts.MicronsPerFullStep)
	}
	if opts.Mode.Multiplier == 0 {
		opts.Mode = SixteenthStep
	}
	if opts.Pacer == nil {
		opts.Pacer = SpinPacer{}
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	l := &Lift{
		drv:            drv,
		pins:           opts.Pins,
		mode:           opts.Mode,
		micronsPerStep: opts.MicronsPerFullStep / float64(opts.Mode.Multiplier),
		pacer:          opts.Pacer,
		sleep:          opts.Sleep,
		logger:         logging.NewComponentLogger(opts.Logger, "motion"),
	}

	p := opts.Pins
	for _, pin := range []int{p.Enable, p.MS1, p.MS2, p.MS3, p.Reset, p.Sleep, p.Step, p.Dir} {
		if err := drv.ConfigureOutput(pin); err != nil {
			return nil, fmt.Errorf("configure line %d: %w", pin, err)
		}
	}

	// Control lines are active-low: enable low, sleep and reset high.
	levels := []struct {
		pin  int
		high bool
	}{
		{p.MS1, l.mode.MS1},
		{p.MS2, l.mode.MS2},
		{p.MS3, l.mode.MS3},
		{p.Step, false},
		{p.Dir, false},
		{p.Sleep, true},
		{p.Reset, true},
		{p.Enable, false},
	}
	for _, lv := range levels {
		if err := drv.SetPin(lv.pin, lv.high); err != nil {
			return nil, fmt.Errorf("initialise line %d: %w", lv.pin, err)
		}
	}

	if err := l.Reset(); err != nil {
		return nil, err
	}

	l.logger.Info("lift ready",
		logging.String("microstep_mode", l.mode.Name),
		logging.Float64("microns_per_step", l.micronsPerStep),
		logging.Int("steps_per_revolution", l.mode.StepsPerRevolution()),
	)
	return l, nil
}

// Reset pulses the driver's reset line low.
func (l *Lift) Reset() error {
	if err := l.drv.SetPin(l.pins.Reset, false); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	l.sleep(resetPulse)
	if err := l.drv.SetPin(l.pins.Reset, true); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	return nil
}

// Enable wakes the driver so the coils hold current.
func (l *Lift) Enable() error {
	if err := l.drv.SetPin(l.pins.Sleep, true); err != nil {
		return fmt.Errorf("wake driver: %w", err)
	}
	l.sleep(chargeDelay)
	return nil
}

// Disable puts the driver to sleep, releasing holding current.
func (l *Lift) Disable() error {
	if err := l.drv.SetPin(l.pins.Sleep, false); err != nil {
		return fmt.Errorf("sleep driver: %w", err)
	}
	return nil
}

// MoveSteps issues |steps| pulses at speed steps per second. Negative steps
// move towards home.
func (l *Lift) MoveSteps(steps int64, speed float64) error {
	if steps == 0 {
		return nil
	}
	if speed <= 0 || math.IsNaN(speed) {
		return ErrInvalidSpeed
	}
	if speed > MaxStepRate {
		speed = MaxStepRate
	}
	half := time.Duration(float64(time.Second) / (2 * speed))

	delta := int64(1)
	forward := true
	if steps < 0 {
		steps = -steps
		delta = -1
		forward = false
	}
	if err := l.drv.SetPin(l.pins.Dir, forward); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}

	for i := int64(0); i < steps; i++ {
		if err := l.drv.SetPin(l.pins.Step, true); err != nil {
			return fmt.Errorf("step %d of %d: %w", i, steps, err)
		}
		l.pacer.Hold(half)
		l.position.Add(delta)
		if err := l.drv.SetPin(l.pins.Step, false); err != nil {
			return fmt.Errorf("step %d of %d: %w", i, steps, err)
		}
		l.pacer.Hold(half)
	}
	return nil
}

// MoveMicrons moves a relative distance at speed microns per second.
func (l *Lift) MoveMicrons(distance, speed float64) error {
	steps, err := l.stepsFor(distance)
	if err != nil {
		return err
	}
	return l.MoveSteps(steps, speed/l.micronsPerStep)
}

// MoveTo moves to an absolute position in microns.
func (l *Lift) MoveTo(target, speed float64) error {
	steps, err := l.stepsFor(target)
	if err != nil {
		return err
	}
	return l.MoveSteps(steps-l.position.Load(), speed/l.micronsPerStep)
}

// Home returns the lift to position zero.
func (l *Lift) Home(speed float64) error {
	return l.MoveSteps(-l.position.Load(), speed/l.micronsPerStep)
}

// ResetZero declares the current position to be home.
func (l *Lift) ResetZero() {
	l.position.Store(0)
}

func (l *Lift) stepsFor(microns float64) (int64, error) {
	steps := math.Round(microns / l.micronsPerStep)
	if math.IsNaN(steps) || math.Abs(steps) > maxSteps {
		return 0, fmt.Errorf("%w: %g microns", ErrOutOfRange, microns)
	}
	return int64(steps), nil
}

// Position returns steps from home.
func (l *Lift) Position() int64 {
	return l.position.Load()
}

// PositionMicrons returns the distance from home in microns.
func (l *Lift) PositionMicrons() float64 {
	return float64(l.position.Load()) * l.micronsPerStep
}

// Angle returns the shaft angle in radians within one revolution.
func (l *Lift) Angle() float64 {
	spr := int64(l.mode.StepsPerRevolution())
	mod := l.position.Load() % spr
	if mod < 0 {
		mod += spr
	}
	return float64(mod) * 2 * math.Pi / float64(spr)
}

// MicronsPerStep returns the travel per pulse in the active mode.
func (l *Lift) MicronsPerStep() float64 {
	return l.micronsPerStep
}

// Mode returns the active microstep mode.
func (l *Lift) Mode() Mode {
	return l.mode
}

// Shutdown sleeps the driver and releases the gpio device.
func (l *Lift) Shutdown() error {
	disableErr := l.Disable()
	closeErr := l.drv.Close()
	return errors.Join(disableErr, closeErr)
}

package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/statekit"

	"pidish/internal/display"
	"pidish/internal/logging"
	"pidish/internal/schedule"
)

// ErrFault is returned by Run after an unrecoverable hardware failure. The
// plate has been cleaned up and the final status was ShuttingDown.
var ErrFault = errors.New("printer fault")

// Motor is the lift as seen by the controller.
type Motor interface {
	Enable() error
	Disable() error
	MoveMicrons(distance, speed float64) error
	MoveTo(target, speed float64) error
	Home(speed float64) error
	ResetZero()
	PositionMicrons() float64
	Shutdown() error
}

// Channel is the control-loop end of the command/status link.
type Channel interface {
	Poll() (Command, bool)
	Wait(timeout time.Duration) (Command, bool)
	Publish(Status)
	Done() <-chan struct{}
}

// Calibration describes the exposure sweep.
type Calibration struct {
	Layers      int
	BoostLayers int
	BoostFactor float64
	ImageDir    string
}

// CalibrationFrames is the number of sweep images after the base frame.
const CalibrationFrames = 8

// Image returns the i-th sweep image, 0 being the base frame.
func (c Calibration) Image(i int) string {
	return filepath.Join(c.ImageDir, fmt.Sprintf("calibrate%04d.png", i))
}

// Options wires a Controller.
type Options struct {
	Motor        Motor
	Display      display.Display
	Channel      Channel
	Schedule     schedule.Params
	Calibration  Calibration
	LiftSpeed    float64
	LiftLength   float64
	ResinTop     float64
	FocusImage   string
	PollInterval time.Duration
	Observer     Observer
	Logger       *slog.Logger
	Sleep        func(time.Duration)
	Now          func() time.Time
	NewID        func() string
}

// Controller owns the motor and display and runs jobs one at a time. All of
// its methods except State must be called from the control goroutine.
type Controller struct {
	motor    Motor
	display  display.Display
	channel  Channel
	schedule schedule.Params
	cali     Calibration

	liftSpeed  float64
	liftLength float64
	resinTop   float64
	focusImage string
	poll       time.Duration

	observer Observer
	logger   *slog.Logger
	sleep    func(time.Duration)
	now      func() time.Time
	newID    func() string

	mc     *machineContext
	interp *statekit.Interpreter[machineContext]
}

// New validates opts and builds the state machine in Ready.
func New(opts Options) (*Controller, error) {
	if opts.Motor == nil {
		return nil, errors.New("printer: motor is required")
	}
	if opts.Display == nil {
		return nil, errors.New("printer: display is required")
	}
	if opts.Channel == nil {
		return nil, errors.New("printer: channel is required")
	}
	if opts.LiftSpeed <= 0 {
		return nil, errors.New("printer: lift speed must be positive")
	}
	if opts.Schedule.SliceThickness <= 0 {
		return nil, errors.New("printer: slice thickness must be positive")
	}
	c := &Controller{
		motor:      opts.Motor,
		display:    opts.Display,
		channel:    opts.Channel,
		schedule:   opts.Schedule,
		cali:       opts.Calibration,
		liftSpeed:  opts.LiftSpeed,
		liftLength: opts.LiftLength,
		resinTop:   opts.ResinTop,
		focusImage: opts.FocusImage,
		poll:       opts.PollInterval,
		observer:   opts.Observer,
		logger:     opts.Logger,
		sleep:      opts.Sleep,
		now:        opts.Now,
		newID:      opts.NewID,
		mc:         &machineContext{},
	}
	if c.poll <= 0 {
		c.poll = 500 * time.Millisecond
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	c.logger = logging.NewComponentLogger(c.logger, "printer")
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = newJobID
	}
	interp, err := buildMachine(c.mc)
	if err != nil {
		return nil, err
	}
	c.interp = interp
	return c, nil
}

// State reports the current machine state.
func (c *Controller) State() State {
	return State(c.interp.State().Value)
}

// Faults reports how many times the controller entered the fault state.
func (c *Controller) Faults() int {
	return c.mc.Faults
}

// Pauses reports how many times a job was paused.
func (c *Controller) Pauses() int {
	return c.mc.Pauses
}

// Run is the control loop. It returns nil after an orderly shutdown and an
// error wrapping ErrFault after a hardware failure.
func (c *Controller) Run(ctx context.Context) error {
	c.interp.Start()
	c.publishReady()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown(nil)
		case <-c.channel.Done():
			return c.shutdown(nil)
		default:
		}

		cmd, ok := c.channel.Wait(c.poll)
		if !ok {
			continue
		}
		if err := c.execute(ctx, cmd); err != nil {
			return c.shutdown(err)
		}
		if c.State() == StateReady {
			c.publishReady()
		}
	}
}

func (c *Controller) execute(ctx context.Context, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic executing %s: %v", cmd.Verb(), r)
		}
	}()

	logger := c.logger.With(logging.String(logging.FieldCommand, cmd.Verb()))
	logger.Debug("command received")

	switch cmd.Kind {
	case KindHome:
		c.publish(Status{Title: "Homing", Detail: "Returning plate to zero", State: StateReady})
		return c.withMotor(func() error { return c.motor.Home(c.liftSpeed) })
	case KindBlank:
		return c.display.Black()
	case KindFocus:
		if c.focusImage == "" {
			return c.refuse(logger, errors.New("no focus image configured"))
		}
		return c.display.Show(c.focusImage)
	case KindLiftMove:
		if c.liftLength > 0 && cmd.Amount > c.liftLength {
			return c.refuse(logger, fmt.Errorf("move of %s microns exceeds lift length %s", formatFloat(cmd.Amount), formatFloat(c.liftLength)))
		}
		distance := cmd.Amount
		if cmd.Direction == Up {
			distance = -distance
		}
		c.publish(Status{
			Title:  "Lift moving " + cmd.Direction.String(),
			Detail: fmt.Sprintf("%s microns at %s microns/s", formatFloat(cmd.Amount), formatFloat(cmd.Speed)),
			State:  StateReady,
		})
		return c.withMotor(func() error { return c.motor.MoveMicrons(distance, cmd.Speed) })
	case KindResetZero:
		c.motor.ResetZero()
		logger.Info("zero position reset")
		return nil
	case KindSetupResin:
		c.publish(Status{Title: "Resin setup", Detail: "Moving plate to resin surface", State: StateReady})
		return c.withMotor(func() error {
			if err := c.motor.MoveTo(c.resinTop+c.schedule.DipDistance, c.liftSpeed); err != nil {
				return err
			}
			return c.motor.MoveTo(c.resinTop, c.liftSpeed)
		})
	case KindPrintObject:
		return c.runPrint(ctx, cmd)
	case KindCalibrate:
		return c.runCalibration(ctx, cmd)
	case KindPause, KindUnpause, KindAbort:
		logger.Debug("no job running; ignoring")
		return nil
	default:
		logging.WarnWithContext(logger, "unhandled command kind", "command_ignored",
			logging.String(logging.FieldErrorHint, "check the front end and daemon versions match"),
			logging.String(logging.FieldImpact, "command had no effect"),
		)
		return nil
	}
}

// refuse drops a command the hardware cannot carry out. The controller
// stays in Ready.
func (c *Controller) refuse(logger *slog.Logger, cause error) error {
	logging.WarnWithContext(logger, "command refused", "command_refused",
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the command parameters and printer config"),
		logging.String(logging.FieldImpact, "command had no effect"),
	)
	return nil
}

// withMotor brackets a direct move with enable and disable.
func (c *Controller) withMotor(move func() error) error {
	if err := c.motor.Enable(); err != nil {
		return err
	}
	moveErr := move()
	return errors.Join(moveErr, c.motor.Disable())
}

// shutdown moves the machine to shutting_down, publishes the terminal status
// and releases the hardware. cause is nil for an orderly stop.
func (c *Controller) shutdown(cause error) error {
	if cause != nil {
		c.transition(EventFault, StateFault)
		logging.ErrorWithContext(c.logger, "printer fault", "printer_fault",
			logging.String(logging.FieldErrorHint, "inspect the lift and display wiring before restarting"),
			logging.String(logging.FieldImpact, "control process exiting"),
			logging.Error(cause),
		)
	}
	c.transition(EventShutdown, StateShuttingDown)

	hwErr := errors.Join(c.motor.Shutdown(), c.display.Shutdown())
	if hwErr != nil {
		c.logger.Warn("hardware shutdown incomplete", logging.Error(hwErr))
	}
	c.publish(Status{Title: TitleShuttingDown, Detail: "Control process stopping", State: StateShuttingDown})

	if cause != nil {
		return fmt.Errorf("%w: %w", ErrFault, cause)
	}
	return nil
}

// transition sends event and reports whether the machine reached want.
func (c *Controller) transition(event statekit.EventType, want State) bool {
	from := c.State()
	c.interp.Send(statekit.Event{Type: event})
	got := c.State()
	if got != want {
		c.logger.Warn("state transition refused",
			logging.String("event", string(event)),
			logging.String("from", string(from)),
			logging.String("state", string(got)),
		)
		return false
	}
	c.logger.Debug("state transition", logging.String("from", string(from)), logging.String("to", string(got)))
	return true
}

func (c *Controller) publishReady() {
	c.publish(Status{Title: TitleReady, State: StateReady})
}

func (c *Controller) publish(s Status) {
	s.PositionMicrons = c.motor.PositionMicrons()
	s.At = c.now()
	c.channel.Publish(s)
}

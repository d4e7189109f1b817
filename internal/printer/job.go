package printer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"

	"pidish/internal/logging"
	"pidish/internal/schedule"
	"pidish/internal/slices"
)

// JobKind distinguishes prints from calibration sweeps.
type JobKind string

const (
	JobPrint       JobKind = "print"
	JobCalibration JobKind = "calibration"
)

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeFault     Outcome = "fault"
	OutcomeRejected  Outcome = "rejected"
)

// JobRecord describes one job for history. Exposure holds the calibration
// minimum for sweeps, with ExposureMax the maximum.
type JobRecord struct {
	ID          string
	Kind        JobKind
	Object      string
	Path        string
	Exposure    time.Duration
	ExposureMax time.Duration
	Layers      int
	LayersDone  int
	Outcome     Outcome
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Observer is told when jobs start and finish. Rejected jobs only finish.
type Observer interface {
	JobStarted(JobRecord)
	JobFinished(JobRecord)
}

type nopObserver struct{}

func (nopObserver) JobStarted(JobRecord)  {}
func (nopObserver) JobFinished(JobRecord) {}

func newJobID() string {
	return uuid.NewString()
}

type job struct {
	rec         JobRecord
	state       State
	startEvent  statekit.EventType
	resumeEvent statekit.EventType
	title       string
	logger      *slog.Logger
}

func (c *Controller) newJob(kind JobKind, name, path string) *job {
	j := &job{rec: JobRecord{
		ID:        c.newID(),
		Kind:      kind,
		Object:    name,
		Path:      path,
		StartedAt: c.now(),
	}}
	if kind == JobCalibration {
		j.state, j.startEvent, j.resumeEvent, j.title = StateCalibrating, EventCalibrate, EventResumeCalibration, TitleCalibrating
	} else {
		j.state, j.startEvent, j.resumeEvent, j.title = StatePrinting, EventPrint, EventResumePrint, TitlePrinting
	}
	j.logger = logging.WithJob(c.logger, j.rec.ID)
	return j
}

func (j *job) progress(layer int, elapsed time.Duration) Status {
	detail := fmt.Sprintf("%s: layer %d of %d", j.rec.Object, layer+1, j.rec.Layers)
	if layer > 0 {
		detail += ", " + FormatClock(Remaining(layer, j.rec.Layers, elapsed)) + " remaining"
	}
	return Status{
		Title:  j.title,
		Detail: detail,
		State:  j.state,
		JobID:  j.rec.ID,
		Layer:  layer + 1,
		Layers: j.rec.Layers,
	}
}

func (c *Controller) runPrint(ctx context.Context, cmd Command) error {
	j := c.newJob(JobPrint, cmd.ObjectPath, cmd.ObjectPath)
	j.rec.Exposure = cmd.Exposure

	set, err := slices.Discover(cmd.ObjectPath)
	if err != nil {
		return c.reject(j, err)
	}
	params, overridden, err := schedule.LoadOverride(cmd.ObjectPath, c.schedule)
	if err != nil {
		return c.reject(j, err)
	}
	if overridden {
		j.logger.Info("using object schedule", logging.String("file", schedule.OverrideFile))
	}
	j.rec.Object = set.Name()
	j.rec.Layers = set.Count
	directives := schedule.Expand(set.Count, params.Breakpoints)

	return c.runJob(ctx, j, func(layer int) error {
		d := directives[layer]
		image := set.Path(layer)
		exposure := d.DisplayTime(cmd.Exposure)
		switch d.Method {
		case schedule.Dip:
			if err := c.dip(params, params.DipDistance, params.DipSpeedDown, params.DipSpeedUp); err != nil {
				return err
			}
			return c.expose(image, exposure)
		case schedule.SlowDip:
			if err := c.dip(params, params.SlowDipDistance, params.SlowDipSpeed, params.SlowDipSpeed); err != nil {
				return err
			}
			return c.expose(image, exposure)
		case schedule.Continuous:
			if err := c.display.Show(image); err != nil {
				return err
			}
			speed := c.liftSpeed
			if exposure > 0 {
				speed = params.SliceThickness / exposure.Seconds()
			}
			return c.motor.MoveMicrons(params.SliceThickness, speed)
		case schedule.Bottom:
			return c.expose(image, exposure)
		default:
			return fmt.Errorf("unknown slice method %s", d.Method)
		}
	})
}

func (c *Controller) runCalibration(ctx context.Context, cmd Command) error {
	j := c.newJob(JobCalibration, "calibration", c.cali.ImageDir)
	j.rec.Exposure = cmd.MinTime
	j.rec.ExposureMax = cmd.MaxTime
	j.rec.Layers = c.cali.Layers

	if c.cali.Layers <= 0 {
		return c.reject(j, errors.New("calibration height is below one layer"))
	}
	for i := 0; i <= CalibrationFrames; i++ {
		if _, err := os.Stat(c.cali.Image(i)); err != nil {
			return c.reject(j, fmt.Errorf("calibration image: %w", err))
		}
	}

	step := (cmd.MaxTime - cmd.MinTime) / CalibrationFrames
	params := c.schedule
	return c.runJob(ctx, j, func(layer int) error {
		factor := 1.0
		if layer < c.cali.BoostLayers {
			factor = c.cali.BoostFactor
		}
		if err := c.dip(params, params.DipDistance, params.DipSpeedDown, params.DipSpeedUp); err != nil {
			return err
		}
		if err := c.expose(c.cali.Image(0), scale(cmd.MinTime, factor)); err != nil {
			return err
		}
		for i := 1; i <= CalibrationFrames; i++ {
			if err := c.expose(c.cali.Image(i), scale(step, factor)); err != nil {
				return err
			}
		}
		return nil
	})
}

func scale(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}

// dip blanks the screen, lowers the plate by distance, waits, then raises it
// back leaving one layer of clearance and lets the resin settle.
func (c *Controller) dip(p schedule.Params, distance, down, up float64) error {
	if err := c.display.Black(); err != nil {
		return err
	}
	if err := c.motor.MoveMicrons(distance, down); err != nil {
		return err
	}
	c.sleep(p.DipWait)
	if err := c.motor.MoveMicrons(-distance+p.SliceThickness, up); err != nil {
		return err
	}
	c.sleep(p.ResinSettle)
	return nil
}

func (c *Controller) expose(image string, d time.Duration) error {
	if err := c.display.Show(image); err != nil {
		return err
	}
	c.sleep(d)
	return nil
}

// reject records a job that never started. The controller stays in Ready.
func (c *Controller) reject(j *job, cause error) error {
	j.rec.Outcome = OutcomeRejected
	j.rec.Error = cause.Error()
	j.rec.FinishedAt = c.now()
	logging.WarnWithContext(j.logger, "job rejected", "job_rejected",
		logging.String("object", j.rec.Path),
		logging.String(logging.FieldErrorHint, "check the object directory and calibration images"),
		logging.String(logging.FieldImpact, "nothing was printed"),
		logging.Error(cause),
	)
	c.observer.JobFinished(j.rec)
	return nil
}

// runJob drives layer for every layer of j. The plate is always blanked,
// homed and released afterwards; a returned error is a fault.
func (c *Controller) runJob(ctx context.Context, j *job, layer func(int) error) (err error) {
	if !c.transition(j.startEvent, j.state) {
		return fmt.Errorf("cannot start %s from %s", j.rec.Kind, c.State())
	}
	c.observer.JobStarted(j.rec)
	j.logger.Info("job started",
		logging.String("kind", string(j.rec.Kind)),
		logging.String("object", j.rec.Object),
		logging.Int("layers", j.rec.Layers),
	)

	aborted := false
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic at layer %d: %v", j.rec.LayersDone, r)
		}
		err = errors.Join(err, c.cleanup())
		j.rec.FinishedAt = c.now()
		switch {
		case err != nil:
			j.rec.Outcome = OutcomeFault
			j.rec.Error = err.Error()
		case aborted:
			j.rec.Outcome = OutcomeAborted
		default:
			j.rec.Outcome = OutcomeCompleted
		}
		c.observer.JobFinished(j.rec)
		if err == nil {
			c.transition(EventFinish, StateReady)
		}
		j.logger.Info("job finished",
			logging.String("outcome", string(j.rec.Outcome)),
			logging.Int("layers_done", j.rec.LayersDone),
			logging.Duration("elapsed", j.rec.FinishedAt.Sub(j.rec.StartedAt)),
		)
	}()

	if err := c.motor.Enable(); err != nil {
		return err
	}
	started := c.now()
	for i := 0; i < j.rec.Layers; i++ {
		c.publish(j.progress(i, c.now().Sub(started)))
		if err := layer(i); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		j.rec.LayersDone = i + 1
		j.logger.Debug("layer done", logging.Int(logging.FieldLayer, i))

		stop, err := c.interrupts(ctx, j)
		if err != nil {
			return err
		}
		if stop {
			aborted = true
			return nil
		}
	}
	return nil
}

// cleanup attempts every step even when an earlier one fails.
func (c *Controller) cleanup() error {
	return errors.Join(
		c.display.Black(),
		c.motor.Home(c.liftSpeed),
		c.motor.Disable(),
	)
}

// interrupts checks for a pending command at a layer boundary and reports
// whether the job must stop.
func (c *Controller) interrupts(ctx context.Context, j *job) (bool, error) {
	if ctx.Err() != nil {
		j.logger.Info("stopping job for shutdown")
		return true, nil
	}
	cmd, ok := c.channel.Poll()
	if !ok {
		return false, nil
	}
	switch cmd.Kind {
	case KindAbort:
		j.logger.Info("abort requested", logging.Int(logging.FieldLayer, j.rec.LayersDone))
		return true, nil
	case KindPause:
		return c.pause(ctx, j)
	default:
		j.logger.Debug("busy; command dropped", logging.String(logging.FieldCommand, cmd.Verb()))
		return false, nil
	}
}

func (c *Controller) pause(ctx context.Context, j *job) (bool, error) {
	if err := c.display.Black(); err != nil {
		return false, err
	}
	c.transition(EventPause, StatePaused)
	c.publish(Status{
		Title:  TitlePaused,
		Detail: fmt.Sprintf("%s: paused after layer %d of %d", j.rec.Object, j.rec.LayersDone, j.rec.Layers),
		State:  StatePaused,
		JobID:  j.rec.ID,
		Layer:  j.rec.LayersDone,
		Layers: j.rec.Layers,
	})
	j.logger.Info("job paused", logging.Int(logging.FieldLayer, j.rec.LayersDone))

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case <-c.channel.Done():
			return true, nil
		default:
		}
		cmd, ok := c.channel.Wait(c.poll)
		if !ok {
			continue
		}
		switch cmd.Kind {
		case KindUnpause:
			c.transition(j.resumeEvent, j.state)
			j.logger.Info("job resumed")
			return false, nil
		case KindAbort:
			j.logger.Info("abort requested while paused")
			return true, nil
		default:
			j.logger.Debug("paused; command dropped", logging.String(logging.FieldCommand, cmd.Verb()))
		}
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"pidish/internal/config"
	"pidish/internal/display"
	"pidish/internal/gpio"
	"pidish/internal/history"
	"pidish/internal/hotplug"
	"pidish/internal/link"
	"pidish/internal/logging"
	"pidish/internal/motion"
	"pidish/internal/notifications"
	"pidish/internal/printer"
	"pidish/internal/slices"
	"pidish/internal/variables"
)

var (
	// ErrAlreadyRunning is returned when another process holds the lock.
	ErrAlreadyRunning = errors.New("another pidish daemon instance is already running")
	// ErrNotRunning is returned for commands sent before Start.
	ErrNotRunning = errors.New("daemon not running")
	// ErrShuttingDown is returned once the controller has stopped.
	ErrShuttingDown = errors.New("printer is shutting down")
)

// Option adjusts hardware construction, mostly for tests.
type Option func(*Daemon)

// WithDriver uses drv instead of opening the configured GPIO device.
func WithDriver(drv gpio.Driver) Option {
	return func(d *Daemon) { d.optDriver = drv }
}

// WithDisplay uses disp instead of the configured display command.
func WithDisplay(disp display.Display) Option {
	return func(d *Daemon) { d.optDisplay = disp }
}

// WithPacer replaces the busy-wait step pacer.
func WithPacer(p motion.Pacer) Option {
	return func(d *Daemon) { d.pacer = p }
}

// WithNotifier replaces the configured ntfy notifier.
func WithNotifier(n notifications.Service) Option {
	return func(d *Daemon) { d.notifier = n }
}

// WithSleep replaces time.Sleep for dwell times.
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Daemon) { d.sleep = sleep }
}

// Daemon owns the printer hardware and the control loop.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *history.Store
	vars   *variables.Store
	pacer  motion.Pacer
	sleep  func(time.Duration)

	notifier notifications.Service
	observer *jobObserver

	optDriver  gpio.Driver
	optDisplay display.Display
	driver     gpio.Driver
	display    display.Display

	lockPath string
	lock     *flock.Flock

	link    *link.Link[printer.Command, printer.Status]
	ctrl    *printer.Controller
	lift    *motion.Lift
	hotplug *hotplug.Monitor

	mu        sync.RWMutex
	status    printer.Status
	startedAt time.Time
	runErr    error

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	pumped  chan struct{}
}

// Status is the daemon's runtime summary.
type Status struct {
	Running     bool
	PID         int
	StartedAt   time.Time
	Printer     printer.Status
	Connector   string
	LockPath    string
	HistoryPath string
	Variables   string
}

// New records dependencies; hardware is opened by Start.
func New(cfg *config.Config, store *history.Store, vars *variables.Store, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || vars == nil {
		return nil, errors.New("daemon requires config, history store, and variables")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		vars:     vars,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
		status:   printer.Status{Title: "Awaiting printer status"},
		notifier: notifications.NewService(cfg.Notifications),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start acquires the lock, brings up the hardware, and launches the
// control loop. It returns once the loop is running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.setup(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	if n, err := d.store.CloseInterrupted(ctx, string(printer.OutcomeFault)); err != nil {
		d.logger.Warn("could not close interrupted jobs", logging.Error(err))
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "previous run ended mid-job", "interrupted_jobs",
			logging.Int64("jobs", n),
			logging.String(logging.FieldErrorHint, "home the lift and inspect the build plate"),
			logging.String(logging.FieldImpact, "interrupted jobs recorded as faults"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.pumped = make(chan struct{})
	d.mu.Lock()
	d.startedAt = time.Now()
	d.runErr = nil
	d.mu.Unlock()

	go d.pumpStatus()
	go d.control(runCtx)

	d.hotplug = hotplug.New(d.cfg.Hotplug, d.logger, d.pauseOnUnplug)
	if err := d.hotplug.Start(runCtx); err != nil {
		d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("pidish daemon started",
		logging.String("lock", d.lockPath),
		logging.String("mode", d.lift.Mode().Name),
		logging.Bool("simulated_gpio", d.cfg.GPIO.Simulate),
	)
	return nil
}

func (d *Daemon) setup() error {
	d.driver = d.optDriver
	if d.driver == nil {
		drv, err := gpio.Open(d.cfg.GPIO.Device, d.cfg.GPIO.Simulate)
		if err != nil {
			return fmt.Errorf("open gpio: %w", err)
		}
		d.driver = drv
	}
	d.display = d.optDisplay
	if d.display == nil {
		d.display = display.New(d.cfg.Display, d.logger)
	}

	liftOpts, err := motion.OptionsFromConfig(d.cfg, d.logger)
	if err != nil {
		return err
	}
	liftOpts.Pacer = d.pacer
	liftOpts.Sleep = d.sleep
	lift, err := motion.New(d.driver, liftOpts)
	if err != nil {
		return fmt.Errorf("init lift: %w", err)
	}
	d.lift = lift

	d.link = link.New[printer.Command, printer.Status](d.cfg.Channel.QueueSize)
	ctrlOpts, err := printer.OptionsFromConfig(d.cfg, d.logger)
	if err != nil {
		return err
	}
	ctrlOpts.Motor = lift
	ctrlOpts.Display = d.display
	ctrlOpts.Channel = d.link
	d.observer = newJobObserver(d.store, d.notifier, d.logger)
	ctrlOpts.Observer = d.observer
	ctrlOpts.Sleep = d.sleep
	ctrl, err := printer.New(ctrlOpts)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	d.ctrl = ctrl
	return nil
}

// control runs the printer loop on a locked OS thread.
func (d *Daemon) control(ctx context.Context) {
	defer close(d.done)
	go d.observer.run()

	unlock, err := motion.LockThread(d.cfg.Motion.RealtimePriority)
	if err != nil {
		logging.WarnWithContext(d.logger, "could not raise control thread priority", "realtime_unavailable",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "grant CAP_SYS_NICE or set motion.realtime_priority = 0"),
			logging.String(logging.FieldImpact, "step timing may jitter under load"),
		)
	}
	defer unlock()

	runErr := d.ctrl.Run(ctx)
	d.link.Close()

	d.mu.Lock()
	d.runErr = runErr
	d.mu.Unlock()
	if runErr != nil {
		d.logger.Error("control loop exited", logging.Error(runErr))
		if !errors.Is(runErr, context.Canceled) {
			d.observer.notifyFault(runErr)
		}
	}
	d.observer.wait()
}

// pumpStatus keeps the newest snapshot from the link.
func (d *Daemon) pumpStatus() {
	defer close(d.pumped)
	statuses := d.link.Statuses()
	for {
		select {
		case st := <-statuses:
			d.setStatus(st)
		case <-d.link.Done():
			for {
				select {
				case st := <-statuses:
					d.setStatus(st)
				default:
					return
				}
			}
		}
	}
}

func (d *Daemon) setStatus(st printer.Status) {
	d.mu.Lock()
	d.status = st
	d.mu.Unlock()
	d.logger.Debug("status",
		logging.String("title", st.Title),
		logging.String("detail", st.Detail),
		logging.String("state", string(st.State)),
	)
}

func (d *Daemon) pauseOnUnplug() {
	switch d.PrinterStatus().State {
	case printer.StatePrinting, printer.StateCalibrating:
		if err := d.link.Submit(printer.Command{Kind: printer.KindPause}); err != nil {
			d.logger.Warn("could not pause after unplug", logging.Error(err))
		}
	}
}

// Stop ends the control loop after the current layer and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.hotplug.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	<-d.done
	<-d.pumped
	if err := d.driver.Close(); err != nil && !errors.Is(err, gpio.ErrClosed) {
		d.logger.Warn("failed to close gpio", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("pidish daemon stopped")
}

// Close stops the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Done is closed when the control loop exits, including after a fault.
func (d *Daemon) Done() <-chan struct{} {
	if d.done == nil {
		return nil
	}
	return d.done
}

// Err returns the control loop's exit error once Done is closed.
func (d *Daemon) Err() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.runErr
}

// PrinterStatus returns the latest snapshot.
func (d *Daemon) PrinterStatus() printer.Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Status returns the daemon summary.
func (d *Daemon) Status() Status {
	d.mu.RLock()
	started := d.startedAt
	d.mu.RUnlock()
	return Status{
		Running:     d.running.Load(),
		PID:         os.Getpid(),
		StartedAt:   started,
		Printer:     d.PrinterStatus(),
		Connector:   d.hotplug.Connector(),
		LockPath:    d.lockPath,
		HistoryPath: d.store.Path(),
		Variables:   d.vars.Path(),
	}
}

// History lists recent jobs.
func (d *Daemon) History(ctx context.Context, limit int) ([]history.Record, error) {
	return d.store.List(ctx, limit)
}

// Job returns one job record.
func (d *Daemon) Job(ctx context.Context, id string) (*history.Record, error) {
	return d.store.Get(ctx, id)
}

// ClearHistory removes finished jobs.
func (d *Daemon) ClearHistory(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// JobStats counts jobs per outcome.
func (d *Daemon) JobStats(ctx context.Context) (map[string]int, error) {
	return d.store.Stats(ctx)
}

// ObjectsDir is the root relative object paths resolve against.
func (d *Daemon) ObjectsDir() string {
	return d.cfg.Paths.ObjectsDir
}

// Objects lists printable objects.
func (d *Daemon) Objects() ([]slices.Object, error) {
	return slices.List(d.cfg.Paths.ObjectsDir)
}

// Variables returns the persisted job parameters.
func (d *Daemon) Variables() map[string]string {
	return d.vars.Values()
}

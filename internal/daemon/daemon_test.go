package daemon_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pidish/internal/config"
	"pidish/internal/daemon"
	"pidish/internal/display"
	"pidish/internal/gpio"
	"pidish/internal/history"
	"pidish/internal/printer"
	"pidish/internal/testsupport"
	"pidish/internal/variables"
)

type instantPacer struct{}

func (instantPacer) Hold(time.Duration) {}

type fixture struct {
	cfg     *config.Config
	daemon  *daemon.Daemon
	screen  *display.Recorder
	store   *history.Store
	vars    *variables.Store
	cleanup func()
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []printer.JobRecord
}

func (n *recordingNotifier) NotifyJobFinished(_ context.Context, rec printer.JobRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, rec)
	return nil
}

func (n *recordingNotifier) NotifyFault(context.Context, error) error { return nil }
func (n *recordingNotifier) TestNotification(context.Context) error   { return nil }

func (n *recordingNotifier) finished() []printer.JobRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]printer.JobRecord(nil), n.jobs...)
}

func newDaemon(t *testing.T, cfg *config.Config, opts ...daemon.Option) *fixture {
	t.Helper()
	store := testsupport.MustOpenHistory(t, cfg)
	vars, err := variables.Open(cfg.VariablesPath(), nil)
	if err != nil {
		t.Fatalf("variables.Open: %v", err)
	}
	screen := display.NewRecorder(nil)
	all := []daemon.Option{
		daemon.WithDriver(gpio.NewRecorder()),
		daemon.WithDisplay(screen),
		daemon.WithPacer(instantPacer{}),
		daemon.WithSleep(func(time.Duration) {}),
	}
	all = append(all, opts...)
	d, err := daemon.New(cfg, store, vars, nil, all...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return &fixture{cfg: cfg, daemon: d, screen: screen, store: store, vars: vars}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	f := newDaemon(t, cfg)
	ctx := context.Background()

	if _, err := f.daemon.Submit(map[string]string{"command": "home"}); !errors.Is(err, daemon.ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning before start, got %v", err)
	}

	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !f.daemon.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	waitFor(t, "ready status", func() bool { return f.daemon.PrinterStatus().State == printer.StateReady })

	if err := f.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	f.daemon.Stop()
	if f.daemon.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if got := f.daemon.PrinterStatus().State; got != printer.StateShuttingDown {
		t.Fatalf("expected shutting_down after stop, got %s", got)
	}
	if !f.screen.IsShutdown() {
		t.Fatal("expected display shutdown")
	}
}

func TestSecondDaemonIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg)
	if err := first.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second := newDaemon(t, cfg)
	if err := second.daemon.Start(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestPrintUsesStoredExposureAndRecordsHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSlices(t, cfg.Paths.ObjectsDir, "cube.slice", "cube", 3)
	f := newDaemon(t, cfg)
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cmd, err := f.daemon.Submit(map[string]string{"command": "print_object", "object_path": "cube.slice"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if cmd.Exposure != 13*time.Second {
		t.Fatalf("expected stored exposure 13s, got %s", cmd.Exposure)
	}

	var recs []history.Record
	waitFor(t, "completed job", func() bool {
		recs, err = f.daemon.History(ctx, 10)
		return err == nil && len(recs) == 1 && recs[0].Outcome == string(printer.OutcomeCompleted)
	})
	if recs[0].Object != "cube" || recs[0].Layers != 3 || recs[0].LayersDone != 3 {
		t.Fatalf("unexpected record: %#v", recs[0])
	}
	waitFor(t, "ready after job", func() bool { return f.daemon.PrinterStatus().State == printer.StateReady })
}

func TestSubmitRemembersVariables(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	f := newDaemon(t, cfg)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_, err := f.daemon.Submit(map[string]string{"command": "lift_move", "dir": "down", "lift_amount": "100", "lift_speed": "4000"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := f.daemon.Variables()["lift_amount"]; got != "100" {
		t.Fatalf("expected lift_amount 100 remembered, got %q", got)
	}

	cmd, err := f.daemon.Submit(map[string]string{"command": "lift_move", "dir": "up"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if cmd.Amount != 100 || cmd.Speed != 4000 {
		t.Fatalf("expected remembered amount/speed, got %#v", cmd)
	}
}

func TestMalformedCommandIsDroppedAndStatusStaysReady(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	f := newDaemon(t, cfg)
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitFor(t, "ready status", func() bool { return f.daemon.PrinterStatus().State == printer.StateReady })

	if _, err := f.daemon.Submit(map[string]string{"command": "printobject"}); !errors.Is(err, printer.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if _, err := f.daemon.Submit(map[string]string{"command": "lift_move", "dir": "up", "lift_amount": "-3"}); !errors.Is(err, printer.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for invalid variable, got %v", err)
	}
	for _, amount := range []string{"200000", "999999999999999999999999"} {
		wire := map[string]string{"command": "lift_move", "dir": "down", "lift_amount": amount, "lift_speed": "4000"}
		if _, err := f.daemon.Submit(wire); !errors.Is(err, printer.ErrMalformed) {
			t.Fatalf("expected ErrMalformed for lift_amount %s beyond lift length, got %v", amount, err)
		}
	}
	if _, err := f.daemon.Submit(map[string]string{"command": "dance"}); !errors.Is(err, printer.ErrUnknownCommand) {
		t.Fatalf("expected ErrUnknownCommand, got %v", err)
	}

	if got := f.daemon.Variables()["lift_amount"]; got != "25400" {
		t.Fatalf("invalid value must not be stored, got %q", got)
	}
	time.Sleep(20 * time.Millisecond)
	if got := f.daemon.PrinterStatus(); got.State != printer.StateReady || got.Title != printer.TitleReady {
		t.Fatalf("expected Ready, got %#v", got)
	}
}

func TestObjectsListsSliceDirectories(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.WriteSlices(t, cfg.Paths.ObjectsDir, "cube.slice", "cube", 4)
	testsupport.WriteSlices(t, cfg.Paths.ObjectsDir, "empty.slice", "x", 0)
	f := newDaemon(t, cfg)

	objects, err := f.daemon.Objects()
	if err != nil {
		t.Fatalf("Objects failed: %v", err)
	}
	if len(objects) != 1 || objects[0].Slices != 4 {
		t.Fatalf("unexpected objects: %#v", objects)
	}
}

func TestFinishedJobsAreAnnounced(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBreakpoints(config.Breakpoint{Layer: 0, Method: "bottom", Factor: 1}))
	testsupport.WriteSlices(t, cfg.Paths.ObjectsDir, "ring.slice", "ring", 2)
	notifier := &recordingNotifier{}
	f := newDaemon(t, cfg, daemon.WithNotifier(notifier))
	if err := f.daemon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := f.daemon.Submit(map[string]string{"command": "print_object", "object_path": "ring.slice", "exposure_time": "4"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitFor(t, "job notification", func() bool { return len(notifier.finished()) == 1 })

	got := notifier.finished()[0]
	if got.Outcome != printer.OutcomeCompleted || got.Object != "ring" {
		t.Fatalf("unexpected notified job: %#v", got)
	}
}

func TestCalibrationRunsThroughDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithCalibrationHeight(2),
		testsupport.WithPollInterval(1),
	)
	testsupport.WriteSlices(t, testsupport.BaseDir(cfg), "calibrate", "calibrate", 9)
	f := newDaemon(t, cfg)
	ctx := context.Background()
	if err := f.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cmd, err := f.daemon.Submit(map[string]string{"command": "calibrate", "cali_min_time": "1", "cali_max_time": "3"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if cmd.MinTime != time.Second || cmd.MaxTime != 3*time.Second {
		t.Fatalf("unexpected sweep %s-%s", cmd.MinTime, cmd.MaxTime)
	}

	var recs []history.Record
	waitFor(t, "calibration record", func() bool {
		recs, err = f.daemon.History(ctx, 10)
		return err == nil && len(recs) == 1 && recs[0].Outcome == string(printer.OutcomeCompleted)
	})
	if recs[0].Kind != string(printer.JobCalibration) || recs[0].Layers != 2 || recs[0].LayersDone != 2 {
		t.Fatalf("unexpected record: %#v", recs[0])
	}
}

package printer_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pidish/internal/display"
	"pidish/internal/printer"
	"pidish/internal/schedule"
	"pidish/internal/testsupport"
)

const liftSpeed = 5280.0

type harness struct {
	ctrl   *printer.Controller
	motor  *fakeMotor
	screen *display.Recorder
	ch     *scriptChannel
	obs    *observer
	sleeps []time.Duration
}

func baseParams() schedule.Params {
	return schedule.Params{
		SliceThickness:  50,
		DipDistance:     4000,
		DipSpeedDown:    2000,
		DipSpeedUp:      1000,
		DipWait:         3 * time.Second,
		ResinSettle:     2 * time.Second,
		SlowDipDistance: 1500,
		SlowDipSpeed:    200,
		Breakpoints: []schedule.Breakpoint{
			{Layer: 0, Method: schedule.Dip, Factor: 2.5},
			{Layer: 3, Method: schedule.Dip, Factor: 1},
		},
	}
}

func newHarness(t *testing.T, ch *scriptChannel, mutate ...func(*printer.Options)) *harness {
	t.Helper()
	h := &harness{motor: &fakeMotor{}, screen: display.NewRecorder(nil), ch: ch, obs: &observer{}}
	opts := printer.Options{
		Motor:        h.motor,
		Display:      h.screen,
		Channel:      ch,
		Schedule:     baseParams(),
		LiftSpeed:    liftSpeed,
		ResinTop:     90000,
		FocusImage:   "/img/focus1024.png",
		PollInterval: time.Millisecond,
		Observer:     h.obs,
		Sleep:        func(d time.Duration) { h.sleeps = append(h.sleeps, d) },
		NewID:        func() string { return "job-0001" },
	}
	for _, m := range mutate {
		m(&opts)
	}
	ctrl, err := printer.New(opts)
	require.NoError(t, err)
	h.ctrl = ctrl
	return h
}

func (h *harness) run(t *testing.T) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.ctrl.Run(ctx)
}

func (h *harness) slicesShown() []string {
	var out []string
	for _, f := range h.screen.Frames() {
		if f != display.BlackFrame {
			out = append(out, filepath.Base(f))
		}
	}
	return out
}

func printCmd(path string, exposure time.Duration) printer.Command {
	return printer.Command{Kind: printer.KindPrintObject, ObjectPath: path, Exposure: exposure}
}

func sliceNames(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("s%04d.png", i)
	}
	return out
}

func TestPrintFollowsScheduleFactors(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube.slice", "s", 5)
	h := newHarness(t, newScript(printCmd(dir, 10*time.Second)))

	require.NoError(t, h.run(t))

	var want []time.Duration
	for layer := 0; layer < 5; layer++ {
		exposure := 10 * time.Second
		if layer < 3 {
			exposure = 25 * time.Second
		}
		want = append(want, 3*time.Second, 2*time.Second, exposure)
	}
	assert.Equal(t, want, h.sleeps)
	assert.Equal(t, sliceNames(5), h.slicesShown())

	require.Len(t, h.obs.finished, 1)
	rec := h.obs.finished[0]
	assert.Equal(t, printer.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, "cube", rec.Object)
	assert.Equal(t, 5, rec.Layers)
	assert.Equal(t, 5, rec.LayersDone)

	assert.Equal(t, 1, h.motor.count("home@5280"))
	assert.Equal(t, "shutdown", h.motor.ops[len(h.motor.ops)-1])
	assert.Contains(t, h.motor.ops, "move 4000@2000")
	assert.Contains(t, h.motor.ops, "move -3950@1000")
	assert.True(t, h.screen.IsShutdown())
}

func TestProgressStatusPerLayer(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 3)
	h := newHarness(t, newScript(printCmd(dir, time.Second)))

	require.NoError(t, h.run(t))

	var layers []int
	for _, st := range h.ch.published() {
		if st.State == printer.StatePrinting {
			layers = append(layers, st.Layer)
			assert.Equal(t, 3, st.Layers)
			assert.Equal(t, "job-0001", st.JobID)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, layers)
	assert.Equal(t, printer.StateShuttingDown, h.ch.last().State)
}

func TestAbortAtLayerRunsCleanupOnce(t *testing.T) {
	for k := 0; k < 5; k++ {
		t.Run(fmt.Sprintf("layer %d", k), func(t *testing.T) {
			dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 5)
			ch := newScript(printCmd(dir, time.Second)).onPoll(k, printer.Command{Kind: printer.KindAbort})
			h := newHarness(t, ch)

			require.NoError(t, h.run(t))

			assert.Equal(t, 1, h.motor.count("home@5280"))
			assert.Equal(t, 1, h.motor.count("disable"))
			assert.Equal(t, sliceNames(k+1), h.slicesShown())

			frames := h.screen.Frames()
			assert.Equal(t, display.BlackFrame, frames[len(frames)-1])

			require.Len(t, h.obs.finished, 1)
			assert.Equal(t, printer.OutcomeAborted, h.obs.finished[0].Outcome)
			assert.Equal(t, k+1, h.obs.finished[0].LayersDone)

			all := h.ch.published()
			require.GreaterOrEqual(t, len(all), 2)
			afterJob := all[len(all)-2]
			assert.Equal(t, printer.StateReady, afterJob.State)
			assert.Equal(t, printer.TitleReady, afterJob.Title)
		})
	}
}

func TestPauseResumesWithoutSkippingLayers(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 5)
	ch := newScript(printCmd(dir, time.Second), printer.Command{Kind: printer.KindUnpause}).
		onPoll(1, printer.Command{Kind: printer.KindPause})
	h := newHarness(t, ch)

	require.NoError(t, h.run(t))

	assert.Equal(t, sliceNames(5), h.slicesShown())
	assert.Equal(t, 1, h.ctrl.Pauses())

	frames := h.screen.Frames()
	idx := -1
	for i, f := range frames {
		if filepath.Base(f) == "s0001.png" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, display.BlackFrame, frames[idx+1], "display blanked while paused")

	var paused *printer.Status
	for _, st := range h.ch.published() {
		if st.State == printer.StatePaused {
			paused = &st
		}
	}
	require.NotNil(t, paused)
	assert.Equal(t, printer.TitlePaused, paused.Title)
	assert.Equal(t, 2, paused.Layer)

	require.Len(t, h.obs.finished, 1)
	assert.Equal(t, printer.OutcomeCompleted, h.obs.finished[0].Outcome)
}

func TestAbortWhilePaused(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 5)
	ch := newScript(printCmd(dir, time.Second), printer.Command{Kind: printer.KindHome}, printer.Command{Kind: printer.KindAbort}).
		onPoll(0, printer.Command{Kind: printer.KindPause})
	h := newHarness(t, ch)

	require.NoError(t, h.run(t))

	assert.Equal(t, 1, h.motor.count("home@5280"), "home while paused is dropped")
	require.Len(t, h.obs.finished, 1)
	assert.Equal(t, printer.OutcomeAborted, h.obs.finished[0].Outcome)
	assert.Equal(t, 1, h.obs.finished[0].LayersDone)
}

func TestCommandsDuringJobAreIgnored(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 3)
	ch := newScript(printCmd(dir, time.Second)).
		onPoll(0, printer.Command{Kind: printer.KindHome}).
		onPoll(1, printer.Command{Kind: printer.KindLiftMove, Direction: printer.Up, Amount: 10, Speed: 10})
	h := newHarness(t, ch)

	require.NoError(t, h.run(t))

	assert.Equal(t, 1, h.motor.count("home@5280"))
	assert.NotContains(t, h.motor.ops, "move -10@10")
	assert.Equal(t, sliceNames(3), h.slicesShown())
}

func TestRejectsDirectoryWithoutSlices(t *testing.T) {
	h := newHarness(t, newScript(printCmd(t.TempDir(), time.Second)))

	require.NoError(t, h.run(t))

	assert.Equal(t, []string{"shutdown"}, h.motor.ops)
	assert.Empty(t, h.obs.started)
	require.Len(t, h.obs.finished, 1)
	assert.Equal(t, printer.OutcomeRejected, h.obs.finished[0].Outcome)
	assert.NotEmpty(t, h.obs.finished[0].Error)
	for _, st := range h.ch.published() {
		assert.Contains(t, []printer.State{printer.StateReady, printer.StateShuttingDown}, st.State)
	}
}

func TestFaultCleansUpAndShutsDown(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 5)
	h := newHarness(t, newScript(printCmd(dir, time.Second), printer.Command{Kind: printer.KindHome}))
	h.motor.failMove = 3

	err := h.run(t)
	require.ErrorIs(t, err, printer.ErrFault)
	require.ErrorIs(t, err, errStall)

	assert.Equal(t, 1, h.motor.count("home@5280"), "queued home never runs")
	assert.Equal(t, 1, h.motor.count("disable"))
	assert.Equal(t, "shutdown", h.motor.ops[len(h.motor.ops)-1])
	assert.True(t, h.screen.IsShutdown())
	assert.Equal(t, printer.StateShuttingDown, h.ctrl.State())
	assert.Equal(t, 1, h.ctrl.Faults())

	last := h.ch.last()
	assert.Equal(t, printer.TitleShuttingDown, last.Title)
	assert.True(t, last.Terminal())

	require.Len(t, h.obs.finished, 1)
	assert.Equal(t, printer.OutcomeFault, h.obs.finished[0].Outcome)
	assert.Equal(t, 1, h.obs.finished[0].LayersDone)
}

func TestPanicIsTreatedAsFault(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 2)
	h := newHarness(t, newScript(printCmd(dir, time.Second)))
	h.motor.panicOn = 1

	err := h.run(t)
	require.ErrorIs(t, err, printer.ErrFault)
	assert.Equal(t, 1, h.motor.count("home@5280"))
	assert.Equal(t, printer.StateShuttingDown, h.ch.last().State)
}

func TestContinuousMovesDuringExposure(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 2)
	h := newHarness(t, newScript(printCmd(dir, 2*time.Second)), func(o *printer.Options) {
		o.Schedule.Breakpoints = []schedule.Breakpoint{{Layer: 0, Method: schedule.Continuous, Factor: 1}}
	})

	require.NoError(t, h.run(t))

	assert.Equal(t, 2, h.motor.count("move 50@25"))
	assert.Empty(t, h.sleeps)
}

func TestBottomAndSlowDip(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 2)
	h := newHarness(t, newScript(printCmd(dir, time.Second)), func(o *printer.Options) {
		o.Schedule.Breakpoints = []schedule.Breakpoint{
			{Layer: 0, Method: schedule.Bottom, Factor: 4},
			{Layer: 1, Method: schedule.SlowDip, Factor: 1},
		}
	})

	require.NoError(t, h.run(t))

	assert.Equal(t, []time.Duration{4 * time.Second, 3 * time.Second, 2 * time.Second, time.Second}, h.sleeps)
	assert.Contains(t, h.motor.ops, "move 1500@200")
	assert.Contains(t, h.motor.ops, "move -1450@200")
}

func TestObjectScheduleOverride(t *testing.T) {
	dir := testsupport.WriteSlices(t, t.TempDir(), "cube", "s", 2)
	testsupport.WriteFile(t, filepath.Join(dir, schedule.OverrideFile), `
breakpoints:
  - {layer: 0, method: bottom, factor: 3}
`)
	h := newHarness(t, newScript(printCmd(dir, time.Second)))

	require.NoError(t, h.run(t))

	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, h.sleeps)
}

func TestDirectCommands(t *testing.T) {
	h := newHarness(t, newScript(
		printer.Command{Kind: printer.KindLiftMove, Direction: printer.Up, Amount: 100, Speed: 500},
		printer.Command{Kind: printer.KindLiftMove, Direction: printer.Down, Amount: 40, Speed: 500},
		printer.Command{Kind: printer.KindHome},
		printer.Command{Kind: printer.KindResetZero},
		printer.Command{Kind: printer.KindSetupResin},
		printer.Command{Kind: printer.KindFocus},
		printer.Command{Kind: printer.KindBlank},
		printer.Command{Kind: printer.KindPause},
	))

	require.NoError(t, h.run(t))

	assert.Equal(t, []string{
		"enable", "move -100@500", "disable",
		"enable", "move 40@500", "disable",
		"enable", "home@5280", "disable",
		"zero",
		"enable", "to 94000@5280", "to 90000@5280", "disable",
		"shutdown",
	}, h.motor.ops)
	assert.Equal(t, []string{"/img/focus1024.png", display.BlackFrame}, h.screen.Frames())
	assert.Empty(t, h.obs.finished)
}

func TestRefusedCommandsLeaveControllerReady(t *testing.T) {
	h := newHarness(t, newScript(
		printer.Command{Kind: printer.KindLiftMove, Direction: printer.Down, Amount: 1e24, Speed: 500},
		printer.Command{Kind: printer.KindFocus},
		printer.Command{Kind: printer.KindLiftMove, Direction: printer.Down, Amount: 40, Speed: 500},
	), func(o *printer.Options) {
		o.LiftLength = 103000
		o.FocusImage = ""
	})

	require.NoError(t, h.run(t))

	assert.Zero(t, h.ctrl.Faults())
	assert.Equal(t, 1, h.motor.moves)
	assert.Equal(t, []string{"enable", "move 40@500", "disable", "shutdown"}, h.motor.ops)
	assert.NotContains(t, h.screen.Frames(), "")

	all := h.ch.published()
	require.NotEmpty(t, all)
	for _, st := range all[:len(all)-1] {
		assert.Equal(t, printer.StateReady, st.State, "status %q", st.Title)
	}
	assert.Equal(t, printer.StateShuttingDown, all[len(all)-1].State)
	assert.Empty(t, h.obs.finished)
}

func TestCalibrationSweep(t *testing.T) {
	imageDir := t.TempDir()
	for i := 0; i <= printer.CalibrationFrames; i++ {
		testsupport.WriteFile(t, filepath.Join(imageDir, fmt.Sprintf("calibrate%04d.png", i)), "png")
	}
	cmd := printer.Command{Kind: printer.KindCalibrate, MinTime: 6 * time.Second, MaxTime: 14 * time.Second}
	h := newHarness(t, newScript(cmd), func(o *printer.Options) {
		o.Calibration = printer.Calibration{Layers: 4, BoostLayers: 3, BoostFactor: 2.5, ImageDir: imageDir}
	})

	require.NoError(t, h.run(t))

	perLayer := 2 + 1 + printer.CalibrationFrames
	require.Len(t, h.sleeps, 4*perLayer)
	boosted := h.sleeps[:perLayer]
	assert.Equal(t, 15*time.Second, boosted[2])
	assert.Equal(t, 2500*time.Millisecond, boosted[3])
	plain := h.sleeps[3*perLayer:]
	assert.Equal(t, 6*time.Second, plain[2])
	assert.Equal(t, time.Second, plain[perLayer-1])

	var shown int
	for _, f := range h.screen.Frames() {
		if f != display.BlackFrame {
			shown++
		}
	}
	assert.Equal(t, 4*(printer.CalibrationFrames+1), shown)

	require.Len(t, h.obs.finished, 1)
	rec := h.obs.finished[0]
	assert.Equal(t, printer.JobCalibration, rec.Kind)
	assert.Equal(t, printer.OutcomeCompleted, rec.Outcome)
	assert.Equal(t, 14*time.Second, rec.ExposureMax)

	var calibrating int
	for _, st := range h.ch.published() {
		if st.State == printer.StateCalibrating {
			calibrating++
		}
	}
	assert.Equal(t, 4, calibrating)
}

func TestCalibrationRejectsMissingImages(t *testing.T) {
	cmd := printer.Command{Kind: printer.KindCalibrate, MinTime: time.Second, MaxTime: 2 * time.Second}
	h := newHarness(t, newScript(cmd), func(o *printer.Options) {
		o.Calibration = printer.Calibration{Layers: 4, ImageDir: t.TempDir()}
	})

	require.NoError(t, h.run(t))

	require.Len(t, h.obs.finished, 1)
	assert.Equal(t, printer.OutcomeRejected, h.obs.finished[0].Outcome)
	assert.Equal(t, []string{"shutdown"}, h.motor.ops)
}

func TestCancelledContextShutsDownFromReady(t *testing.T) {
	h := newHarness(t, newScript())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, h.ctrl.Run(ctx))

	assert.Equal(t, printer.StateShuttingDown, h.ctrl.State())
	all := h.ch.published()
	require.Len(t, all, 2)
	assert.Equal(t, printer.StateReady, all[0].State)
	assert.Equal(t, printer.StateShuttingDown, all[1].State)
}

func TestNewRequiresHardware(t *testing.T) {
	_, err := printer.New(printer.Options{})
	require.Error(t, err)
}

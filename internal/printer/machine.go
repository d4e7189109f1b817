package printer

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// Machine events.
const (
	EventPrint             statekit.EventType = "PRINT"
	EventCalibrate         statekit.EventType = "CALIBRATE"
	EventPause             statekit.EventType = "PAUSE"
	EventResumePrint       statekit.EventType = "RESUME_PRINT"
	EventResumeCalibration statekit.EventType = "RESUME_CALIBRATION"
	EventFinish            statekit.EventType = "FINISH"
	EventFault             statekit.EventType = "FAULT"
	EventShutdown          statekit.EventType = "SHUTDOWN"
)

// machineContext counts what the machine has been through.
type machineContext struct {
	Pauses int
	Faults int
}

// buildMachine wires the controller lifecycle. Fault only leads to
// shutting_down; a restarted process begins in ready.
func buildMachine(mc *machineContext) (*statekit.Interpreter[machineContext], error) {
	machine, err := statekit.NewMachine[machineContext]("pidish-printer").
		WithInitial(stateReady).
		WithContext(*mc).
		WithAction("countPause", func(_ *machineContext, _ statekit.Event) {
			mc.Pauses++
		}).
		WithAction("countFault", func(_ *machineContext, _ statekit.Event) {
			mc.Faults++
		}).
		State(stateReady).
		On(EventPrint).Target(statePrinting).
		On(EventCalibrate).Target(stateCalibrating).
		On(EventFault).Target(stateFault).
		On(EventShutdown).Target(stateShuttingDown).Done().
		State(statePrinting).
		On(EventPause).Target(statePaused).
		On(EventFinish).Target(stateReady).
		On(EventFault).Target(stateFault).Done().
		State(stateCalibrating).
		On(EventPause).Target(statePaused).
		On(EventFinish).Target(stateReady).
		On(EventFault).Target(stateFault).Done().
		State(statePaused).
		OnEntry("countPause").
		On(EventResumePrint).Target(statePrinting).
		On(EventResumeCalibration).Target(stateCalibrating).
		On(EventFinish).Target(stateReady).
		On(EventFault).Target(stateFault).Done().
		State(stateFault).
		OnEntry("countFault").
		On(EventShutdown).Target(stateShuttingDown).Done().
		State(stateShuttingDown).Done().
		Build()
	if err != nil {
		return nil, fmt.Errorf("build printer machine: %w", err)
	}
	return statekit.NewInterpreter(machine), nil
}

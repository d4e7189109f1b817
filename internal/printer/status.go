package printer

import (
	"fmt"
	"time"
)

// State is the controller's coarse state.
type State string

const (
	StateReady        State = stateReady
	StatePrinting     State = statePrinting
	StateCalibrating  State = stateCalibrating
	StatePaused       State = statePaused
	StateFault        State = stateFault
	StateShuttingDown State = stateShuttingDown
)

// Untyped names for the state machine builder.
const (
	stateReady        = "ready"
	statePrinting     = "printing"
	stateCalibrating  = "calibrating"
	statePaused       = "paused"
	stateFault        = "fault"
	stateShuttingDown = "shutting_down"
)

// Status titles.
const (
	TitleReady        = "Ready"
	TitlePrinting     = "Printing"
	TitleCalibrating  = "Calibrating"
	TitlePaused       = "Paused"
	TitleShuttingDown = "ShuttingDown"
)

// Status is an immutable snapshot pushed to the front end. Title and Detail
// are the operator-facing text; the remaining fields let tools render it.
type Status struct {
	Title           string    `json:"title"`
	Detail          string    `json:"detail"`
	State           State     `json:"state"`
	JobID           string    `json:"job_id,omitempty"`
	Layer           int       `json:"layer"`
	Layers          int       `json:"layers"`
	PositionMicrons float64   `json:"position_microns"`
	At              time.Time `json:"at"`
}

// Terminal reports whether the control process is going away.
func (s Status) Terminal() bool {
	return s.State == StateShuttingDown
}

// FormatClock renders d as HH:MM:SS; hours are not wrapped at 24.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

// Remaining estimates time left once done of total layers have taken elapsed.
func Remaining(done, total int, elapsed time.Duration) time.Duration {
	if done <= 0 || total <= done {
		return 0
	}
	return time.Duration((float64(total)/float64(done) - 1) * float64(elapsed))
}

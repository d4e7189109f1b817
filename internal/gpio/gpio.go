// Package gpio drives the digital lines wired to the stepper driver board.
package gpio

import "errors"

// ErrClosed is returned by drivers used after Close.
var ErrClosed = errors.New("gpio: driver closed")

// Driver is the pin interface the motion code uses. Pins are BCM line numbers.
type Driver interface {
	// ConfigureOutput switches a line to output mode.
	ConfigureOutput(pin int) error
	// SetPin drives a line high (true) or low (false).
	SetPin(pin int, high bool) error
	// Close releases the underlying device.
	Close() error
}

// Open returns the memory-mapped driver for device, or a Recorder when
// simulate is set.
func Open(device string, simulate bool) (Driver, error) {
	if simulate {
		return NewRecorder(), nil
	}
	return openMem(device)
}

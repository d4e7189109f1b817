package gpio

import (
	"fmt"
	"sync"
)

// Edge is one recorded line change.
type Edge struct {
	Pin  int
	High bool
}

// Recorder is an in-memory Driver used by simulation mode and tests. It keeps
// the current level of every line and counts rising edges per line.
type Recorder struct {
	mu      sync.Mutex
	outputs map[int]bool
	levels  map[int]bool
	rising  map[int]int
	log     []Edge
	keepLog bool
	closed  bool
}

// NewRecorder returns a Recorder that tracks levels and rising-edge counts.
func NewRecorder() *Recorder {
	return &Recorder{
		outputs: make(map[int]bool),
		levels:  make(map[int]bool),
		rising:  make(map[int]int),
	}
}

// KeepLog makes the recorder retain every edge for inspection.
func (r *Recorder) KeepLog() *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keepLog = true
	return r
}

func (r *Recorder) ConfigureOutput(pin int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.outputs[pin] = true
	return nil
}

func (r *Recorder) SetPin(pin int, high bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if !r.outputs[pin] {
		return fmt.Errorf("gpio line %d not configured as output", pin)
	}
	if high && !r.levels[pin] {
		r.rising[pin]++
	}
	r.levels[pin] = high
	if r.keepLog {
		r.log = append(r.log, Edge{Pin: pin, High: high})
	}
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Level reports the current level of pin.
func (r *Recorder) Level(pin int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.levels[pin]
}

// Rising reports how many low-to-high transitions pin has seen.
func (r *Recorder) Rising(pin int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rising[pin]
}

// ResetCounts zeroes the rising-edge counters and edge log.
func (r *Recorder) ResetCounts() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rising = make(map[int]int)
	r.log = nil
}

// Edges returns a copy of the edge log (empty unless KeepLog was called).
func (r *Recorder) Edges() []Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Edge(nil), r.log...)
}

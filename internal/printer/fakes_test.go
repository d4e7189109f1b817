package printer_test

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pidish/internal/printer"
)

// scriptChannel hands out Wait commands in order and Poll commands by call
// index. It closes itself once the Wait script runs dry so Run returns.
type scriptChannel struct {
	mu        sync.Mutex
	waits     []printer.Command
	polls     map[int]printer.Command
	pollCalls int
	statuses  []printer.Status
	done      chan struct{}
	closed    bool
}

func newScript(waits ...printer.Command) *scriptChannel {
	return &scriptChannel{waits: waits, polls: map[int]printer.Command{}, done: make(chan struct{})}
}

func (s *scriptChannel) onPoll(call int, cmd printer.Command) *scriptChannel {
	s.polls[call] = cmd
	return s
}

func (s *scriptChannel) Poll() (printer.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.pollCalls
	s.pollCalls++
	cmd, ok := s.polls[call]
	return cmd, ok
}

func (s *scriptChannel) Wait(time.Duration) (printer.Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waits) > 0 {
		cmd := s.waits[0]
		s.waits = s.waits[1:]
		return cmd, true
	}
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return printer.Command{}, false
}

func (s *scriptChannel) Publish(st printer.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *scriptChannel) Done() <-chan struct{} {
	return s.done
}

func (s *scriptChannel) published() []printer.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]printer.Status(nil), s.statuses...)
}

func (s *scriptChannel) last() printer.Status {
	all := s.published()
	if len(all) == 0 {
		return printer.Status{}
	}
	return all[len(all)-1]
}

// fakeMotor logs every call and tracks position in microns.
type fakeMotor struct {
	ops      []string
	position float64
	moves    int
	failMove int // 1-based MoveMicrons call that fails; 0 never
	panicOn  int
}

var errStall = errors.New("lift stalled")

func (m *fakeMotor) Enable() error  { m.ops = append(m.ops, "enable"); return nil }
func (m *fakeMotor) Disable() error { m.ops = append(m.ops, "disable"); return nil }

func (m *fakeMotor) MoveMicrons(distance, speed float64) error {
	m.moves++
	if m.moves == m.panicOn {
		panic("driver exploded")
	}
	if m.moves == m.failMove {
		return errStall
	}
	m.ops = append(m.ops, fmt.Sprintf("move %g@%g", distance, speed))
	m.position += distance
	return nil
}

func (m *fakeMotor) MoveTo(target, speed float64) error {
	m.ops = append(m.ops, fmt.Sprintf("to %g@%g", target, speed))
	m.position = target
	return nil
}

func (m *fakeMotor) Home(speed float64) error {
	m.ops = append(m.ops, fmt.Sprintf("home@%g", speed))
	m.position = 0
	return nil
}

func (m *fakeMotor) ResetZero()               { m.ops = append(m.ops, "zero"); m.position = 0 }
func (m *fakeMotor) PositionMicrons() float64 { return m.position }
func (m *fakeMotor) Shutdown() error          { m.ops = append(m.ops, "shutdown"); return nil }

func (m *fakeMotor) count(op string) int {
	n := 0
	for _, o := range m.ops {
		if o == op {
			n++
		}
	}
	return n
}

// observer collects job records.
type observer struct {
	mu       sync.Mutex
	started  []printer.JobRecord
	finished []printer.JobRecord
}

func (o *observer) JobStarted(r printer.JobRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, r)
}

func (o *observer) JobFinished(r printer.JobRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r)
}

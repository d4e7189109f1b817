// Package link is the duplex message channel between the front end and the
// control loop: commands flow in, status snapshots flow out.
//
// Both directions are bounded FIFOs and neither side ever blocks on the
// other. A full command queue rejects the submission; a full status queue
// drops its oldest snapshot, since readers only care about the latest one.
package link

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the command queue has no room.
	ErrQueueFull = errors.New("link: command queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("link: closed")
)

// Link carries commands of type C and statuses of type S.
type Link[C, S any] struct {
	commands chan C
	statuses chan S

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// New returns a link whose queues each hold size messages.
func New[C, S any](size int) *Link[C, S] {
	if size <= 0 {
		size = 1
	}
	return &Link[C, S]{
		commands: make(chan C, size),
		statuses: make(chan S, size),
		closed:   make(chan struct{}),
	}
}

// Submit enqueues a command without blocking.
func (l *Link[C, S]) Submit(cmd C) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	select {
	case l.commands <- cmd:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll dequeues a command if one is waiting.
func (l *Link[C, S]) Poll() (C, bool) {
	select {
	case cmd := <-l.commands:
		return cmd, true
	default:
		var zero C
		return zero, false
	}
}

// Wait dequeues a command, waiting up to timeout. It returns early when the
// link is closed.
func (l *Link[C, S]) Wait(timeout time.Duration) (C, bool) {
	if cmd, ok := l.Poll(); ok {
		return cmd, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case cmd := <-l.commands:
		return cmd, true
	case <-timer.C:
	case <-l.closed:
	}
	var zero C
	return zero, false
}

// Publish enqueues a status, discarding the oldest queued status if full.
func (l *Link[C, S]) Publish(status S) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for {
		select {
		case l.statuses <- status:
			return
		default:
		}
		select {
		case <-l.statuses:
		default:
		}
	}
}

// Statuses exposes the outbound queue to the front end.
func (l *Link[C, S]) Statuses() <-chan S {
	return l.statuses
}

// Close stops accepting commands and wakes any Wait.
func (l *Link[C, S]) Close() {
	l.once.Do(func() { close(l.closed) })
}

// Done is closed by Close.
func (l *Link[C, S]) Done() <-chan struct{} {
	return l.closed
}

// Package motion drives the build-plate lift through a step/direction stepper
// driver.
//
// A Lift owns the absolute position in steps (home is zero, positive is away
// from home). Moves are blocking pulse trains timed by busy-waiting; the
// position is updated after every pulse so an interrupted move still leaves an
// accurate count. There is no feedback sensor: missed steps are not detected.
//
// Callers that need stable pulse timing run the lift from a goroutine pinned
// with LockThread.
package motion

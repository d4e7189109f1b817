//go:build !linux

package motion

import "runtime"

// LockThread pins the calling goroutine to its OS thread. Priority is ignored
// off linux.
func LockThread(priority int) (func(), error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}

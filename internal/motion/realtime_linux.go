//go:build linux

package motion

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// LockThread pins the calling goroutine to its OS thread and applies the nice
// value to that thread only. The returned function unpins it. A failed
// priority change still leaves the goroutine pinned.
func LockThread(priority int) (func(), error) {
	runtime.LockOSThread()
	unlock := runtime.UnlockOSThread
	if priority == 0 {
		return unlock, nil
	}
	if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), priority); err != nil {
		return unlock, fmt.Errorf("set control thread priority %d: %w", priority, err)
	}
	return unlock, nil
}

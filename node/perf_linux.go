//go:build linux

package node

import (
	"runtime"

	perf "github.com/hodgesds/perf-utils"
	"golang.org/x/sys/unix"
)

// countInstructions runs f under a CPU instruction counter opened on the
// calling OS thread only. Work f hands to other goroutines or to a device is
// not counted. The counter pins the thread to a random CPU; the previous CPU
// set is restored before returning. If the counter cannot be opened f is run
// without it.
func countInstructions(f func() error) (count uint64, fErr, perfErr error) {
	ran := false
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var cpus unix.CPUSet
	if err := unix.SchedGetaffinity(0, &cpus); err != nil {
		return 0, f(), err
	}
	defer func() {
		_ = unix.SchedSetaffinity(0, &cpus)
	}()
	pv, err := perf.CPUInstructions(func() error {
		ran = true
		fErr = f()
		return fErr
	})
	switch {
	case !ran:
		return 0, f(), err
	case err != nil && fErr == nil:
		return 0, nil, err
	case pv == nil:
		return 0, fErr, nil
	}
	return pv.Value, fErr, nil
}

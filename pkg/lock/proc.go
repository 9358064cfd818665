package lock

import (
	"errors"
	"os"
	"runtime"
	"syscall"
)

// ErrLivenessUnknown is returned by probers that cannot determine whether
// a pid is alive on the current platform. Callers then fall back to
// timeout-based staleness.
var ErrLivenessUnknown = errors.New("process liveness cannot be determined")

// ProcessProber answers whether a lock owner process is still alive
type ProcessProber interface {
	Alive(pid int) (bool, error)
}

// SignalProber probes liveness by sending signal 0 to the pid. Any signal
// delivery error counts as dead: on Linux and macOS a permission error
// still proves the pid exists, but a vanished process is the common case
// and the age check catches the rest.
type SignalProber struct{}

func (SignalProber) Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	if runtime.GOOS == "windows" {
		// Signal 0 is not supported there
		return false, ErrLivenessUnknown
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// TimeoutOnlyProber never answers, forcing age-based staleness. Useful in
// sandboxed environments where signaling other processes is not permitted.
type TimeoutOnlyProber struct{}

func (TimeoutOnlyProber) Alive(pid int) (bool, error) {
	return false, ErrLivenessUnknown
}

package gridjob

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gridjobs/gridjob/internal"
)

const (
	stopped = iota
	started
)

var (
	// ErrDoubleStarted is returned when Start is called on a component
	// that has already been started.
	ErrDoubleStarted = errors.New("gridjob: double start")

	// ErrDoubleStopped is returned when Stop is called on a component
	// that is not currently running.
	ErrDoubleStopped = errors.New("gridjob: double stop")

	// ErrStopTimeout is returned when a component fails to shut down
	// within the provided timeout during Stop.
	//
	// In this case, the component may still be terminating in the
	// background.
	ErrStopTimeout = errors.New("gridjob: stop timeout")
)

// LCBase implements the strict start-once/stop-once lifecycle embedded
// by local.Scheduler: TryStart may only succeed once, TryStop waits for
// background work to finish or a timeout to expire.
type LCBase struct {
	state atomic.Int32
}

// TryStart transitions the component from stopped to started, returning
// ErrDoubleStarted if it was already running.
func (lb *LCBase) TryStart() error {
	if !lb.state.CompareAndSwap(stopped, started) {
		return ErrDoubleStarted
	}
	return nil
}

// TryStop transitions the component from started to stopped and waits
// for df to signal completion, returning ErrDoubleStopped if the
// component was not running and ErrStopTimeout if df does not complete
// within timeout.
func (lb *LCBase) TryStop(timeout time.Duration, df internal.DoneFunc) error {
	if !lb.state.CompareAndSwap(started, stopped) {
		return ErrDoubleStopped
	}
	done := df()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}

package future

import (
	"sync"
	"time"
)

// ScheduleFunc is invoked when a ScheduledFuture's timer fires. The usual
// implementation places self into some Context's queue; the Context's
// worker later calls self.Process().
type ScheduleFunc func(self *ScheduledFuture)

// ScheduledFuture is a Future whose underlying work does not even become
// eligible to run until a one-shot timer fires. It extends Future with a
// cancellation window that spans both "timer still pending" and
// "timer fired, Process not yet started".
type ScheduledFuture struct {
	*Future

	mu    sync.Mutex
	timer *time.Timer
}

// NewScheduled starts a one-shot timer for delay. When it fires, scheduleFn
// is invoked with the ScheduledFuture itself; scheduleFn is expected to
// arrange for Process to eventually be called (typically by appending self
// to a Context's queue).
func NewScheduled(delay time.Duration, scheduleFn ScheduleFunc, fn Func) *ScheduledFuture {
	sf := &ScheduledFuture{
		Future: New(fn),
	}
	sf.timer = time.AfterFunc(delay, func() {
		sf.mu.Lock()
		sf.timer = nil
		sf.mu.Unlock()
		if scheduleFn != nil {
			scheduleFn(sf)
		}
	})
	return sf
}

// Cancel cancels the ScheduledFuture. If the timer has not yet fired, it is
// stopped and the work never runs. If the timer has already fired but
// Process has not yet started, the base Future cancellation wins and
// Process becomes a no-op when the worker eventually dequeues it. If
// Process has already completed, Cancel is a no-op and returns false.
func (sf *ScheduledFuture) Cancel() bool {
	sf.mu.Lock()
	if sf.timer != nil {
		sf.timer.Stop()
		sf.timer = nil
	}
	sf.mu.Unlock()

	return sf.Future.Cancel()
}

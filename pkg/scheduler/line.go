package scheduler

import (
	"sync"
	"time"
)

// Line is a single timer slot. At most one callback is armed at a time:
// arming cancels the previous timer, and a callback that lost a race with
// Cancel or Arm does not run.
type Line struct {
	clock Clock

	mu    sync.Mutex
	timer Timer
	gen   uint64
	at    time.Time
}

// NewLine returns an empty line on clock.
func NewLine(clock Clock) *Line {
	return &Line{clock: clock}
}

// Arm schedules fn at the given instant, replacing anything already armed.
// Instants in the past fire as soon as possible.
func (l *Line) Arm(at time.Time, fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cancelLocked()
	gen := l.gen
	l.at = at
	l.timer = l.clock.AfterFunc(at.Sub(l.clock.Now()), func() {
		l.mu.Lock()
		if l.gen != gen {
			l.mu.Unlock()
			return
		}
		l.timer = nil
		l.at = time.Time{}
		l.mu.Unlock()
		fn()
	})
}

// Cancel stops the armed timer, if any.
func (l *Line) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelLocked()
}

func (l *Line) cancelLocked() {
	l.gen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.at = time.Time{}
}

// Next returns when the armed timer fires.
func (l *Line) Next() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.at, l.timer != nil
}

package scheduler

import "time"

// DefaultRetryLadder returns the delays between consecutive failed fetches.
// Once exhausted the fetch is deferred to the next day.
func DefaultRetryLadder() []time.Duration {
	return []time.Duration{
		time.Minute,
		10 * time.Minute,
		60 * time.Minute,
		120 * time.Minute,
		180 * time.Minute,
	}
}

// RetryState is a queue of remaining retry delays. It owns its copy of the
// ladder.
type RetryState struct {
	ladder []time.Duration
	queue  []time.Duration
}

// NewRetryState returns a full queue built from ladder.
func NewRetryState(ladder []time.Duration) *RetryState {
	r := &RetryState{ladder: append([]time.Duration(nil), ladder...)}
	r.Reset()
	return r
}

// Next pops the next delay. It returns false when the queue is empty.
func (r *RetryState) Next() (time.Duration, bool) {
	if len(r.queue) == 0 {
		return 0, false
	}
	d := r.queue[0]
	r.queue = r.queue[1:]
	return d, true
}

// Reset refills the queue.
func (r *RetryState) Reset() {
	r.queue = append(r.queue[:0:0], r.ladder...)
}

// Remaining returns the number of retries left.
func (r *RetryState) Remaining() int {
	return len(r.queue)
}

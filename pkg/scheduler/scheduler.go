// Package scheduler runs the daily price fetch with a retry ladder, and
// provides the clock and timer lines used by every scheduled refresh.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/timeslot"
)

// State is the position of the fetch state machine.
type State int

const (
	// StateIdle has no fetch in flight and the next scan armed.
	StateIdle State = iota
	// StateFetching has a fetch in flight and nothing armed.
	StateFetching
	// StateBackoff has a retry armed after a failure.
	StateBackoff
	// StateDayDeferred gave up for today and has tomorrow's scan armed.
	StateDayDeferred
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateBackoff:
		return "backoff"
	case StateDayDeferred:
		return "day_deferred"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Change is the kind of configuration change delivered to Reconfigure.
type Change int

const (
	// ChangeScanHour re-arms at the recomputed scan instant.
	ChangeScanHour Change = iota + 1
	// ChangeData re-arms shortly so the new data settings are fetched.
	ChangeData
)

func (c Change) String() string {
	switch c {
	case ChangeScanHour:
		return "scan_hour"
	case ChangeData:
		return "data"
	default:
		return fmt.Sprintf("Change(%d)", int(c))
	}
}

const (
	// DefaultStartupDelay is the delay before the first fetch.
	DefaultStartupDelay = 10 * time.Second
	// DefaultReconfigureDelay is the delay before the fetch triggered by a
	// data change.
	DefaultReconfigureDelay = 5 * time.Second
)

// FetchFunc performs one download and extraction.
type FetchFunc func(ctx context.Context) error

// Config configures a Scheduler.
type Config struct {
	ScanHour   int
	ScanMinute int
	Location   *time.Location

	StartupDelay     time.Duration
	ReconfigureDelay time.Duration
	Ladder           []time.Duration
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State       State     `json:"state"`
	Attempt     int       `json:"attempt"`
	Remaining   int       `json:"remaining"`
	NextRun     time.Time `json:"nextRun,omitzero"`
	LastSuccess time.Time `json:"lastSuccess,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Scheduler owns the price-refresh timer line. At most one fetch is ever in
// flight: nothing is armed while Fetching, and reconfigurations that arrive
// during a fetch are applied once it finishes.
type Scheduler struct {
	clock Clock
	line  *Line
	fetch FetchFunc

	mu          sync.Mutex
	ctx         context.Context
	cfg         Config
	state       State
	attempt     int
	retry       *RetryState
	pending     Change
	started     bool
	stopped     bool
	lastSuccess time.Time
	lastErr     error
}

// New returns a scheduler that calls fetch. It does nothing until Start.
func New(clock Clock, fetch FetchFunc, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = timeslot.Rome
	}
	if cfg.StartupDelay <= 0 {
		cfg.StartupDelay = DefaultStartupDelay
	}
	if cfg.ReconfigureDelay <= 0 {
		cfg.ReconfigureDelay = DefaultReconfigureDelay
	}
	if cfg.Ladder == nil {
		cfg.Ladder = DefaultRetryLadder()
	}
	return &Scheduler{
		clock: clock,
		line:  NewLine(clock),
		fetch: fetch,
		ctx:   context.Background(),
		cfg:   cfg,
		retry: NewRetryState(cfg.Ladder),
	}
}

// NextScan returns hour:minute of the day of now in loc if that is strictly
// after now, else hour:minute of the following day.
func NextScan(now time.Time, hour, minute int, loc *time.Location) time.Time {
	today := timeslot.DateOf(now, loc)
	at := timeslot.AtLocal(today, hour, minute, loc)
	if at.After(now) {
		return at
	}
	return timeslot.AtLocal(today.AddDays(1), hour, minute, loc)
}

// Start arms the first fetch after the startup delay. ctx is used for every
// fetch until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.ctx = log.Component(ctx, "scheduler")
	s.state = StateIdle
	s.armLocked(s.clock.Now().Add(s.cfg.StartupDelay), "startup")
}

// Stop cancels the pending timer. A fetch in flight completes but arms
// nothing.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.line.Cancel()
}

// SetScanHour changes the daily scan hour and re-arms accordingly.
func (s *Scheduler) SetScanHour(hour int) {
	s.mu.Lock()
	s.cfg.ScanHour = hour
	s.mu.Unlock()
	s.Reconfigure(ChangeScanHour)
}

// SetScanMinute changes the per-installation minute offset. It takes effect
// when the next scan is computed.
func (s *Scheduler) SetScanMinute(minute int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ScanMinute = minute
}

// Reconfigure cancels the pending timer and re-arms it for the change. The
// retry ladder is refilled.
func (s *Scheduler) Reconfigure(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped {
		return
	}
	if s.state == StateFetching {
		// data changes need a refetch so they win over a scan hour change
		if change > s.pending {
			s.pending = change
		}
		log.Ctx(s.ctx).DebugContext(s.ctx, "deferring reconfiguration until fetch finishes", slog.String("change", change.String()))
		return
	}
	s.applyLocked(change)
}

func (s *Scheduler) applyLocked(change Change) {
	s.retry.Reset()
	s.attempt = 0
	s.state = StateIdle

	now := s.clock.Now()
	switch change {
	case ChangeScanHour:
		s.armLocked(s.reconfiguredScanLocked(now), "scan hour changed")
	default:
		s.armLocked(now.Add(s.cfg.ReconfigureDelay), "data settings changed")
	}
}

// reconfiguredScanLocked treats the current hour as still today, so setting
// the scan hour to the current hour runs immediately.
func (s *Scheduler) reconfiguredScanLocked(now time.Time) time.Time {
	local := now.In(s.cfg.Location)
	today := timeslot.DateOf(now, s.cfg.Location)
	if s.cfg.ScanHour < local.Hour() {
		today = today.AddDays(1)
	}
	return timeslot.AtLocal(today, s.cfg.ScanHour, s.cfg.ScanMinute, s.cfg.Location)
}

// RunNow cancels the pending timer and fetches as soon as possible. It
// returns false if a fetch is already in flight.
func (s *Scheduler) RunNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.stopped || s.state == StateFetching {
		return false
	}
	s.armLocked(s.clock.Now(), "manual refresh")
	return true
}

// State returns the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NextRun returns when the next fetch is armed.
func (s *Scheduler) NextRun() (time.Time, bool) {
	return s.line.Next()
}

// Status returns a snapshot of the scheduler.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := Status{
		State:       s.state,
		Attempt:     s.attempt,
		Remaining:   s.retry.Remaining(),
		LastSuccess: s.lastSuccess,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()
	st.NextRun, _ = s.line.Next()
	return st
}

func (s *Scheduler) armLocked(at time.Time, reason string) {
	log.Ctx(s.ctx).DebugContext(
		s.ctx,
		"arming price refresh",
		slog.String("reason", reason),
		slog.String("state", s.state.String()),
		slog.Time("at", at),
	)
	s.line.Arm(at, s.fire)
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	// a timer re-armed while the previous callback was starting
	if s.stopped || s.state == StateFetching {
		s.mu.Unlock()
		return
	}
	s.state = StateFetching
	ctx := s.ctx
	s.mu.Unlock()

	err := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishLocked(err)
}

func (s *Scheduler) finishLocked(err error) {
	ctx := s.ctx
	now := s.clock.Now()
	if s.stopped {
		s.state = StateIdle
		return
	}

	if err == nil {
		s.retry.Reset()
		s.attempt = 0
		s.lastSuccess = now
		s.lastErr = nil
		s.state = StateIdle
		if s.pending != 0 {
			s.applyPendingLocked()
			return
		}
		s.armLocked(NextScan(now, s.cfg.ScanHour, s.cfg.ScanMinute, s.cfg.Location), "fetch succeeded")
		return
	}

	s.lastErr = err
	if delay, ok := s.retry.Next(); ok {
		s.attempt++
		s.state = StateBackoff
		log.Ctx(ctx).WarnContext(
			ctx,
			"price fetch failed, retrying",
			slog.Any("error", err),
			slog.Int("attempt", s.attempt),
			slog.Duration("delay", delay),
		)
		if s.pending != 0 {
			s.applyPendingLocked()
			return
		}
		s.armLocked(now.Add(delay), "fetch failed")
		return
	}

	s.retry.Reset()
	s.attempt = 0
	s.state = StateDayDeferred
	tomorrow := timeslot.DateOf(now, s.cfg.Location).AddDays(1)
	at := timeslot.AtLocal(tomorrow, s.cfg.ScanHour, s.cfg.ScanMinute, s.cfg.Location)
	log.Ctx(ctx).ErrorContext(
		ctx,
		"price fetch retries exhausted, deferring to tomorrow",
		slog.Any("error", err),
		slog.Time("next", at),
	)
	if s.pending != 0 {
		s.applyPendingLocked()
		return
	}
	s.armLocked(at, "retries exhausted")
}

func (s *Scheduler) applyPendingLocked() {
	change := s.pending
	s.pending = 0
	s.applyLocked(change)
}

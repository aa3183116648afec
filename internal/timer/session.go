// Package timer implements the elapsed-time state machine behind countdown
// and stopwatch presentations.
//
// A Session owns a total duration, a status tag and the raw reference points
// needed to compute elapsed time on demand:
//
//	elapsed   = (refNow - start) - pausedFor
//	remaining = max(0, duration - elapsed)
//
// where refNow is the pause instant while paused and the clock otherwise.
// Nothing is accumulated per tick, so reading a session at any frequency
// never introduces drift.
//
// A Session is a plain value with a single owner. It does no locking; share
// it with a polling loop through driver.Controller.
package timer

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Session tracks elapsed time across start, pause, resume, reset and
// complete transitions.
type Session struct {
	id       string
	duration time.Duration
	status   Status

	start     time.Time     // zero when not running
	pausedAt  time.Time     // zero unless paused
	pausedFor time.Duration // sum of completed pause intervals

	clock Clock
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithID overrides the generated identifier.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// New creates a NotStarted session with the given total duration.
func New(duration time.Duration, opts ...Option) *Session {
	s := &Session{
		id:       newID(),
		duration: duration,
		status:   NotStarted,
		clock:    SystemClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newID() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms; fall back to time.
		t := time.Now().UnixNano()
		for i := 0; i < 8; i++ {
			buf[i] = byte(t >> (i * 8))
		}
	}
	return hex.EncodeToString(buf[:])
}

// ID returns the immutable session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the current status.
func (s *Session) Status() Status { return s.status }

// Duration returns the total duration.
func (s *Session) Duration() time.Duration { return s.duration }

// SetDuration changes the total duration. Elapsed time is unaffected;
// remaining time is recomputed from the new total.
func (s *Session) SetDuration(d time.Duration) { s.duration = d }

// Clock returns the session's time source.
func (s *Session) Clock() Clock { return s.clock }

// IsLive reports whether the session is accumulating time.
func (s *Session) IsLive() bool { return s.status.Live() }

// Start begins counting. It only acts on a NotStarted session; call Reset
// first to restart any other session.
func (s *Session) Start() {
	if s.status != NotStarted {
		return
	}
	s.start = s.clock.Now()
	s.pausedAt = time.Time{}
	s.pausedFor = 0
	s.status = InProgress
}

// Pause freezes elapsed time. It is ignored unless the session is live.
func (s *Session) Pause() {
	if !s.status.Live() {
		return
	}
	s.pausedAt = s.clock.Now()
	s.status = Paused
}

// Resume continues counting after Pause, excluding the paused interval from
// elapsed time. On a live session it only sets the status to Resumed.
// NotStarted and Completed sessions are left alone.
func (s *Session) Resume() {
	switch s.status {
	case NotStarted, Completed:
		return
	case Paused:
		if !s.pausedAt.IsZero() {
			if delta := s.clock.Now().Sub(s.pausedAt); delta > 0 {
				s.pausedFor += delta
			}
			s.pausedAt = time.Time{}
		}
	}
	s.status = Resumed
}

// Reset clears all timing state and returns the session to NotStarted.
func (s *Session) Reset() {
	s.clear()
	s.status = NotStarted
}

// Complete clears all timing state and marks the session terminal.
func (s *Session) Complete() {
	s.clear()
	s.status = Completed
}

func (s *Session) clear() {
	s.start = time.Time{}
	s.pausedAt = time.Time{}
	s.pausedFor = 0
}

// Elapsed returns the live time accumulated since Start, excluding pauses.
// It is zero when the session has no start reference.
func (s *Session) Elapsed() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	ref := s.clock.Now()
	if s.status == Paused && !s.pausedAt.IsZero() {
		ref = s.pausedAt
	}
	elapsed := ref.Sub(s.start) - s.pausedFor
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Remaining returns max(0, duration - elapsed).
func (s *Session) Remaining() time.Duration {
	remaining := s.duration - s.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Progress returns the remaining fraction of the duration in [0, 1].
// A session without a positive duration reports 1.
func (s *Session) Progress() float64 {
	return Fraction(s.Remaining(), s.duration)
}

// ElapsedSeconds returns Elapsed in seconds.
func (s *Session) ElapsedSeconds() float64 { return s.Elapsed().Seconds() }

// RemainingSeconds returns Remaining in seconds.
func (s *Session) RemainingSeconds() float64 { return s.Remaining().Seconds() }

// Fraction returns remaining/total clamped to [0, 1], or 1 when total <= 0.
func Fraction(remaining, total time.Duration) float64 {
	if total <= 0 {
		return 1
	}
	f := float64(remaining) / float64(total)
	switch {
	case f > 1:
		return 1
	case f < 0:
		return 0
	}
	return f
}

// Snapshot is a point-in-time copy of the values a presentation draws from.
type Snapshot struct {
	ID        string
	Status    Status
	Duration  time.Duration
	Elapsed   time.Duration
	Remaining time.Duration
	Progress  float64
}

// Snapshot captures the session's current values.
func (s *Session) Snapshot() Snapshot {
	elapsed := s.Elapsed()
	remaining := s.duration - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		ID:        s.id,
		Status:    s.status,
		Duration:  s.duration,
		Elapsed:   elapsed,
		Remaining: remaining,
		Progress:  Fraction(remaining, s.duration),
	}
}

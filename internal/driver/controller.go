package driver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"timerkit/internal/timer"
)

// Saver persists a session after each transition.
type Saver interface {
	Save(s *timer.Session) error
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithInterval sets the tick interval used when observing.
func WithInterval(d time.Duration) ControllerOption {
	return func(c *Controller) { c.interval = d }
}

// WithSaver persists the session after every transition and on completion.
func WithSaver(s Saver) ControllerOption {
	return func(c *Controller) { c.saver = s }
}

// WithControllerLogger sets the controller's logger.
func WithControllerLogger(l *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDriver replaces the controller's driver.
func WithDriver(d *Driver) ControllerOption {
	return func(c *Controller) {
		if d != nil {
			c.driver = d
		}
	}
}

// Controller binds one session to one driver and one sink for the lifetime
// of a presentation. It owns the session lock, so transitions may be called
// from any goroutine while the loop reads the session.
type Controller struct {
	mu       sync.Mutex
	session  *timer.Session
	interval time.Duration
	saver    Saver
	logger   *slog.Logger

	driver *Driver
	sink   Sink

	emitMu    sync.Mutex
	completed bool // Completed emitted since the last Start or Reset
}

// NewController creates a controller for session. Events go to sink.
func NewController(session *timer.Session, sink Sink, opts ...ControllerOption) *Controller {
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	c := &Controller{
		session:  session,
		interval: DefaultTickInterval,
		logger:   slog.Default(),
		sink:     sink,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.driver == nil {
		c.driver = New(WithLogger(c.logger))
	}
	c.completed = session.Status() == timer.Completed
	return c
}

// Driver returns the controller's driver.
func (c *Controller) Driver() *Driver { return c.driver }

// Start begins the session and observes it. A session without a positive
// duration completes immediately: Started is followed by Completed and no
// loop is started. Start is ignored unless the session is NotStarted.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.session.Status() != timer.NotStarted {
		c.mu.Unlock()
		return
	}
	c.session.Start()
	duration := c.session.Duration()
	zero := duration <= 0
	started := c.eventLocked(Started)
	if zero {
		c.session.Complete()
	}
	c.saveLocked()
	c.mu.Unlock()

	c.setCompleted(false)
	c.logger.Debug("timer started", "session", started.SessionID, "duration", duration)
	c.deliver(started)

	if zero {
		c.emitCompleted(started.SessionID)
		return
	}
	c.observe(ctx)
}

// Watch observes an already live session, such as one restored from
// storage. A restored session whose time has run out completes on the first
// tick.
func (c *Controller) Watch(ctx context.Context) {
	c.observe(ctx)
}

// Pause stops the loop and freezes the session.
func (c *Controller) Pause() {
	c.driver.Stop()

	c.mu.Lock()
	if !c.session.IsLive() {
		c.mu.Unlock()
		return
	}
	c.session.Pause()
	ev := c.eventLocked(Paused)
	c.saveLocked()
	c.mu.Unlock()

	c.logger.Debug("timer paused", "session", ev.SessionID, "elapsed", ev.Elapsed)
	c.deliver(ev)
}

// Resume continues a paused session and observes it again. On a live
// session it only updates the status tag.
func (c *Controller) Resume(ctx context.Context) {
	c.mu.Lock()
	switch c.session.Status() {
	case timer.NotStarted, timer.Completed:
		c.mu.Unlock()
		return
	}
	c.session.Resume()
	ev := c.eventLocked(Resumed)
	c.saveLocked()
	c.mu.Unlock()

	c.logger.Debug("timer resumed", "session", ev.SessionID, "elapsed", ev.Elapsed)
	c.deliver(ev)
	if !c.driver.Running() {
		c.observe(ctx)
	}
}

// Reset stops the loop and returns the session to NotStarted.
func (c *Controller) Reset() {
	c.driver.Stop()

	c.mu.Lock()
	c.session.Reset()
	ev := c.eventLocked(Reset)
	c.saveLocked()
	c.mu.Unlock()

	c.setCompleted(false)
	c.logger.Debug("timer reset", "session", ev.SessionID)
	c.deliver(ev)
}

// Complete stops the loop and marks the session terminal. Completed is
// emitted unless it already was.
func (c *Controller) Complete() {
	c.driver.Stop()

	c.mu.Lock()
	c.session.Complete()
	c.saveLocked()
	c.mu.Unlock()

	c.emitCompleted(c.session.ID())
}

// SetInterval changes the tick interval. A running loop is restarted with
// the new interval.
func (c *Controller) SetInterval(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	if d <= 0 {
		d = DefaultTickInterval
	}
	changed := c.interval != d
	c.interval = d
	c.mu.Unlock()

	if changed && c.driver.Running() {
		c.logger.Info("tick interval changed", "interval", d)
		c.observe(ctx)
	}
}

// Interval returns the current tick interval.
func (c *Controller) Interval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Snapshot returns a consistent copy of the session values.
func (c *Controller) Snapshot() timer.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Save persists the session through the configured Saver.
func (c *Controller) Save() error {
	if c.saver == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saver.Save(c.session)
}

// Close stops the loop. The session is left as is.
func (c *Controller) Close() {
	c.driver.Stop()
}

func (c *Controller) observe(ctx context.Context) {
	c.driver.Observe(ctx, lockedSource{c}, c.Interval(), SinkFunc(c.fromLoop))
}

// fromLoop receives events from the driver goroutine.
func (c *Controller) fromLoop(ev Event) {
	if ev.Kind == Completed {
		c.mu.Lock()
		c.saveLocked()
		c.mu.Unlock()

		c.emitCompletedEvent(ev)
		return
	}
	c.deliver(ev)
}

func (c *Controller) emitCompleted(id string) {
	c.emitCompletedEvent(Event{
		Kind:      Completed,
		SessionID: id,
		At:        time.Now(),
	})
}

func (c *Controller) emitCompletedEvent(ev Event) {
	c.emitMu.Lock()
	if c.completed {
		c.emitMu.Unlock()
		return
	}
	c.completed = true
	c.emitMu.Unlock()

	c.logger.Info("timer finished", "session", ev.SessionID)
	c.deliver(ev)
}

func (c *Controller) setCompleted(v bool) {
	c.emitMu.Lock()
	c.completed = v
	c.emitMu.Unlock()
}

func (c *Controller) deliver(ev Event) {
	c.sink.Emit(ev)
}

func (c *Controller) eventLocked(kind Kind) Event {
	snap := c.session.Snapshot()
	return Event{
		Kind:      kind,
		SessionID: snap.ID,
		Progress:  snap.Progress,
		Remaining: snap.Remaining,
		Elapsed:   snap.Elapsed,
		At:        time.Now(),
	}
}

func (c *Controller) saveLocked() {
	if c.saver == nil {
		return
	}
	if err := c.saver.Save(c.session); err != nil {
		c.logger.Warn("failed to persist timer session", "session", c.session.ID(), "error", err)
	}
}

// lockedSource reads the controller's session under its lock.
type lockedSource struct{ c *Controller }

func (l lockedSource) Snapshot() timer.Snapshot {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return l.c.session.Snapshot()
}

func (l lockedSource) Complete() {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	l.c.session.Complete()
}

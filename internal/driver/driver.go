// Package driver turns a timer session into a stream of progress samples
// and a single completion signal.
//
// A Driver runs at most one polling loop. Each loop samples its source once
// immediately and then once per tick interval:
//
//   - remaining <= 0: the source is completed, Completed is emitted and the
//     loop ends
//   - otherwise a Tick carrying remaining/duration is emitted
//
// The loop also ends, silently, when it is cancelled or when the source is
// no longer live (paused, reset or completed elsewhere). The driver never
// pauses itself; callers stop it on pause and observe again on resume.
// Controller does that bookkeeping for a single presentation.
package driver

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"timerkit/internal/timer"
)

// DefaultTickInterval is used when Observe is given a non-positive interval.
const DefaultTickInterval = time.Second

// Source is the view of a session the loop reads. *timer.Session satisfies
// it; Controller supplies a locked implementation. Each sample is taken from
// one Snapshot so its values belong to the same instant.
type Source interface {
	Snapshot() timer.Snapshot
	Complete()
}

// Ticker delivers tick instants. *time.Ticker is adapted by NewTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewTicker returns a Ticker backed by time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for loop lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics records loop activity in m.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithTicker replaces the tick source, mainly for tests.
func WithTicker(f func(time.Duration) Ticker) Option {
	return func(d *Driver) {
		if f != nil {
			d.newTicker = f
		}
	}
}

// Driver polls a Source on a fixed interval.
type Driver struct {
	mu   sync.Mutex // serializes Observe and Stop
	loop *loop

	// emitMu serializes sink calls across an old loop finishing its last
	// emit and a new loop's first one.
	emitMu sync.Mutex

	lastProgress atomic.Uint64 // math.Float64bits
	logger       *slog.Logger
	metrics      *Metrics
	newTicker    func(time.Duration) Ticker
}

type loop struct {
	src      Source
	sink     Sink
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	// gate orders Stop against the start of an emit: once stopped is set no
	// emit begins, and Stop only waits when no emit is in progress.
	gate     sync.Mutex
	stopped  bool
	emitting bool
}

// begin marks the loop as emitting. It reports false once the loop was
// stopped or its context cancelled.
func (l *loop) begin(ctx context.Context) bool {
	l.gate.Lock()
	defer l.gate.Unlock()
	if l.stopped || ctx.Err() != nil {
		return false
	}
	l.emitting = true
	return true
}

func (l *loop) end() {
	l.gate.Lock()
	l.emitting = false
	l.gate.Unlock()
}

// New creates an idle Driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		logger:    slog.Default(),
		newTicker: NewTicker,
	}
	d.lastProgress.Store(math.Float64bits(1))
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Observe starts polling src every interval and reports to sink. Any loop
// already running on this driver is stopped first, so two loops never run
// at the same time. Nothing starts when src is not live.
func (d *Driver) Observe(ctx context.Context, src Source, interval time.Duration, sink Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()

	snap := src.Snapshot()
	if !snap.Status.Live() {
		d.logger.Debug("session not live, not observing",
			"session", snap.ID, "status", snap.Status.String())
		return
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &loop{
		src:      src,
		sink:     sink,
		interval: interval,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	d.loop = l
	d.metrics.loopStarted()
	d.logger.Debug("observing session", "session", snap.ID, "interval", interval)

	go d.run(ctx, l)
}

// Stop cancels the running loop, if any, and waits for it to exit. No emit
// starts after Stop. When an Emit is already in progress, such as when Stop
// is called from inside a sink, Stop only cancels: the loop exits as soon as
// that Emit returns.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Driver) stopLocked() {
	l := d.loop
	if l == nil {
		return
	}
	d.loop = nil
	l.cancel()

	l.gate.Lock()
	l.stopped = true
	emitting := l.emitting
	l.gate.Unlock()
	if emitting {
		return
	}
	<-l.done
}

// Running reports whether a loop is active.
func (d *Driver) Running() bool {
	d.mu.Lock()
	l := d.loop
	d.mu.Unlock()
	if l == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current loop exits. It is already
// closed when no loop is running.
func (d *Driver) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loop == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return d.loop.done
}

// LastProgress returns the progress of the most recent Tick or Completed
// event, 1 before any.
func (d *Driver) LastProgress() float64 {
	return math.Float64frombits(d.lastProgress.Load())
}

func (d *Driver) run(ctx context.Context, l *loop) {
	defer close(l.done)
	defer d.metrics.loopStopped()

	ticker := d.newTicker(l.interval)
	defer ticker.Stop()

	for {
		if !d.step(ctx, l) {
			return
		}
		select {
		case <-ctx.Done():
			d.metrics.cancelled()
			return
		case <-ticker.C():
		}
	}
}

// step samples the source once. It returns false when the loop must end.
func (d *Driver) step(ctx context.Context, l *loop) bool {
	d.emitMu.Lock()
	defer d.emitMu.Unlock()

	if ctx.Err() != nil {
		return false
	}
	snap := l.src.Snapshot()
	if !snap.Status.Live() {
		d.logger.Debug("session left live state", "session", snap.ID, "status", snap.Status.String())
		return false
	}
	ev := Event{
		SessionID: snap.ID,
		Remaining: snap.Remaining,
		Elapsed:   snap.Elapsed,
		At:        time.Now(),
	}

	if !l.begin(ctx) {
		d.metrics.cancelled()
		return false
	}
	defer l.end()

	if snap.Remaining <= 0 {
		l.src.Complete()
		ev.Kind = Completed
		ev.Remaining = 0
		d.lastProgress.Store(math.Float64bits(0))
		d.metrics.completed()
		d.logger.Info("timer completed", "session", ev.SessionID, "elapsed", ev.Elapsed)
		l.sink.Emit(ev)
		return false
	}

	ev.Kind = Tick
	ev.Progress = snap.Progress
	d.lastProgress.Store(math.Float64bits(ev.Progress))
	d.metrics.ticked(ev.Progress)
	l.sink.Emit(ev)
	return true
}

package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Kind identifies what happened to an observed session.
type Kind int

const (
	// Started is emitted once when a session begins counting.
	Started Kind = iota
	// Paused is emitted when a live session is paused.
	Paused
	// Resumed is emitted when a paused session continues.
	Resumed
	// Tick carries a progress sample.
	Tick
	// Completed is the terminal event; it is always the last event of a loop.
	Completed
	// Reset is emitted when a session is returned to its initial state.
	Reset
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Paused:
		return "paused"
	case Resumed:
		return "resumed"
	case Tick:
		return "tick"
	case Completed:
		return "completed"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is a single notification about a session.
type Event struct {
	Kind      Kind
	SessionID string

	// Progress is the remaining fraction of the duration in [0, 1].
	Progress  float64
	Remaining time.Duration
	Elapsed   time.Duration
	At        time.Time
}

// LogValue implements slog.LogValuer.
func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", e.Kind.String()),
		slog.String("session", e.SessionID),
		slog.Float64("progress", e.Progress),
		slog.Duration("remaining", e.Remaining),
		slog.Duration("elapsed", e.Elapsed),
	)
}

// Sink receives events. Emit is called from the driver's loop goroutine for
// Tick and loop-detected Completed events, and from the caller's goroutine
// for transitions made through a Controller. Calls never overlap.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Callbacks maps events onto individual hooks. Nil hooks are skipped.
type Callbacks struct {
	OnStart       func(Event)
	OnPauseResume func(paused bool, e Event)
	OnTick        func(progress float64, remaining time.Duration)
	OnComplete    func(Event)
	OnReset       func(Event)
}

// Emit dispatches e to the matching hook.
func (c Callbacks) Emit(e Event) {
	switch e.Kind {
	case Started:
		if c.OnStart != nil {
			c.OnStart(e)
		}
	case Paused, Resumed:
		if c.OnPauseResume != nil {
			c.OnPauseResume(e.Kind == Paused, e)
		}
	case Tick:
		if c.OnTick != nil {
			c.OnTick(e.Progress, e.Remaining)
		}
	case Completed:
		if c.OnComplete != nil {
			c.OnComplete(e)
		}
	case Reset:
		if c.OnReset != nil {
			c.OnReset(e)
		}
	}
}

// ChanSink delivers events on a buffered channel. Emit blocks while the
// buffer is full.
type ChanSink chan Event

// NewChanSink creates a ChanSink with the given buffer size.
func NewChanSink(size int) ChanSink {
	return make(ChanSink, size)
}

// Emit sends e on the channel.
func (c ChanSink) Emit(e Event) { c <- e }

// MultiSink fans an event out to every sink in order.
type MultiSink []Sink

// Emit forwards e to each non-nil sink.
func (m MultiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// LogSink writes every event to a structured logger. Ticks are logged at
// debug level, everything else at info.
type LogSink struct {
	Logger *slog.Logger
}

// Emit logs e.
func (l LogSink) Emit(e Event) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if e.Kind == Tick {
		level = slog.LevelDebug
	}
	logger.Log(context.Background(), level, "timer event", slog.Any("event", e))
}

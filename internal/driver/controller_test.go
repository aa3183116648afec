package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timerkit/internal/timer"
)

type recordingSaver struct {
	mu       sync.Mutex
	statuses []timer.Status
	err      error
}

func (r *recordingSaver) Save(s *timer.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, s.Status())
	return r.err
}

func (r *recordingSaver) saved() []timer.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timer.Status(nil), r.statuses...)
}

type controllerFixture struct {
	clock  *timer.ManualClock
	ticker *tickerSource
	sink   ChanSink
	saver  *recordingSaver
	ctrl   *Controller
}

func newControllerFixture(t *testing.T, d time.Duration) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		clock:  timer.NewManualClock(epoch),
		ticker: &tickerSource{},
		sink:   NewChanSink(64),
		saver:  &recordingSaver{},
	}
	session := timer.New(d, timer.WithClock(f.clock))
	f.ctrl = NewController(session, f.sink,
		WithInterval(time.Second),
		WithSaver(f.saver),
		WithDriver(New(WithTicker(f.ticker.factory))),
	)
	t.Cleanup(f.ctrl.Close)
	return f
}

func (f *controllerFixture) tick(d time.Duration) {
	f.clock.Advance(d)
	f.ticker.fire(f.clock.Now())
}

func TestControllerLifecycle(t *testing.T) {
	f := newControllerFixture(t, 5*time.Second)
	ctx := context.Background()

	f.ctrl.Start(ctx)
	assert.Equal(t, Started, recv(t, f.sink).Kind)
	first := recv(t, f.sink)
	assert.Equal(t, Tick, first.Kind)
	assert.Equal(t, 5*time.Second, first.Remaining)

	f.tick(time.Second)
	assert.Equal(t, 4*time.Second, recv(t, f.sink).Remaining)

	f.ctrl.Pause()
	paused := recv(t, f.sink)
	assert.Equal(t, Paused, paused.Kind)
	assert.Equal(t, time.Second, paused.Elapsed)
	assert.False(t, f.ctrl.Driver().Running())

	f.clock.Advance(time.Minute)
	assert.Equal(t, time.Second, f.ctrl.Snapshot().Elapsed)

	f.ctrl.Resume(ctx)
	assert.Equal(t, Resumed, recv(t, f.sink).Kind)
	resumedTick := recv(t, f.sink)
	assert.Equal(t, Tick, resumedTick.Kind)
	assert.Equal(t, 4*time.Second, resumedTick.Remaining)

	for i := 3; i >= 1; i-- {
		f.tick(time.Second)
		ev := recv(t, f.sink)
		require.Equal(t, Tick, ev.Kind)
		assert.Equal(t, time.Duration(i)*time.Second, ev.Remaining)
	}
	f.tick(time.Second)
	assert.Equal(t, Completed, recv(t, f.sink).Kind)
	assertNoEvent(t, f.sink, 20*time.Millisecond)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, timer.Completed, snap.Status)
	assert.Zero(t, snap.Elapsed)

	saved := f.saver.saved()
	require.NotEmpty(t, saved)
	assert.Equal(t, []timer.Status{timer.InProgress, timer.Paused, timer.Resumed}, saved[:3])
	assert.Equal(t, timer.Completed, saved[len(saved)-1])
}

func TestControllerZeroDurationSkipsTicks(t *testing.T) {
	f := newControllerFixture(t, 0)

	f.ctrl.Start(context.Background())
	assert.Equal(t, Started, recv(t, f.sink).Kind)
	assert.Equal(t, Completed, recv(t, f.sink).Kind)
	assertNoEvent(t, f.sink, 20*time.Millisecond)

	assert.False(t, f.ctrl.Driver().Running())
	assert.Equal(t, timer.Completed, f.ctrl.Snapshot().Status)
	assert.Equal(t, []timer.Status{timer.Completed}, f.saver.saved())
}

func TestControllerCompleteEmitsOnce(t *testing.T) {
	f := newControllerFixture(t, time.Minute)
	f.ctrl.Start(context.Background())
	recv(t, f.sink)
	recv(t, f.sink)

	f.ctrl.Complete()
	f.ctrl.Complete()
	assert.Equal(t, Completed, recv(t, f.sink).Kind)
	assertNoEvent(t, f.sink, 20*time.Millisecond)

	// Start is ignored on a completed session.
	f.ctrl.Start(context.Background())
	assertNoEvent(t, f.sink, 20*time.Millisecond)
}

func TestControllerResetAllowsRestart(t *testing.T) {
	f := newControllerFixture(t, time.Second)
	ctx := context.Background()

	f.ctrl.Start(ctx)
	recv(t, f.sink)
	recv(t, f.sink)
	f.tick(time.Second)
	require.Equal(t, Completed, recv(t, f.sink).Kind)

	f.ctrl.Reset()
	reset := recv(t, f.sink)
	assert.Equal(t, Reset, reset.Kind)
	assert.Equal(t, time.Second, reset.Remaining)

	f.ctrl.Start(ctx)
	assert.Equal(t, Started, recv(t, f.sink).Kind)
	assert.Equal(t, Tick, recv(t, f.sink).Kind)
	f.tick(time.Second)
	assert.Equal(t, Completed, recv(t, f.sink).Kind)
}

func TestControllerResumeIgnoredWhenNotStarted(t *testing.T) {
	f := newControllerFixture(t, time.Minute)

	f.ctrl.Resume(context.Background())
	f.ctrl.Pause()
	assertNoEvent(t, f.sink, 20*time.Millisecond)
	assert.False(t, f.ctrl.Driver().Running())
	assert.Empty(t, f.saver.saved())
}

func TestControllerPauseFromTickCallback(t *testing.T) {
	clock := timer.NewManualClock(epoch)
	session := timer.New(time.Minute, timer.WithClock(clock))
	events := NewChanSink(16)

	var ctrl *Controller
	ctrl = NewController(session, MultiSink{events, Callbacks{
		OnTick: func(float64, time.Duration) { ctrl.Pause() },
	}}, WithDriver(New(WithTicker(newManualTicker().factory))))
	defer ctrl.Close()

	ctrl.Start(context.Background())
	assert.Equal(t, Started, recv(t, events).Kind)
	assert.Equal(t, Tick, recv(t, events).Kind)
	assert.Equal(t, Paused, recv(t, events).Kind)
	assert.Equal(t, timer.Paused, ctrl.Snapshot().Status)
}

func TestControllerSetIntervalRestartsLoop(t *testing.T) {
	clock := timer.NewManualClock(epoch)
	session := timer.New(time.Minute, timer.WithClock(clock))
	sink := NewChanSink(16)

	var mu sync.Mutex
	var intervals []time.Duration
	tk := newManualTicker()
	d := New(WithTicker(func(iv time.Duration) Ticker {
		mu.Lock()
		intervals = append(intervals, iv)
		mu.Unlock()
		return tk
	}))
	ctrl := NewController(session, sink, WithDriver(d), WithInterval(time.Second))
	defer ctrl.Close()

	ctx := context.Background()
	ctrl.Start(ctx)
	recv(t, sink)
	recv(t, sink)

	ctrl.SetInterval(ctx, 250*time.Millisecond)
	assert.Equal(t, Tick, recv(t, sink).Kind)
	assert.Equal(t, 250*time.Millisecond, ctrl.Interval())

	// Same interval again does not restart.
	ctrl.SetInterval(ctx, 250*time.Millisecond)
	assertNoEvent(t, sink, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []time.Duration{time.Second, 250 * time.Millisecond}, intervals)
}

func TestControllerWatchRestoredSession(t *testing.T) {
	clock := timer.NewManualClock(epoch)
	session := timer.New(10*time.Second, timer.WithClock(clock))
	session.Start()
	clock.Advance(30 * time.Second)

	sink := NewChanSink(4)
	ctrl := NewController(session, sink, WithDriver(New(WithTicker(newManualTicker().factory))))
	defer ctrl.Close()

	ctrl.Watch(context.Background())
	assert.Equal(t, Completed, recv(t, sink).Kind)
	assertNoEvent(t, sink, 20*time.Millisecond)
}

func TestControllerSaveErrorsAreNotFatal(t *testing.T) {
	f := newControllerFixture(t, time.Minute)
	f.saver.err = errors.New("disk full")

	f.ctrl.Start(context.Background())
	assert.Equal(t, Started, recv(t, f.sink).Kind)
	assert.Equal(t, Tick, recv(t, f.sink).Kind)
	assert.Error(t, f.ctrl.Save())
}

// Package notify shows a desktop notification when a timer completes, using
// the freedesktop notification service on the D-Bus session bus.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"timerkit/internal/driver"
	"timerkit/internal/timer"
)

const (
	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	notifyCall = busName + ".Notify"
)

// Config controls the notifications a Notifier sends.
type Config struct {
	AppName string
	// Timeout is how long the notification stays up; negative leaves it to
	// the notification server.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Notifier is a driver.Sink that raises a notification on Completed events
// and ignores everything else.
type Notifier struct {
	obj     dbus.BusObject
	conn    *dbus.Conn
	appName string
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// New connects to the session bus.
func New(cfg Config) (*Notifier, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	n := newNotifier(conn.Object(busName, objectPath), cfg)
	n.conn = conn
	return n, nil
}

func newNotifier(obj dbus.BusObject, cfg Config) *Notifier {
	if cfg.AppName == "" {
		cfg.AppName = "timerkit"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Notifier{
		obj:     obj,
		appName: cfg.AppName,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Emit implements driver.Sink. The notification is sent in the background
// so the polling loop is never held up by the bus.
func (n *Notifier) Emit(ev driver.Event) {
	if ev.Kind != driver.Completed {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := n.Notify(ctx, "Timer finished", completionBody(ev)); err != nil {
			n.logger.Warn("desktop notification failed", "session", ev.SessionID, "error", err)
		}
	}()
}

// Notify sends one notification and returns the server's id for it.
func (n *Notifier) Notify(ctx context.Context, summary, body string) (uint32, error) {
	timeout := int32(-1)
	if n.timeout >= 0 {
		timeout = int32(n.timeout.Milliseconds())
	}
	call := n.obj.CallWithContext(ctx, notifyCall, 0,
		n.appName,
		uint32(0), // replaces_id
		"",        // app_icon
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))},
		timeout,
	)
	if call.Err != nil {
		return 0, fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("notify reply: %w", err)
	}
	return id, nil
}

// Close waits for pending notifications. The shared session bus
// connection is left open.
func (n *Notifier) Close() error {
	n.wg.Wait()
	return nil
}

func completionBody(ev driver.Event) string {
	if ev.Elapsed > 0 {
		return fmt.Sprintf("Session %s completed after %s.", shortID(ev.SessionID), timer.FormatClock(ev.Elapsed))
	}
	return fmt.Sprintf("Session %s completed.", shortID(ev.SessionID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

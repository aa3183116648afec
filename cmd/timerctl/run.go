package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"timerkit/internal/config"
	"timerkit/internal/driver"
	"timerkit/internal/health"
	"timerkit/internal/logging"
	"timerkit/internal/notify"
	"timerkit/internal/timer"
)

var cmdRun = &cli.Command{
	Name:      "run",
	Usage:     "drive a timer in the foreground until it completes; interrupt pauses it",
	ArgsUsage: `<id>`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "do not print a progress line per tick",
		},
	},
	Action: runRun,
}

func runRun(cctx *cli.Context) error {
	return withSession(cctx, func(e *env, sess *timer.Session) error {
		out := cctx.App.Writer
		ctx := logging.ContextWithSession(cctx.Context, sess.ID())
		logger := e.logger.WithContext(ctx)

		if sess.Status() == timer.Completed {
			fmt.Fprintf(out, "%s already completed\n", sess.ID())
			return nil
		}

		reg := prometheus.NewRegistry()
		metrics := driver.NewMetrics(reg)
		checker := health.NewChecker()
		checker.RegisterFunc("store", true, health.PingCheck(e.store.Ping))
		if e.cfg.Metrics.Enabled {
			addr, stop, err := serveMetrics(e.cfg.Metrics.ListenAddr, reg, checker)
			if err != nil {
				return err
			}
			defer stop()
			logger.Info("serving metrics", "addr", addr)
		}

		finished := make(chan struct{})
		var once sync.Once
		sinks := driver.MultiSink{driver.LogSink{Logger: logger.Logger}}
		if !cctx.Bool("quiet") {
			sinks = append(sinks, &progressPrinter{w: out})
		}
		if e.cfg.Notify.Enabled {
			n, err := notify.New(notify.Config{
				AppName: e.cfg.Notify.AppName,
				Timeout: e.cfg.NotifyTimeout(),
				Logger:  logger.WithComponent("notify").Logger,
			})
			if err != nil {
				logger.Warn("desktop notifications unavailable", "error", err)
			} else {
				defer n.Close()
				sinks = append(sinks, n)
			}
		}

		// Last, so every other sink has seen Completed before run returns.
		sinks = append(sinks, driver.Callbacks{
			OnComplete: func(driver.Event) { once.Do(func() { close(finished) }) },
		})

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		ctrl := driver.NewController(sess, sinks,
			driver.WithInterval(e.cfg.TickInterval()),
			driver.WithSaver(e.store),
			driver.WithControllerLogger(logger.WithComponent("controller").Logger),
			driver.WithDriver(driver.New(
				driver.WithLogger(logger.WithComponent("driver").Logger),
				driver.WithMetrics(metrics),
			)),
		)
		defer ctrl.Close()
		checker.RegisterFunc("loop", false, health.LoopCheck(ctrl.Driver().Running))

		e.loader.OnChange(func(c *config.Config) {
			ctrl.SetInterval(ctx, c.TickInterval())
		})
		if err := e.loader.Watch(); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
		} else {
			go logReloadErrors(ctx, e.loader, logger.Logger)
		}

		switch sess.Status() {
		case timer.NotStarted:
			ctrl.Start(ctx)
		case timer.Paused:
			ctrl.Resume(ctx)
		default:
			ctrl.Watch(ctx)
		}

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		select {
		case <-finished:
			return nil
		case <-sigCtx.Done():
		}

		ctrl.Pause()
		snap := ctrl.Snapshot()
		if snap.Status == timer.Completed {
			return nil
		}
		fmt.Fprintf(out, "paused with %s remaining; continue with: timerctl run %s\n",
			timer.FormatClock(snap.Remaining), snap.ID)
		return nil
	})
}

func logReloadErrors(ctx context.Context, loader *config.Loader, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-loader.Errors():
			logger.Warn("config reload failed", "error", err)
		}
	}
}

// serveMetrics exposes reg on /metrics and the health report on /healthz.
// It returns the bound address and a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, checker *health.Checker) (string, func(), error) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/healthz", checker.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
		}
	}()

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

// progressPrinter writes one line per tick and a final line on
// completion.
type progressPrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *progressPrinter) Emit(ev driver.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case driver.Tick:
		fmt.Fprintf(p.w, "%s %s remaining\n", progressBar(ev.Progress, 30), timer.FormatClock(ev.Remaining))
	case driver.Started:
		fmt.Fprintf(p.w, "started %s\n", ev.SessionID)
	case driver.Resumed:
		fmt.Fprintf(p.w, "resumed with %s remaining\n", timer.FormatClock(ev.Remaining))
	case driver.Completed:
		fmt.Fprintf(p.w, "%s completed\n", progressBar(0, 30))
	}
}

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"timerkit/internal/store"
	"timerkit/internal/timer"
)

var cmdNew = &cli.Command{
	Name:  "new",
	Usage: "create a timer and print its id",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:    "duration",
			Aliases: []string{"d"},
			Usage:   "countdown length, e.g. 25m (default from config)",
		},
		&cli.StringFlag{
			Name:  "id",
			Usage: "use this id instead of a random one",
		},
	},
	Action: runNew,
}

var cmdStart = &cli.Command{
	Name:      "start",
	Usage:     "start a timer that has not been started",
	ArgsUsage: `<id>`,
	Action:    transition("start"),
}

var cmdPause = &cli.Command{
	Name:      "pause",
	Usage:     "pause a running timer",
	ArgsUsage: `<id>`,
	Action:    transition("pause"),
}

var cmdResume = &cli.Command{
	Name:      "resume",
	Usage:     "resume a paused timer",
	ArgsUsage: `<id>`,
	Action:    transition("resume"),
}

var cmdReset = &cli.Command{
	Name:      "reset",
	Usage:     "return a timer to its initial state",
	ArgsUsage: `<id>`,
	Action:    transition("reset"),
}

var cmdComplete = &cli.Command{
	Name:      "complete",
	Usage:     "finish a timer now",
	ArgsUsage: `<id>`,
	Action:    transition("complete"),
}

var cmdStatus = &cli.Command{
	Name:      "status",
	Usage:     "show the state of a timer",
	ArgsUsage: `<id>`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print the stored session document",
		},
	},
	Action: runStatus,
}

var cmdList = &cli.Command{
	Name:    "list",
	Aliases: []string{"ls"},
	Usage:   "list stored timers, most recently changed first",
	Action:  runList,
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Aliases:   []string{"rm"},
	Usage:     "delete a timer",
	ArgsUsage: `<id>`,
	Action:    runDelete,
}

func runNew(cctx *cli.Context) error {
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	d := e.cfg.DefaultDuration()
	if cctx.IsSet("duration") {
		d = cctx.Duration("duration")
	}
	if d < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if d == 0 && !e.cfg.Timer.ZeroDurationCompletes {
		return fmt.Errorf("zero-length timers are disabled by timer.zero_duration_completes")
	}

	var opts []timer.Option
	if cctx.IsSet("id") {
		id := cctx.String("id")
		if err := store.ValidateID(id); err != nil {
			return err
		}
		opts = append(opts, timer.WithID(id))
	}
	sess := timer.New(d, opts...)
	if err := e.store.Save(sess); err != nil {
		return err
	}
	e.logger.WithSession(sess.ID()).Info("timer created", "duration", d)
	fmt.Fprintln(cctx.App.Writer, sess.ID())
	return nil
}

// transition applies one state change to a stored session. Changes that
// the session ignores in its current state are reported, not treated as
// errors.
func transition(name string) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		return withSession(cctx, func(e *env, sess *timer.Session) error {
			before := sess.Status()
			switch name {
			case "start":
				sess.Start()
				if sess.Status() == timer.InProgress && sess.Duration() <= 0 {
					sess.Complete()
				}
			case "pause":
				sess.Pause()
			case "resume":
				sess.Resume()
			case "reset":
				sess.Reset()
			case "complete":
				sess.Complete()
			}

			if sess.Status() == before {
				fmt.Fprintf(cctx.App.Writer, "%s: nothing to %s (status %s)\n", sess.ID(), name, before)
				return nil
			}
			if err := e.store.Save(sess); err != nil {
				return err
			}
			e.logger.WithSession(sess.ID()).Info("timer "+name, "from", before.String(), "to", sess.Status().String())
			printStatusLine(cctx.App.Writer, sess.Snapshot())
			return nil
		})
	}
}

func runStatus(cctx *cli.Context) error {
	id := cctx.Args().First()
	if id == "" {
		return fmt.Errorf("need to provide a session id as an argument")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	if cctx.Bool("json") {
		doc, err := e.store.Document(id)
		if err != nil {
			return err
		}
		fmt.Fprintln(cctx.App.Writer, string(doc))
		return nil
	}

	sess, err := e.store.Load(id)
	if err != nil {
		return err
	}
	snap := sess.Snapshot()
	w := cctx.App.Writer
	fmt.Fprintf(w, "id:        %s\n", snap.ID)
	fmt.Fprintf(w, "status:    %s\n", snap.Status)
	fmt.Fprintf(w, "duration:  %s\n", timer.FormatClock(snap.Duration))
	fmt.Fprintf(w, "elapsed:   %s\n", timer.FormatClock(snap.Elapsed))
	fmt.Fprintf(w, "remaining: %s\n", timer.FormatClock(displayRemaining(snap)))
	progress := snap.Progress
	if snap.Status == timer.Completed {
		progress = 0
	}
	fmt.Fprintf(w, "progress:  %s\n", progressBar(progress, 20))
	return nil
}

func runList(cctx *cli.Context) error {
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	sums, err := e.store.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDURATION\tUPDATED")
	for _, s := range sums {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Status, timer.FormatClock(s.Duration), s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runDelete(cctx *cli.Context) error {
	id := cctx.Args().First()
	if id == "" {
		return fmt.Errorf("need to provide a session id as an argument")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	owner, err := e.own(id)
	if err != nil {
		return err
	}
	defer owner.Release()

	if err := e.store.Delete(id); err != nil {
		return err
	}
	e.logger.WithSession(id).Info("timer deleted")
	return nil
}

func printStatusLine(w io.Writer, snap timer.Snapshot) {
	fmt.Fprintf(w, "%s  %-11s %s remaining\n", snap.ID, snap.Status, timer.FormatClock(displayRemaining(snap)))
}

// displayRemaining shows a completed timer as run out. The session itself
// reports its full duration once completion has cleared the start time.
func displayRemaining(snap timer.Snapshot) time.Duration {
	if snap.Status == timer.Completed {
		return 0
	}
	return snap.Remaining
}

// progressBar renders the remaining fraction as a fixed-width bar.
func progressBar(progress float64, width int) string {
	filled := int(progress*float64(width) + 0.5)
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

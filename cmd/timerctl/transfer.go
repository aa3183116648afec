package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"timerkit/internal/security"
	"timerkit/internal/store"
	"timerkit/internal/timer"
)

var cmdExport = &cli.Command{
	Name:      "export",
	Usage:     "write a timer's session document to a file or stdout",
	ArgsUsage: `<id> [file]`,
	Action:    runExport,
}

var cmdImport = &cli.Command{
	Name:      "import",
	Usage:     "store a session document read from a file (- for stdin)",
	ArgsUsage: `<file>`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "replace an existing timer with the same id",
		},
	},
	Action: runImport,
}

func runExport(cctx *cli.Context) error {
	id := cctx.Args().Get(0)
	if id == "" {
		return fmt.Errorf("need to provide a session id as an argument")
	}
	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	doc, err := e.store.Document(id)
	if err != nil {
		return err
	}

	out := cctx.Args().Get(1)
	if out == "" || out == "-" {
		_, err := fmt.Fprintln(cctx.App.Writer, string(doc))
		return err
	}
	if err := security.WriteSecureFile(out, append(doc, '\n'), security.PermPublicFile); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	e.logger.WithSession(id).Info("timer exported", "path", out)
	return nil
}

func runImport(cctx *cli.Context) error {
	in := cctx.Args().First()
	if in == "" {
		return fmt.Errorf("need to provide a file as an argument")
	}

	var data []byte
	var err error
	if in == "-" {
		data, err = io.ReadAll(cctx.App.Reader)
	} else {
		data, err = os.ReadFile(in)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", in, err)
	}

	sess, err := timer.Decode(data)
	if err != nil {
		return err
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	owner, err := e.own(sess.ID())
	if err != nil {
		return err
	}
	defer owner.Release()

	if !cctx.Bool("force") {
		_, err := e.store.Document(sess.ID())
		switch {
		case err == nil:
			return fmt.Errorf("timer %s already exists (use --force to replace it)", sess.ID())
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
	}

	if err := e.store.Save(sess); err != nil {
		return err
	}
	e.logger.WithSession(sess.ID()).Info("timer imported", "status", sess.Status().String())
	fmt.Fprintln(cctx.App.Writer, sess.ID())
	return nil
}

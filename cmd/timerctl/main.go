// Command timerctl creates, inspects and drives persistent countdown timers.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "timerctl",
		Usage: "pausable countdown timers with persistent state",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (toml, json or yaml)",
				EnvVars: []string{"TIMERKIT_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override the configured log level",
			},
		},
		Commands: []*cli.Command{
			cmdNew,
			cmdStart,
			cmdPause,
			cmdResume,
			cmdReset,
			cmdComplete,
			cmdStatus,
			cmdList,
			cmdDelete,
			cmdExport,
			cmdImport,
			cmdRun,
		},
	}
}

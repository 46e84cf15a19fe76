// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command flux-job-attach is the attach client CLI, spec.md §6: it tails
// a job's eventlogs over internal/transport's websocket stream, renders
// output, forwards stdin, and exits with the job's own exit code.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/flux-framework/flux-core-sub008/internal/attach"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/internal/transport"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

func main() {
	cfg := config.NewDefaultAttachConfig()

	var brokerURL string
	flag.StringVar(&brokerURL, "broker-url", "http://127.0.0.1:8202", "flux-job-ingest HTTP base URL")
	flag.BoolVar(&cfg.ShowPrimaryEvents, "E", false, "show primary eventlog events")
	flag.BoolVar(&cfg.ShowExecEvents, "X", false, "show exec eventlog events")
	flag.BoolVar(&cfg.ShowStatus, "show-status", false, "paint a periodic status line")
	flag.StringVar(&cfg.WaitEvent, "w", "clean", "wait for this primary event before exiting")
	flag.BoolVar(&cfg.LabelIO, "l", false, "label output lines with their source rank")
	flag.BoolVar(&cfg.Verbose, "v", false, "verbose logging")
	flag.BoolVar(&cfg.Quiet, "q", false, "suppress informational output")
	flag.BoolVar(&cfg.ReadOnly, "r", false, "do not forward local stdin")
	flag.BoolVar(&cfg.Unbuffered, "u", false, "forward stdin unbuffered")
	flag.StringVar(&cfg.StdinRanks, "i", "all", "ranks to forward stdin to")
	// --debug and --debug-emulate are accepted for CLI compatibility;
	// MPIR debugger attach itself has no broker-side counterpart in this
	// deployment, so parsing them is as far as this binary goes.
	_ = flag.Bool("debug", false, "attach a debugger to the job's ranks")
	_ = flag.Bool("debug-emulate", false, "emulate debugger attach without a real debugger")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: flux-job-attach [flags] jobid")
		os.Exit(1)
	}
	jobID, err := strconv.ParseUint(flag.Arg(0), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flux-job-attach: invalid jobid %q: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}

	level := "info"
	if cfg.Verbose {
		level = "debug"
	}
	logger := logging.New(&logging.Config{
		Level:   parseLevel(level),
		Output:  os.Stderr,
		Service: "flux-job-attach",
	})

	streamClient := transport.NewEventStreamClient(brokerURL, logger)
	events := eventlog.NewTailer(streamClient)
	rpc := newRPCClient(brokerURL)

	client := attach.New(cfg, jobID, "", events, rpc, rpc, rpc, logger).WithTTYDetector(func(w io.Writer) bool {
		f, ok := w.(*os.File)
		if !ok {
			return false
		}
		fi, err := f.Stat()
		return err == nil && fi.Mode()&os.ModeCharDevice != 0
	})

	code := client.Run(context.Background())
	os.Exit(code)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package attach implements the attach client state machine, spec.md §4.9:
// a single-goroutine reactor that tails a job's three eventlogs, forwards
// stdin, renders stdout/stderr, handles SIGINT/SIGTSTP, and paints an
// optional statusline, exiting with the job's own exit code.
//
// The teacher's reactor-less pkg/watch.JobPoller (channel-per-watch,
// goroutine-per-poll-loop) is adapted here into a fan-in of three tail
// goroutines feeding one select loop, rather than a literal libev-style
// callback reactor — idiomatic Go favors channels over callback
// registration for this shape (DESIGN.md).
package attach

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/internal/taskmap"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

// sigintGrace is how long a second SIGINT / a SIGTSTP has to follow the
// first SIGINT to count as the cancel-or-detach gesture, spec.md §4.9.
const sigintGrace = 2 * time.Second

// EventSource streams one job eventlog; satisfied by *eventlog.Tailer.
type EventSource interface {
	Tail(ctx context.Context, jobID uint64, name string) (<-chan api.EventLogEntry, func() error, error)
}

// StdinSender issues the "<service>.stdin" RPC, spec.md §4.9 "stdin
// forwarding".
type StdinSender interface {
	SendStdin(ctx context.Context, service string, ranks string, data []byte, eof bool) error
}

// Canceler issues flux_job_cancel(id, note), spec.md §4.9 "Signals".
type Canceler interface {
	Cancel(ctx context.Context, jobID uint64, note string) error
}

// QueueStatus fetches whether a queue is administratively stopped, for the
// statusline's "waiting for resources" suffix.
type QueueStatus interface {
	Stopped(ctx context.Context, queue string) (bool, error)
}

// Client drives one job's attach lifecycle end to end.
type Client struct {
	cfg      *config.AttachConfig
	jobID    uint64
	events   EventSource
	stdin    StdinSender
	canceler Canceler
	queue    QueueStatus
	logger   logging.Logger

	stdout io.Writer
	stderr io.Writer
	stdinR io.Reader // nil when ReadOnly

	queueName string // the jobspec's attributes.system.queue, if any

	isTTY func(io.Writer) bool // injected for testability; cmd/flux-job-attach installs a character-device check
}

// New constructs a Client. stdout/stderr/stdinR default to os.Stdout,
// os.Stderr, os.Stdin when nil. queueName is the submitted jobspec's queue
// (if any), used to annotate the "waiting for resources" statusline.
func New(cfg *config.AttachConfig, jobID uint64, queueName string, events EventSource, stdin StdinSender, canceler Canceler, queue QueueStatus, logger logging.Logger) *Client {
	if cfg == nil {
		cfg = config.NewDefaultAttachConfig()
	}
	return &Client{
		cfg:       cfg,
		jobID:     jobID,
		queueName: queueName,
		events:    events,
		stdin:     stdin,
		canceler:  canceler,
		queue:     queue,
		logger:    logging.Or(logger),
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		stdinR:    os.Stdin,
		isTTY:     func(io.Writer) bool { return false },
	}
}

type streamID int

const (
	streamPrimary streamID = iota
	streamExec
	streamOutput
)

func (s streamID) String() string {
	switch s {
	case streamPrimary:
		return "primary"
	case streamExec:
		return "exec"
	case streamOutput:
		return "output"
	default:
		return "unknown"
	}
}

// taggedEntry fans multiple eventlog tails into one channel the reactor
// select loop reads from.
type taggedEntry struct {
	stream streamID
	entry  api.EventLogEntry
	err    error // set only on the final item for this stream
}

// reactor holds the mutable state the spec.md §4.9 transition table reads
// and writes; it only lives inside Run's goroutine, so it needs no lock.
type reactor struct {
	fatal        bool
	exitCode     int
	haveExitCode bool

	service    string
	leaderRank int
	pty        bool
	capture    bool

	headerSeen    bool
	execStarted   bool
	outputStarted bool

	primaryDone, execDone, outputDone bool

	lastPrimaryEvent string
	queueName        string
	lastQueueCheck   time.Time
	queueStopped     bool

	sigintAt    time.Time
	sigintArmed bool

	stdinArmed      bool
	stdinSent       bool
	pendingStdinRPC int

	statusLinePainted bool
}

// Run drives the reactor until every tail it started has terminated (a
// tail that was never started counts as terminated), returning
// the process exit code spec.md §4.9 "Exit" describes.
func (c *Client) Run(ctx context.Context) int {
	ctx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	// Each tail gets its own cancelable context so a transition can end
	// one stream's watch without tearing down the other two, matching
	// the original's per-future flux_job_event_watch_cancel calls rather
	// than one shared cancellation for all three.
	streamCtx := map[streamID]context.Context{}
	streamCancel := map[streamID]context.CancelFunc{}
	for _, id := range []streamID{streamPrimary, streamExec, streamOutput} {
		sc, cancel := context.WithCancel(ctx)
		streamCtx[id] = sc
		streamCancel[id] = cancel
		defer cancel()
	}
	cancelStream := func(id streamID) { streamCancel[id]() }

	merged := make(chan taggedEntry, 64)
	r := &reactor{exitCode: 1, queueName: c.queueName} // default to 1 until finish/clean says otherwise

	startTail := func(id streamID, name string) {
		go func() {
			entries, status, err := c.events.Tail(streamCtx[id], c.jobID, name)
			if err != nil {
				merged <- taggedEntry{stream: id, err: err}
				return
			}
			for e := range entries {
				merged <- taggedEntry{stream: id, entry: e}
			}
			merged <- taggedEntry{stream: id, err: status()}
		}()
	}
	startTail(streamPrimary, eventlog.LogPrimary)

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTSTP)
	defer signal.Stop(sigCh)

	stdinChunks := make(chan stdinChunk, 8)
	var stdinStarted bool
	startStdin := func() {
		if stdinStarted || c.cfg.ReadOnly || c.stdinR == nil {
			return
		}
		stdinStarted = true
		go readStdin(ctx, c.stdinR, c.cfg.Unbuffered, stdinChunks)
	}

	var statusTick <-chan time.Time
	if c.cfg.ShowStatus && c.allTTY() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		statusTick = ticker.C
	}

	stdinResults := make(chan error, 8)

	for {
		if r.primaryDone && (r.execDone || !r.execStarted) && (r.outputDone || !r.outputStarted) && r.pendingStdinRPC == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return exitCodeFor(r)

		case item := <-merged:
			c.handleEntry(ctx, r, item, startTail, startStdin, cancelStream)

		case sig := <-sigCh:
			c.handleSignal(ctx, r, sig, cancelAll)

		case chunk, ok := <-stdinChunks:
			if !ok {
				stdinChunks = nil
				continue
			}
			c.forwardStdin(ctx, r, chunk, stdinResults)

		case err := <-stdinResults:
			r.pendingStdinRPC--
			if err != nil {
				c.logger.Warn("stdin forward failed", "err", err)
				if r.stdinSent {
					fmt.Fprintf(c.stderr, "flux-job: stdin: %s\n", err)
					r.fatal = true
				}
			}

		case now := <-statusTick:
			c.paintStatus(ctx, r, now)
		}
	}

	return exitCodeFor(r)
}

func exitCodeFor(r *reactor) int {
	code := r.exitCode
	if r.fatal && code == 0 {
		code = 1
	}
	return code
}

// WithTTYDetector overrides how Client decides whether a given writer is a
// terminal, for the statusline's "all three are ttys" gate. Tests inject a
// stub; cmd/flux-job-attach installs a check for *os.File character
// devices. stdin is passed to f only if it also implements io.Writer, as
// *os.File does; otherwise it counts as not a terminal.
func (c *Client) WithTTYDetector(f func(io.Writer) bool) *Client {
	c.isTTY = f
	return c
}

// WithIO overrides stdout/stderr/stdin, primarily for tests.
func (c *Client) WithIO(stdout, stderr io.Writer, stdin io.Reader) *Client {
	c.stdout = stdout
	c.stderr = stderr
	c.stdinR = stdin
	return c
}

func (c *Client) allTTY() bool {
	stdin, ok := c.stdinR.(io.Writer)
	return ok && c.isTTY(stdin) && c.isTTY(c.stdout) && c.isTTY(c.stderr)
}

// handleEntry dispatches one eventlog entry per spec.md §4.9's transition
// table, keyed by which stream it arrived on.
func (c *Client) handleEntry(ctx context.Context, r *reactor, item taggedEntry, startTail func(streamID, string), startStdin func(), cancelStream func(streamID)) {
	if item.err != nil {
		c.finishStream(r, item.stream, item.err)
		return
	}

	switch item.stream {
	case streamPrimary:
		c.handlePrimary(ctx, r, item.entry, startTail, cancelStream)
	case streamExec:
		c.handleExec(ctx, r, item.entry, startTail, startStdin)
	case streamOutput:
		c.handleOutput(r, item.entry)
	}
}

func (c *Client) finishStream(r *reactor, id streamID, err error) {
	switch id {
	case streamPrimary:
		r.primaryDone = true
	case streamExec:
		r.execDone = true
	case streamOutput:
		r.outputDone = true
	}
	if err != nil && !eventlog.IsNoData(err) {
		c.logger.Error("eventlog stream ended with error", "stream", id.String(), "err", err)
		fmt.Fprintf(c.stderr, "flux-job: %s\n", err)
		r.fatal = true
	}
}

func (c *Client) handlePrimary(ctx context.Context, r *reactor, e api.EventLogEntry, startTail func(streamID, string), cancelStream func(streamID)) {
	if c.cfg.ShowPrimaryEvents {
		fmt.Fprintf(c.stderr, "%.6f %s %s\n", e.Timestamp, e.Name, string(e.Context))
	}
	r.lastPrimaryEvent = e.Name
	if r.statusLinePainted && (e.Name == "start" || e.Name == "clean") {
		c.clearStatusLine()
	}

	switch e.Name {
	case api.EventException:
		var exc api.ExceptionContext
		_ = e.Decode(&exc)
		if exc.Severity == 0 {
			r.fatal = true
			c.clearStatusLine()
			fmt.Fprintf(c.stderr, "%.3fs: job.exception type=%s severity=%d %s\n",
				e.Timestamp, exc.Type, exc.Severity, exc.Note)
		}

	case api.EventSubmit:
		if !r.execStarted {
			r.execStarted = true
			startTail(streamExec, eventlog.LogExec)
		}

	case api.EventFinish:
		var fin api.FinishContext
		if err := e.Decode(&fin); err == nil {
			r.exitCode = ExitCodeFromStatus(fin.Status)
			r.haveExitCode = true
		}

	default:
	}

	if e.Name == c.waitEvent() {
		r.primaryDone = true
		cancelStream(streamPrimary) // spec.md §4.9: cancel primary tail, initiate attach-completed check
	}
}

// ExitCodeFromStatus is an exported alias of ExitCode kept local to the
// handlePrimary call site's naming.
func ExitCodeFromStatus(status int) int { return ExitCode(status) }

func (c *Client) waitEvent() string {
	if c.cfg.WaitEvent == "" {
		return "clean"
	}
	return c.cfg.WaitEvent
}

func (c *Client) handleExec(ctx context.Context, r *reactor, e api.EventLogEntry, startTail func(streamID, string), startStdin func()) {
	if c.cfg.ShowExecEvents {
		fmt.Fprintf(c.stderr, "%.6f %s %s\n", e.Timestamp, e.Name, string(e.Context))
	}

	switch e.Name {
	case api.EventShellInit:
		var init api.ShellInitContext
		_ = e.Decode(&init)
		r.service = init.Service
		r.leaderRank = init.LeaderRank
		r.pty = init.PTY
		r.capture = init.Capture
		if !r.outputStarted {
			r.outputStarted = true
			startTail(streamOutput, eventlog.LogOutput)
		}
		if r.pty {
			c.logger.Debug("attaching to pty service", "service", r.service)
		} else {
			r.stdinArmed = true
			startStdin()
		}

	case api.EventShellStart:
		var start api.ShellStartContext
		_ = e.Decode(&start)
		if len(start.Taskmap) > 0 && c.cfg.StdinRanks != "" && c.cfg.StdinRanks != "all" {
			c.closeComplementRanks(ctx, r, start.Taskmap)
		}
		r.stdinArmed = true
		startStdin()

	case api.EventExecLog:
		var log api.ExecLogContext
		_ = e.Decode(&log)
		fmt.Fprintf(c.stderrForStream(log.Stream), "%d: %s[%s]: %s", log.Rank, log.Component, log.Stream, log.Data)

	case api.EventComplete:
		if !r.outputStarted {
			r.outputStarted = true
			startTail(streamOutput, eventlog.LogOutput)
		}
	}
}

// closeComplementRanks sends a final eof=true stdin RPC for every rank not
// included in the user's -i selection, spec.md §4.9 "exec shell.start" row.
func (c *Client) closeComplementRanks(ctx context.Context, r *reactor, rawTaskmap json.RawMessage) {
	tm, err := taskmap.Decode(string(rawTaskmap), taskmap.EncodingJSON)
	if err != nil {
		c.logger.Warn("could not parse shell.start taskmap", "err", err)
		return
	}
	total := tm.TotalNTasks()
	selected := parseRankSelection(c.cfg.StdinRanks, total)
	var complement []string
	for i := 0; i < total; i++ {
		if !selected[i] {
			complement = append(complement, itoa(i))
		}
	}
	if len(complement) == 0 || c.stdin == nil || r.service == "" {
		return
	}
	ranks := joinCSV(complement)
	if err := c.stdin.SendStdin(ctx, r.service, ranks, nil, true); err != nil {
		c.logger.Warn("failed to close complement stdin ranks", "err", err)
	}
}

func (c *Client) handleOutput(r *reactor, e api.EventLogEntry) {
	switch e.Name {
	case api.EventHeader:
		r.headerSeen = true

	case api.EventData:
		var data api.DataContext
		if err := e.Decode(&data); err != nil {
			return
		}
		if r.capture && r.pty && data.Rank == "0" {
			return // duplicated by the pty, spec.md §4.9 "output data" row
		}
		raw, err := eventlog.DecodeData(data)
		if err != nil {
			return
		}
		w := c.stderrForStream(data.Stream)
		if c.cfg.LabelIO {
			fmt.Fprintf(w, "%s: ", data.Rank)
		}
		w.Write(raw)
		if r.pty {
			fmt.Fprint(w, "\r")
		}

	case api.EventRedirect:
		if c.cfg.Quiet {
			return
		}
		var red api.RedirectContext
		_ = e.Decode(&red)
		fmt.Fprintf(c.stdout, "%s: %s redirected to %s\n", red.Rank, red.Stream, red.Path)

	case api.EventOutLog:
		var log api.OutLogContext
		_ = e.Decode(&log)
		fmt.Fprintf(c.stderr, "%d: %s: %s\n", log.Rank, eventlog.SeverityName(log.Level), log.Message)
	}
}

func (c *Client) stderrForStream(stream string) io.Writer {
	if stream == "stderr" {
		return c.stderr
	}
	return c.stdout
}

func (c *Client) clearStatusLine() {
	fmt.Fprint(c.stdout, "\r\033[K")
}

func (c *Client) paintStatus(ctx context.Context, r *reactor, now time.Time) {
	msg := StatusMessage(r.lastPrimaryEvent)
	if msg == "waiting for resources" && r.queueName != "" && c.queue != nil {
		if r.lastQueueCheck.IsZero() || now.Sub(r.lastQueueCheck) >= 10*time.Second {
			stopped, err := c.queue.Stopped(ctx, r.queueName)
			if err == nil {
				r.queueStopped = stopped
			}
			r.lastQueueCheck = now
		}
		msg += QueueStoppedSuffix(r.queueName, r.queueStopped)
	}
	fmt.Fprint(c.stdout, Render(c.jobID, msg, now, 0))
	r.statusLinePainted = true
}

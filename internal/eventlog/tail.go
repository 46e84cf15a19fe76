// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package eventlog implements the event-log tail contract of spec.md §4.8:
// a streaming RPC per job eventlog (primary, exec, output) that delivers
// parsed entries in append order and terminates with a no-data error on
// normal EOF.
package eventlog

import (
	"context"
	"encoding/json"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Names of the three eventlogs the attach client tails, spec.md §1/§4.8.
const (
	LogPrimary = "eventlog"
	LogExec    = "guest.exec.eventlog"
	LogOutput  = "guest.output"
)

// RawWatcher is satisfied by the transport layer's flux_job_event_watch
// client (internal/transport/eventstream.go). It streams raw JSON lines,
// one per eventlog entry, in produce order. The returned channel closes
// when the stream ends, whether by natural termination or by ctx
// cancellation; Status must be called only after the channel is drained
// and reports why the stream ended — a CodeNoData error for normal EOF
// (including a caller-requested cancel), any other code for a real
// transport failure.
type RawWatcher interface {
	WatchRaw(ctx context.Context, jobID uint64, name string) (lines <-chan string, status func() error, err error)
}

// Tailer drives RawWatcher streams and parses their lines into
// api.EventLogEntry values, spec.md §4.8.
type Tailer struct {
	watcher RawWatcher
}

func NewTailer(w RawWatcher) *Tailer {
	return &Tailer{watcher: w}
}

// Tail opens a streaming watch on jobID's named eventlog. The returned
// channel delivers parsed entries in produce order and closes when the
// stream ends; Status reports the terminal reason (nil is never returned —
// a clean end is CodeNoData) and must only be called after the channel is
// drained, matching RawWatcher's contract.
func (t *Tailer) Tail(ctx context.Context, jobID uint64, name string) (<-chan api.EventLogEntry, func() error, error) {
	lines, rawStatus, err := t.watcher.WatchRaw(ctx, jobID, name)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan api.EventLogEntry, 16)
	var parseErr error

	go func() {
		defer close(out)
		for line := range lines {
			var entry api.EventLogEntry
			if err := json.Unmarshal([]byte(line), &entry); err != nil {
				parseErr = ferrors.Newf(ferrors.CodeProtocolError, "parse %s entry: %v", name, err)
				return
			}
			select {
			case out <- entry:
			case <-ctx.Done():
				return
			}
		}
	}()

	status := func() error {
		if parseErr != nil {
			return parseErr
		}
		return rawStatus()
	}
	return out, status, nil
}

// IsNoData reports whether err is the normal-EOF terminal status spec.md
// §4.8 says is "not an error" — callers treat it as the stop signal rather
// than a failure to surface.
func IsNoData(err error) bool {
	fe, ok := err.(*ferrors.FluxError)
	return ok && fe.Code == ferrors.CodeNoData
}

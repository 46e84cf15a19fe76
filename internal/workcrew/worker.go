// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workcrew

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// worker wraps one subprocess and its line-oriented JSON stdin/stdout
// pipes. A crash is detected as EOF on stdout (spec.md §4.5's failure
// semantics); any outstanding request then fails with a transport error.
// Respawn backoff after a crash is tracked pool-wide, not per worker,
// since a crashed worker is discarded rather than reused.
type worker struct {
	mu       sync.Mutex
	claimed  bool
	lastUsed time.Time

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	done chan struct{}
}

func (w *worker) tryClaim() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.claimed {
		return false
	}
	w.claimed = true
	return true
}

func (w *worker) claim() {
	w.mu.Lock()
	w.claimed = true
	w.mu.Unlock()
}

func (w *worker) release() {
	w.mu.Lock()
	w.claimed = false
	w.mu.Unlock()
}

func (w *worker) waitExit() {
	w.cmd.Wait()
	close(w.done)
}

// roundTrip writes one request line and reads one response line,
// respecting ctx cancellation. A read that hits EOF reports a transport
// error so the caller can mark this worker crashed and respawn.
func (w *worker) roundTrip(ctx context.Context, line []byte) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	resultCh := make(chan result, 1)

	go func() {
		if _, err := w.stdin.Write(append(line, '\n')); err != nil {
			resultCh <- result{nil, err}
			return
		}
		reply, err := w.stdout.ReadBytes('\n')
		if err != nil && err != io.EOF {
			resultCh <- result{nil, err}
			return
		}
		if len(reply) == 0 && err == io.EOF {
			resultCh <- result{nil, ferrors.New(ferrors.CodeConnectionReset, "worker closed stdout")}
			return
		}
		resultCh <- result{reply, nil}
	}()

	select {
	case r := <-resultCh:
		return r.line, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

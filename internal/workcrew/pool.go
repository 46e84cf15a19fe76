// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package workcrew implements the pooled out-of-process worker contract of
// spec.md §4.5: a pool of long-lived job-validator/job-frobnicator
// processes speaking one-line-JSON request/response over stdin/stdout.
// Grounded on the teacher's pkg/pool/connection_pool.go (mutex-guarded map
// of lazily-created pooled entries with usage stats), adapted from pooled
// HTTP clients to pooled subprocess workers.
package workcrew

import (
	"bufio"
	"context"
	"encoding/json"
	"os/exec"
	"sync"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
	"github.com/flux-framework/flux-core-sub008/pkg/retry"
)

// Request is the job descriptor sent to a worker as a single JSON line,
// spec.md §4.5.
type Request struct {
	Jobspec  json.RawMessage `json:"jobspec"`
	Userid   uint32          `json:"userid"`
	RoleMask api.RoleMask    `json:"rolemask"`
	Urgency  int             `json:"urgency"`
	Flags    api.Flags       `json:"flags"`
}

// rawResponse is the worker's reply line before we know whether it carries
// an error or (frobnicator-only) a replacement jobspec.
type rawResponse struct {
	ErrMsg string `json:"errmsg,omitempty"`
}

// Response is the resolved outcome of one process_job call.
type Response struct {
	// ErrMsg is non-empty when the worker rejected the job.
	ErrMsg string
	// Replacement is the frobnicator's full replacement jobspec line, nil
	// for the validator or when ErrMsg is set.
	Replacement json.RawMessage
}

func (r Response) Accepted() bool { return r.ErrMsg == "" }

// Config controls pool behavior, mirroring spec.md §4.5's configure().
type Config struct {
	Command          string
	PluginsCSV       string
	ArgsCSV          string
	InputBufferBytes int
	MaxWorkers       int
	// Frobnicator marks this pool as returning a replacement jobspec on
	// success rather than a bare {errmsg?} line.
	Frobnicator bool
}

// Pool manages a set of worker processes for one role (validator or
// frobnicator). Safe for concurrent process_job calls.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	cfg     Config
	workers []*worker
	logger  logging.Logger
	stopped bool

	stats Stats

	// respawnBackoff delays spawnLocked after consecutive worker crashes,
	// so a permanently broken worker command doesn't busy-loop respawning
	// (spec.md §4.5 failure semantics). crashStreak counts crashes since
	// a worker last answered a request and resets to 0 once one does.
	respawnBackoff *retry.ExponentialBackoff
	crashStreak    int
}

// Stats mirrors spec.md §4.5's stats_get() counters.
type Stats struct {
	JobsProcessed int64
	JobsRejected  int64
	WorkersSpawned int64
	WorkersCrashed int64
}

func New(cfg Config, logger logging.Logger) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	p := &Pool{cfg: cfg, logger: logger, respawnBackoff: retry.NewExponentialBackoff()}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Configure updates the pool's configuration, spec.md §4.5: workers
// already running continue to serve under their old configuration; only
// workers spawned after this call use the new one.
func (p *Pool) Configure(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// ProcessJob serializes req as a single JSON line, dispatches it to an
// available worker (spawning one if all are busy and the pool is below
// its concurrency cap), and returns the worker's decoded response.
//
// For the frobnicator role, a successful reply is the full replacement
// jobspec as a JSON line rather than {errmsg?}; Response.Replacement
// carries that line's raw bytes in that case.
func (p *Pool) ProcessJob(ctx context.Context, req Request) (Response, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}

	w, err := p.acquireWorker()
	if err != nil {
		return Response{}, err
	}
	defer p.release(w)

	reply, err := w.roundTrip(ctx, line)
	if err != nil {
		p.markCrashed(w)
		return Response{}, ferrors.New(ferrors.CodeConnectionReset, "worker transport error: "+err.Error())
	}

	p.mu.Lock()
	p.stats.JobsProcessed++
	p.crashStreak = 0
	p.respawnBackoff.Reset()
	p.mu.Unlock()

	if p.cfg.Frobnicator {
		var probe rawResponse
		if json.Unmarshal(reply, &probe) == nil && probe.ErrMsg != "" {
			p.mu.Lock()
			p.stats.JobsRejected++
			p.mu.Unlock()
			return Response{ErrMsg: probe.ErrMsg}, nil
		}
		return Response{Replacement: reply}, nil
	}

	var resp rawResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		return Response{}, ferrors.Newf(ferrors.CodeProtocolError, "malformed worker response: %v", err)
	}
	if resp.ErrMsg != "" {
		p.mu.Lock()
		p.stats.JobsRejected++
		p.mu.Unlock()
	}
	return Response{ErrMsg: resp.ErrMsg}, nil
}

// acquireWorker returns an idle worker, spawning a new one if all current
// workers are busy and the pool is below MaxWorkers. Once at capacity with
// every worker busy, callers wait on the pool's backpressure condition
// until one frees up — this is the per-worker write-watcher backpressure
// of spec.md §4.5, modeled here as a single pool-wide wait rather than a
// per-worker queue, since both bound the same thing: outstanding requests
// in flight past MaxWorkers concurrency.
func (p *Pool) acquireWorker() (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for _, w := range p.workers {
			if w.tryClaim() {
				return w, nil
			}
		}
		if p.stopped {
			return nil, ferrors.New(ferrors.CodeInProgress, "workcrew pool is stopping")
		}
		if len(p.workers) < p.cfg.MaxWorkers {
			if p.crashStreak > 0 {
				delay, _ := p.respawnBackoff.NextDelay(p.crashStreak - 1)
				p.mu.Unlock()
				time.Sleep(delay)
				p.mu.Lock()
				if p.stopped {
					return nil, ferrors.New(ferrors.CodeInProgress, "workcrew pool is stopping")
				}
			}
			w, err := p.spawnLocked()
			if err != nil {
				return nil, err
			}
			w.claim()
			p.workers = append(p.workers, w)
			p.stats.WorkersSpawned++
			return w, nil
		}
		p.cond.Wait()
	}
}

func (p *Pool) release(w *worker) {
	p.mu.Lock()
	w.lastUsed = time.Now()
	w.release()
	p.cond.Signal()
	p.mu.Unlock()
}

func (p *Pool) spawnLocked() (*worker, error) {
	args := splitCSV(p.cfg.ArgsCSV)
	cmd := exec.Command(p.cfg.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, ferrors.Newf(ferrors.CodeIOError, "spawning %s: %v", p.cfg.Command, err)
	}

	w := &worker{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   bufio.NewReader(stdout),
		lastUsed: time.Now(),
		done:     make(chan struct{}),
	}
	go w.waitExit()
	return w, nil
}

func (p *Pool) markCrashed(w *worker) {
	p.mu.Lock()
	p.stats.WorkersCrashed++
	p.crashStreak++
	for i, cand := range p.workers {
		if cand == w {
			p.workers = append(p.workers[:i], p.workers[i+1:]...)
			break
		}
	}
	p.cond.Broadcast()
	p.mu.Unlock()
}

// StatsGet returns a snapshot of pool counters, spec.md §4.5's stats_get.
func (p *Pool) StatsGet() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// StopNotify closes every worker's stdin and invokes cb once all workers
// have exited, spec.md §4.5's stop_notify. Returns the initial worker
// count so the caller can track the expected number of exits itself.
func (p *Pool) StopNotify(cb func()) int {
	p.mu.Lock()
	workers := append([]*worker(nil), p.workers...)
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	count := len(workers)
	if count == 0 {
		if cb != nil {
			cb()
		}
		return 0
	}

	var remaining sync.WaitGroup
	remaining.Add(count)
	for _, w := range workers {
		w.stdin.Close()
		go func(w *worker) {
			<-w.done
			remaining.Done()
		}(w)
	}
	go func() {
		remaining.Wait()
		if cb != nil {
			cb()
		}
	}()
	return count
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

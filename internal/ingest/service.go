// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/envelope"
	"github.com/flux-framework/flux-core-sub008/internal/jobspec"
	"github.com/flux-framework/flux-core-sub008/internal/kvs"
	"github.com/flux-framework/flux-core-sub008/internal/pipeline"
	"github.com/flux-framework/flux-core-sub008/internal/policy"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
	"github.com/flux-framework/flux-core-sub008/pkg/metrics"
)

// FluidGenerator assigns job IDs; satisfied by *internal/fluid.Generator.
type FluidGenerator interface {
	Generate() (uint64, error)
}

// JobManagerClient announces a flushed batch, spec.md §4.7's
// job-manager.submit RPC.
type JobManagerClient interface {
	Submit(ctx context.Context, req api.BatchAnnounceRequest) (api.BatchAnnounceResponse, error)
}

// EnvelopeUnwrapper decodes a signed J string, spec.md §4.2.
type EnvelopeUnwrapper interface {
	Unwrap(j string, authenticated api.Cred) (*envelope.Unwrapped, error)
}

// Service runs the submit→batch→announce pipeline, spec.md §4.7.
type Service struct {
	mu sync.Mutex

	cfg        *config.IngestConfig
	fluid      FluidGenerator
	envelope   EnvelopeUnwrapper
	policies   *policy.Chain
	pipeline   *pipeline.Pipeline
	store      kvs.KVS
	jobManager JobManagerClient
	metrics    metrics.Collector
	logger     logging.Logger

	current      *batch
	tSubmit      map[uint64]float64
	maxJobID     uint64
	shuttingDown bool
}

func New(
	cfg *config.IngestConfig,
	fluidGen FluidGenerator,
	env EnvelopeUnwrapper,
	policies *policy.Chain,
	pl *pipeline.Pipeline,
	store kvs.KVS,
	jobManager JobManagerClient,
	mcol metrics.Collector,
	logger logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	if mcol == nil {
		mcol = metrics.NewInMemoryCollector()
	}
	return &Service{
		cfg:        cfg,
		fluid:      fluidGen,
		envelope:   env,
		policies:   policies,
		pipeline:   pl,
		store:      store,
		jobManager: jobManager,
		metrics:    mcol,
		logger:     logger,
		tSubmit:    make(map[uint64]float64),
	}
}

// defaultEmitter applies jobspec-update events directly to the job's
// working copy of the jobspec, the tree the rest of ingest sees. No
// jobspec-update event is written to any eventlog.
type defaultEmitter struct {
	spec *api.Jobspec
}

func (e *defaultEmitter) EmitJobspecUpdate(jobID uint64, updates map[string]any) error {
	return jobspec.ApplySystemDefaults(e.spec, updates)
}

// Submit implements spec.md §6's job-ingest.submit RPC end to end through
// enqueueing into the current batch. now is the wall-clock submit time
// (t_submit); callers outside tests pass time.Now().Unix() equivalents.
func (s *Service) Submit(ctx context.Context, req api.SubmitRequest, cred api.Cred, now float64) api.SubmitResponse {
	s.mu.Lock()
	shuttingDown := s.shuttingDown
	s.mu.Unlock()
	if shuttingDown {
		return api.SubmitResponse{Err: "ENOSYS: ingest is shutting down"}
	}

	if err := checkPrivilegedFlags(req, cred); err != nil {
		s.metrics.RecordJobRejected("eperm")
		return api.SubmitResponse{Err: err.Error()}
	}

	unwrapped, err := s.envelope.Unwrap(req.J, cred)
	if err != nil {
		s.metrics.RecordJobRejected("envelope")
		return api.SubmitResponse{Err: err.Error()}
	}

	spec, err := api.DecodeJobspec(unwrapped.Payload)
	if err != nil {
		s.metrics.RecordJobRejected("decode")
		return api.SubmitResponse{Err: "EPROTO: " + err.Error()}
	}
	if err := jobspec.Validate(spec); err != nil {
		s.metrics.RecordJobRejected("invalid")
		return api.SubmitResponse{Err: "EINVAL: " + err.Error()}
	}

	id, err := s.fluid.Generate()
	if err != nil {
		s.metrics.RecordJobRejected("fluid")
		return api.SubmitResponse{Err: "EOVERFLOW: " + err.Error()}
	}

	job := api.NewJob(req, cred)
	job.ID = id
	job.Spec = spec

	view := &policy.JobView{ID: id, Spec: spec, Queue: spec.Attributes.System.Queue}
	if err := s.policies.Create(view, &defaultEmitter{spec: spec}); err != nil {
		s.metrics.RecordJobRejected("policy")
		return api.SubmitResponse{Err: "EINVAL: " + err.Error()}
	}
	if err := s.policies.Validate(view); err != nil {
		s.metrics.RecordJobRejected("policy")
		return api.SubmitResponse{Err: "EINVAL: " + err.Error()}
	}

	outcome, err := s.pipeline.ProcessJob(ctx, job)
	if err != nil {
		s.metrics.RecordJobRejected("pipeline")
		return api.SubmitResponse{Err: "EPROTO: " + err.Error()}
	}
	if outcome != nil {
		if !outcome.Accepted {
			s.metrics.RecordJobRejected("frobnicator")
			return api.SubmitResponse{Err: "EINVAL: " + outcome.ErrMsg}
		}
		if outcome.Replacement != nil {
			job.Spec = outcome.Replacement
		}
	}

	s.enqueue(job, now)
	s.metrics.RecordJobAccepted()

	resp := <-job.RespondTo
	return resp
}

// checkPrivilegedFlags enforces spec.md §6: urgency above DEFAULT,
// NOVALIDATE, WAITABLE, and (per this implementation's decision on an
// open question) DEBUG all require owner role.
func checkPrivilegedFlags(req api.SubmitRequest, cred api.Cred) error {
	if cred.IsOwner() {
		return nil
	}
	if req.Urgency > api.UrgencyDefault {
		return ferrors.New(ferrors.CodePermissionDenied, "EPERM: urgency above default requires owner role")
	}
	if req.Flags.Has(api.FlagNoValidate) || req.Flags.Has(api.FlagWaitable) || req.Flags.Has(api.FlagDebug) {
		return ferrors.New(ferrors.CodePermissionDenied, "EPERM: privileged flag requires owner role")
	}
	return nil
}

// enqueue appends job to the current batch, opening a new one and arming
// its flush timer if needed, spec.md §4.7.
func (s *Service) enqueue(job *api.Job, now float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.ID > s.maxJobID {
		s.maxJobID = job.ID
	}

	if s.current == nil {
		s.current = newBatch()
		if s.cfg.BatchCount <= 0 {
			b := s.current
			s.current.timer = time.AfterFunc(s.cfg.BatchTimeout, func() { s.flushTimer(b) })
		}
	}

	s.tSubmit[job.ID] = now
	if err := s.current.addJob(s.cfg.KVSNamespace, job, now); err != nil {
		job.RespondTo <- api.SubmitResponse{Err: "EPROTO: " + err.Error()}
		return
	}

	if s.cfg.BatchCount > 0 && len(s.current.jobs) >= s.cfg.BatchCount {
		b := s.current
		s.current = nil
		go s.flush(context.Background(), b)
	}
}

func (s *Service) flushTimer(b *batch) {
	s.mu.Lock()
	if s.current != b {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.mu.Unlock()
	s.flush(context.Background(), b)
}

// flush commits b's KVS transaction, announces it to the job manager, and
// dispatches per-job responses, spec.md §4.7.
func (s *Service) flush(ctx context.Context, b *batch) {
	if len(b.jobs) == 0 {
		return
	}

	commitStart := time.Now()
	if err := s.store.Commit(ctx, b.txn); err != nil {
		s.respondAll(b, "EIO: "+err.Error())
		s.cleanup(ctx, b.jobs)
		return
	}
	commitDuration := time.Since(commitStart)

	req, err := b.joblist(s.tSubmit)
	if err != nil {
		s.respondAll(b, "EPROTO: "+err.Error())
		s.cleanup(ctx, b.jobs)
		return
	}

	resp, err := s.jobManager.Submit(ctx, req)
	if err != nil {
		s.respondAll(b, "EIO: "+err.Error())
		s.cleanup(ctx, b.jobs)
		return
	}

	failed := make(map[uint64]string, len(resp.Errors))
	for _, e := range resp.Errors {
		failed[e.ID] = e.Msg
	}

	var toCleanup []*api.Job
	for _, job := range b.jobs {
		if msg, bad := failed[job.ID]; bad {
			job.RespondTo <- api.SubmitResponse{Err: "EINVAL: " + msg}
			toCleanup = append(toCleanup, job)
			continue
		}
		job.RespondTo <- api.SubmitResponse{ID: job.ID}
	}
	s.metrics.RecordBatchFlushed(len(b.jobs)-len(toCleanup), commitDuration)
	if len(toCleanup) > 0 {
		s.cleanup(ctx, toCleanup)
	}
	for _, job := range b.jobs {
		delete(s.tSubmit, job.ID)
	}
}

func (s *Service) respondAll(b *batch, msg string) {
	for _, job := range b.jobs {
		job.RespondTo <- api.SubmitResponse{Err: msg}
	}
}

// cleanup issues a follow-up KVS transaction unlinking jobs' subtrees,
// spec.md §4.7. If a purged job's id is the recorded max_jobid, a
// state-save update for max_jobid is folded into the same transaction.
func (s *Service) cleanup(ctx context.Context, jobs []*api.Job) {
	if len(jobs) == 0 {
		return
	}
	txn := kvs.NewTxn()

	s.mu.Lock()
	purgingMax := false
	newMax := s.maxJobID
	for _, job := range jobs {
		if job.ID == s.maxJobID {
			purgingMax = true
		}
		if job.ID == newMax {
			newMax = 0
			for _, other := range jobs {
				if other.ID != job.ID && other.ID > newMax {
					newMax = other.ID
				}
			}
		}
	}
	if purgingMax {
		s.maxJobID = newMax
	}
	s.mu.Unlock()

	for _, job := range jobs {
		txn.Unlink(jobKeyPrefix(s.cfg.KVSNamespace, job.ID))
	}
	if purgingMax {
		txn.Put("max_jobid", []byte(formatFluid(newMax)))
	}
	_ = s.store.Commit(ctx, txn)
}

// Shutdown sets the shutdown flag so new submits return ENOSYS, spec.md
// §4.7, and returns once stopWorkers has signaled all workers exited or
// ShutdownGrace elapses, whichever comes first.
func (s *Service) Shutdown(stopWorkers func(), workerExited <-chan struct{}, expectedWorkers int) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	if stopWorkers != nil {
		stopWorkers()
	}
	if expectedWorkers == 0 {
		return
	}

	timeout := time.NewTimer(s.cfg.ShutdownGrace)
	defer timeout.Stop()
	select {
	case <-workerExited:
	case <-timeout.C:
		s.logger.Warn("shutdown grace period elapsed, forcing exit")
	}
}

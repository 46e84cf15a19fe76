// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

// loopbackJobManager plays the part of the job manager's job-manager.submit
// RPC for a single-binary deployment (no separate broker exists, spec.md
// §6): it accepts every announced job and synthesizes a minimal primary
// eventlog so that internal/attach has something real to tail end to end.
// It also implements ingest.JobManagerClient so the core can call it
// in-process, and exposes the same accept path over HTTP for a remote
// job-manager.submit caller.
type loopbackJobManager struct {
	events *eventlog.Store
	logger logging.Logger
}

// Submit implements internal/ingest.JobManagerClient.
func (m *loopbackJobManager) Submit(ctx context.Context, req api.BatchAnnounceRequest) (api.BatchAnnounceResponse, error) {
	for _, job := range req.Jobs {
		go m.runSyntheticLifecycle(job.ID)
	}
	return api.BatchAnnounceResponse{}, nil
}

// handleAnnounce is a transport.Handler adapting Submit to the
// job-manager.submit HTTP route.
func (m *loopbackJobManager) handleAnnounce(r *http.Request, msg api.Message) (any, error) {
	var req api.BatchAnnounceRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return nil, err
		}
	}
	return m.Submit(r.Context(), req)
}

// runSyntheticLifecycle appends a plausible primary eventlog for a job
// this deployment has no real scheduler to drive, so attach clients
// connected to flux-job-ingest see a real submit→alloc→start→finish→clean
// sequence rather than nothing at all.
func (m *loopbackJobManager) runSyntheticLifecycle(jobID uint64) {
	steps := []string{api.EventSubmit, api.EventAlloc, api.EventStart}
	for _, name := range steps {
		if err := m.events.Append(jobID, eventlog.LogPrimary, api.EventLogEntry{Name: name}); err != nil {
			m.logger.Warn("synthetic eventlog append failed", "job", jobID, "err", err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	fin, _ := json.Marshal(api.FinishContext{Status: 0})
	_ = m.events.Append(jobID, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventFinish, Context: fin})
	_ = m.events.Append(jobID, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventClean})
	m.events.Close(jobID, eventlog.LogPrimary)
	m.events.Close(jobID, eventlog.LogExec)
	m.events.Close(jobID, eventlog.LogOutput)
}

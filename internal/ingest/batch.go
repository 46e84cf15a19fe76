// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package ingest implements the batched submit path of spec.md §4.7: a
// batch aggregates accepted jobs behind one KVS transaction and one
// job-manager announce RPC, with failure-aware cleanup and ordering
// guarantees. Grounded on the teacher's pkg/pool bookkeeping style for
// batch/commit counters, adapted from connection stats to submit stats.
package ingest

import (
	"encoding/json"
	"time"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/kvs"
)

// batch is a list of accepted jobs plus the KVS transaction they will
// commit as a unit, spec.md §4.7.
type batch struct {
	jobs  []*api.Job
	txn   *kvs.Txn
	timer *time.Timer
}

func newBatch() *batch {
	return &batch{txn: kvs.NewTxn()}
}

// addJob stages job's KVS writes and appends it to the joblist, preserving
// arrival order (spec.md §4.7's within-batch ordering guarantee).
func (b *batch) addJob(namespace string, job *api.Job, tSubmit float64) error {
	specBytes, err := job.Spec.Encode()
	if err != nil {
		return err
	}
	key := jobKeyPrefix(namespace, job.ID)
	b.txn.Put(key+"J", []byte(job.J))
	b.txn.Put(key+"jobspec", specBytes)
	b.jobs = append(b.jobs, job)
	return nil
}

// joblist renders the job-manager.submit request payload for every job
// currently in the batch, in arrival order.
func (b *batch) joblist(tSubmit map[uint64]float64) (api.BatchAnnounceRequest, error) {
	req := api.BatchAnnounceRequest{Jobs: make([]api.BatchAnnounceJob, 0, len(b.jobs))}
	for _, job := range b.jobs {
		specBytes, err := job.Spec.Encode()
		if err != nil {
			return api.BatchAnnounceRequest{}, err
		}
		req.Jobs = append(req.Jobs, api.BatchAnnounceJob{
			ID:      job.ID,
			Userid:  job.Cred.Userid,
			Urgency: job.Urgency,
			TSubmit: tSubmit[job.ID],
			Flags:   job.Flags,
			Jobspec: json.RawMessage(specBytes),
		})
	}
	return req, nil
}

func jobKeyPrefix(namespace string, id uint64) string {
	return namespace + "." + formatFluid(id) + "/"
}

// formatFluid renders a FLUID the way KVS paths do: decimal, dotted into
// the namespace key as a single path segment.
func formatFluid(id uint64) string {
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	return string(buf[i:])
}

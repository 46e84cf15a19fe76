// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pipeline implements the frobnicate→validate decision tree of
// spec.md §4.6, chaining the two workcrew pools the way the teacher's
// http.go chains request building and retry around a single round trip.
package pipeline

import (
	"context"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/workcrew"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
)

// Outcome is the result of running a job through the pipeline. A nil
// Outcome from ProcessJob means "both stages skipped — treat as accepted
// immediately" (spec.md §4.6's "(NULL, ok)").
type Outcome struct {
	Accepted    bool
	ErrMsg      string
	Replacement *api.Jobspec // non-nil when the frobnicator supplied one
}

// Pipeline chains an optional frobnicator pool and an optional validator
// pool according to spec.md §4.6.
type Pipeline struct {
	Frobnicator        *workcrew.Pool
	Validator          *workcrew.Pool
	FrobnicatorEnabled bool
}

// New builds a Pipeline, computing FrobnicatorEnabled per spec.md §4.6:
// "explicitly configured plugins OR any policy.jobspec.defaults OR any
// queues defined".
func New(frobnicator, validator *workcrew.Pool, frobCfg *config.WorkcrewConfig, policyCfg *config.PolicyConfig) *Pipeline {
	enabled := false
	if frobCfg != nil && frobCfg.PluginsCSV != "" {
		enabled = true
	}
	if policyCfg != nil && (len(policyCfg.JobspecDefaults) > 0 || len(policyCfg.Queues) > 0) {
		enabled = true
	}
	return &Pipeline{Frobnicator: frobnicator, Validator: validator, FrobnicatorEnabled: enabled}
}

// ProcessJob runs job through the frobnicate→validate chain. A nil
// *Outcome, nil error pair means both stages were skipped; the caller
// treats this as immediate acceptance. A nil pool skips its stage.
func (p *Pipeline) ProcessJob(ctx context.Context, job *api.Job) (*Outcome, error) {
	skipValidate := job.Flags.Has(api.FlagNoValidate) || p.Validator == nil
	runFrob := p.FrobnicatorEnabled && p.Frobnicator != nil

	if !runFrob && skipValidate {
		return nil, nil
	}

	spec := job.Spec

	if runFrob {
		specBytes, err := spec.Encode()
		if err != nil {
			return nil, err
		}
		resp, err := p.Frobnicator.ProcessJob(ctx, toRequest(job, specBytes))
		if err != nil {
			return nil, err
		}
		if !resp.Accepted() {
			return &Outcome{Accepted: false, ErrMsg: resp.ErrMsg}, nil
		}
		replacement, err := api.DecodeJobspec(resp.Replacement)
		if err != nil {
			return nil, err
		}
		spec = replacement
	}

	if skipValidate {
		return &Outcome{Accepted: true, Replacement: spec}, nil
	}

	specBytes, err := spec.Encode()
	if err != nil {
		return nil, err
	}
	resp, err := p.Validator.ProcessJob(ctx, toRequest(job, specBytes))
	if err != nil {
		return nil, err
	}
	if !resp.Accepted() {
		return &Outcome{Accepted: false, ErrMsg: resp.ErrMsg}, nil
	}
	return &Outcome{Accepted: true, Replacement: spec}, nil
}

func toRequest(job *api.Job, specBytes []byte) workcrew.Request {
	return workcrew.Request{
		Jobspec:  specBytes,
		Userid:   job.Cred.Userid,
		RoleMask: job.Cred.RoleMask,
		Urgency:  job.Urgency,
		Flags:    job.Flags,
	}
}

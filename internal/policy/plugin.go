// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package policy implements the three job-lifecycle policy plugins of
// spec.md §4.4: jobspec-default (job.create), limit-duration and
// limit-job-size (job.validate). Each plugin is a small stateful value
// that re-derives its effective limits on every ConfUpdate, the way the
// teacher's auth.Provider implementations hold config resolved once and
// reused across calls.
package policy

import (
	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
)

// EventEmitter receives a plugin's jobspec-update for a job. The
// implementation in internal/ingest applies the update directly to the
// job's in-memory jobspec; it does not write an event to the eventlog.
type EventEmitter interface {
	EmitJobspecUpdate(jobID uint64, updates map[string]any) error
}

// Plugin is the job-lifecycle hook contract shared by all three plugins,
// spec.md §4.4's "each plugin also receives conf.update".
type Plugin interface {
	// Create runs on job.create; only the jobspec-default plugin does
	// anything here. Others return nil unconditionally.
	Create(job *JobView, emit EventEmitter) error

	// Validate runs on job.validate; a non-nil error rejects the job with
	// that error's message.
	Validate(job *JobView) error

	// ConfUpdate revalidates/caches effective values from new config,
	// spec.md §4.4. Called once at load time and again on every update.
	ConfUpdate(cfg *config.PolicyConfig) error
}

// JobView is the subset of a submitted job policy plugins need: the
// jobspec, its resolved queue, and identifiers for event emission.
type JobView struct {
	ID    uint64
	Spec  *api.Jobspec
	Queue string
}

// Chain runs Create or Validate across an ordered list of plugins,
// stopping at the first error.
type Chain struct {
	plugins []Plugin
}

func NewChain(plugins ...Plugin) *Chain { return &Chain{plugins: plugins} }

func (c *Chain) ConfUpdate(cfg *config.PolicyConfig) error {
	for _, p := range c.plugins {
		if err := p.ConfUpdate(cfg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) Create(job *JobView, emit EventEmitter) error {
	for _, p := range c.plugins {
		if err := p.Create(job, emit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) Validate(job *JobView) error {
	for _, p := range c.plugins {
		if err := p.Validate(job); err != nil {
			return err
		}
	}
	return nil
}

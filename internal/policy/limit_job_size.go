// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"

	"github.com/flux-framework/flux-core-sub008/internal/jobspec"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// LimitJobSizePlugin implements spec.md §4.4's job.validate hook over the
// nnodes/ncores/ngpus axes derived from jj_get_counts (internal/jobspec's
// Counts). -1 in a bound means unlimited on that axis.
type LimitJobSizePlugin struct {
	mu      sync.RWMutex
	general config.JobSizeLimits
	byQueue map[string]config.JobSizeLimits
}

func NewLimitJobSizePlugin() *LimitJobSizePlugin {
	return &LimitJobSizePlugin{byQueue: map[string]config.JobSizeLimits{}}
}

func (p *LimitJobSizePlugin) ConfUpdate(cfg *config.PolicyConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.general = cfg.JobSizeLimits
	p.byQueue = map[string]config.JobSizeLimits{}
	for name, q := range cfg.Queues {
		if q != nil {
			p.byQueue[name] = q.JobSizeLimits
		}
	}
	return nil
}

func (p *LimitJobSizePlugin) Create(job *JobView, emit EventEmitter) error { return nil }

// effectiveLimits merges queue-specific limits over general, one axis at a
// time: an axis the queue doesn't set is inherited from general rather
// than the whole struct being replaced, mirroring job_size_override() in
// the original, which only overrides axes the queue actually sets.
func (p *LimitJobSizePlugin) effectiveLimits(queue string) config.JobSizeLimits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	limits := p.general
	q, ok := p.byQueue[queue]
	if !ok {
		return limits
	}
	if q.MinNNodes != nil {
		limits.MinNNodes = q.MinNNodes
	}
	if q.MaxNNodes != nil {
		limits.MaxNNodes = q.MaxNNodes
	}
	if q.MinNCores != nil {
		limits.MinNCores = q.MinNCores
	}
	if q.MaxNCores != nil {
		limits.MaxNCores = q.MaxNCores
	}
	if q.MinNGPUs != nil {
		limits.MinNGPUs = q.MinNGPUs
	}
	if q.MaxNGPUs != nil {
		limits.MaxNGPUs = q.MaxNGPUs
	}
	return limits
}

func (p *LimitJobSizePlugin) Validate(job *JobView) error {
	counts, err := jobspec.Counts(job.Spec)
	if err != nil {
		return err
	}

	limits := p.effectiveLimits(job.Queue)

	if err := checkAxis("nnodes", counts.NNodes, limits.MinNNodes, limits.MaxNNodes); err != nil {
		return err
	}
	if err := checkAxis("ncores", counts.NCores, limits.MinNCores, limits.MaxNCores); err != nil {
		return err
	}
	if err := checkAxis("ngpus", counts.NGPUs, limits.MinNGPUs, limits.MaxNGPUs); err != nil {
		return err
	}
	return nil
}

// checkAxis rejects value outside [min, max], treating a bound of -1 (or
// an absent pointer) as unlimited on that side.
func checkAxis(name string, value int, min, max *int) error {
	if max != nil && *max != -1 && value > *max {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, name, "exceeds policy maximum")
	}
	if min != nil && *min != -1 && value < *min {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, name, "below policy minimum")
	}
	return nil
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"sync"

	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// LimitDurationPlugin implements spec.md §4.4's job.validate hook: reject
// jobs whose requested duration exceeds the effective per-queue-or-general
// limit, or that request "unlimited" (duration 0) against a finite limit.
type LimitDurationPlugin struct {
	mu      sync.RWMutex
	general *float64
	byQueue map[string]*float64
}

func NewLimitDurationPlugin() *LimitDurationPlugin {
	return &LimitDurationPlugin{byQueue: map[string]*float64{}}
}

func (p *LimitDurationPlugin) ConfUpdate(cfg *config.PolicyConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.general = cfg.DurationLimitSeconds
	p.byQueue = map[string]*float64{}
	for name, q := range cfg.Queues {
		if q != nil {
			p.byQueue[name] = q.DurationLimitSeconds
		}
	}
	return nil
}

// effectiveLimit returns the limit for queue, queue-specific taking
// priority over general, and nil meaning "no limit configured".
func (p *LimitDurationPlugin) effectiveLimit(queue string) *float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if lim, ok := p.byQueue[queue]; ok && lim != nil {
		return lim
	}
	return p.general
}

func (p *LimitDurationPlugin) Create(job *JobView, emit EventEmitter) error { return nil }

func (p *LimitDurationPlugin) Validate(job *JobView) error {
	limit := p.effectiveLimit(job.Queue)
	if limit == nil {
		return nil
	}

	requested := 0.0
	if job.Spec.Attributes.System.Duration != nil {
		requested = *job.Spec.Attributes.System.Duration
	}

	if requested == 0 {
		if *limit != 0 {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.duration",
				"unlimited duration not permitted; queue requires a finite duration")
		}
		return nil
	}
	if *limit != 0 && requested > *limit {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.duration",
			"requested duration exceeds policy limit")
	}
	return nil
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"encoding/json"
	"sync"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/fsd"
)

// JobspecDefaultPlugin implements spec.md §4.4's job.create hook: resolve
// the job's queue, overlay general defaults with that queue's defaults,
// and emit a jobspec-update event for every default key not already set.
type JobspecDefaultPlugin struct {
	mu      sync.RWMutex
	general map[string]any
	byQueue map[string]map[string]any
}

func NewJobspecDefaultPlugin() *JobspecDefaultPlugin {
	return &JobspecDefaultPlugin{
		general: map[string]any{},
		byQueue: map[string]map[string]any{},
	}
}

func (p *JobspecDefaultPlugin) ConfUpdate(cfg *config.PolicyConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.general = cfg.JobspecDefaults
	p.byQueue = map[string]map[string]any{}
	for name, q := range cfg.Queues {
		if q != nil {
			p.byQueue[name] = q.JobspecDefaults
		}
	}
	return nil
}

// effective merges general defaults with the named queue's, queue keys
// winning on conflict.
func (p *JobspecDefaultPlugin) effective(queue string) map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	merged := make(map[string]any, len(p.general))
	for k, v := range p.general {
		merged[k] = v
	}
	for k, v := range p.byQueue[queue] {
		merged[k] = v
	}
	return merged
}

func (p *JobspecDefaultPlugin) Create(job *JobView, emit EventEmitter) error {
	queue := job.Spec.Attributes.System.Queue
	if queue == "" {
		queue = p.generalQueueDefault()
	}
	job.Queue = queue
	defaults := p.effective(queue)
	if len(defaults) == 0 {
		return nil
	}

	updates := make(map[string]any)
	for key, value := range defaults {
		if isSystemAttrSet(job.Spec, key) {
			continue
		}
		if key == "duration" {
			if s, ok := value.(string); ok {
				secs, err := fsd.Parse(s)
				if err != nil {
					return err
				}
				value = secs
			}
		}
		updates[key] = value
	}
	if len(updates) == 0 {
		return nil
	}
	return emit.EmitJobspecUpdate(job.ID, updates)
}

// generalQueueDefault returns policy.jobspec.defaults.system.queue, the
// general-default queue a job with no queue of its own resolves to
// (spec.md §4.4's "jobspec's queue else general-default queue").
func (p *JobspecDefaultPlugin) generalQueueDefault() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.general["queue"].(string); ok {
		return s
	}
	return ""
}

// isSystemAttrSet reports whether attributes.system.<key> already carries
// a value in the submitted jobspec, special-casing duration == 0 as unset
// per spec.md §4.4.
func isSystemAttrSet(spec *api.Jobspec, key string) bool {
	sys := spec.Attributes.System
	switch key {
	case "duration":
		return sys.Duration != nil && *sys.Duration != 0
	case "queue":
		return sys.Queue != ""
	case "cwd":
		return sys.Cwd != ""
	default:
		buf, err := json.Marshal(sys)
		if err != nil {
			return false
		}
		var fields map[string]any
		if err := json.Unmarshal(buf, &fields); err != nil {
			return false
		}
		_, ok := fields[key]
		return ok
	}
}

func (p *JobspecDefaultPlugin) Validate(job *JobView) error { return nil }

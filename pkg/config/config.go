// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package config holds env-driven configuration structs for the ingest
// core. File-based (TOML) configuration loading is out of scope per
// spec.md §1; Load only consults environment variables, the way the
// teacher's pkg/config.Load does for the subset it doesn't get from a
// config file either.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/flux-framework/flux-core-sub008/pkg/fsd"
)

// IngestConfig controls batching policy (spec.md §4.7).
type IngestConfig struct {
	// BatchTimeout is how long a batch stays open after its first job,
	// default 0.01s per spec.md §4.7.
	BatchTimeout time.Duration

	// BatchCount, if > 0, flushes a batch once this many jobs have
	// accumulated, instead of waiting for BatchTimeout.
	BatchCount int

	// KVSNamespace prefixes KVS keys, default "job".
	KVSNamespace string

	// ShutdownGrace bounds how long ingest waits for workcrew workers to
	// exit before forcing reactor stop, default 5s per spec.md §4.7.
	ShutdownGrace time.Duration
}

func NewDefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		BatchTimeout:  10 * time.Millisecond,
		BatchCount:    0,
		KVSNamespace:  "job",
		ShutdownGrace: 5 * time.Second,
	}
}

func (c *IngestConfig) Load() {
	if v := os.Getenv("FLUX_JOB_INGEST_BATCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BatchTimeout = d
		}
	}
	if v := os.Getenv("FLUX_JOB_INGEST_BATCH_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchCount = n
		}
	}
	if v := os.Getenv("FLUX_JOB_INGEST_KVS_NAMESPACE"); v != "" {
		c.KVSNamespace = v
	}
}

func (c *IngestConfig) Validate() error {
	if c.BatchTimeout < 0 {
		return ErrInvalidBatchTimeout
	}
	if c.BatchCount < 0 {
		return ErrInvalidBatchCount
	}
	if c.KVSNamespace == "" {
		return ErrMissingKVSNamespace
	}
	return nil
}

// WorkcrewConfig controls the out-of-process worker pool (spec.md §4.5).
type WorkcrewConfig struct {
	Command          string
	PluginsCSV       string
	ArgsCSV          string
	InputBufferBytes int
	MaxWorkers       int
}

func NewDefaultWorkcrewConfig(command string) *WorkcrewConfig {
	return &WorkcrewConfig{
		Command:          command,
		InputBufferBytes: 4096,
		MaxWorkers:       4,
	}
}

func (c *WorkcrewConfig) Load(envPrefix string) {
	if v := os.Getenv(envPrefix + "_COMMAND"); v != "" {
		c.Command = v
	}
	if v := os.Getenv(envPrefix + "_PLUGINS"); v != "" {
		c.PluginsCSV = v
	}
	if v := os.Getenv(envPrefix + "_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxWorkers = n
		}
	}
}

func (c *WorkcrewConfig) Validate() error {
	if c.Command == "" {
		return ErrMissingWorkerCommand
	}
	if c.MaxWorkers <= 0 {
		return ErrInvalidMaxWorkers
	}
	if c.InputBufferBytes <= 0 {
		return ErrInvalidInputBuffer
	}
	return nil
}

// PolicyConfig mirrors the policy table shape described in spec.md §3.
type PolicyConfig struct {
	// JobspecDefaults is policy.jobspec.defaults.system.* — merged into a
	// submitted jobspec when a key is absent.
	JobspecDefaults map[string]any

	// DurationLimitSeconds is policy.limits.duration converted from FSD;
	// 0 means unlimited, nil means unset (no limit).
	DurationLimitSeconds *float64

	// JobSizeLimits is policy.limits.job-size.{min,max}.{nnodes,ncores,ngpus}.
	JobSizeLimits JobSizeLimits

	// AccessAllowUser / AccessAllowGroup mirror policy.access.*.
	AccessAllowUser  []string
	AccessAllowGroup []string

	// Queues holds per-queue overrides keyed by queue name; each entry
	// overrides (not merges into) the corresponding general value.
	Queues map[string]*PolicyConfig
}

// JobSizeLimits bounds nnodes/ncores/ngpus; -1 means unlimited, a nil
// pointer field means "no limit configured for that axis".
type JobSizeLimits struct {
	MinNNodes, MaxNNodes *int
	MinNCores, MaxNCores *int
	MinNGPUs, MaxNGPUs   *int
}

func NewDefaultPolicyConfig() *PolicyConfig {
	return &PolicyConfig{
		JobspecDefaults: map[string]any{},
		Queues:          map[string]*PolicyConfig{},
	}
}

// SetDurationLimitFSD parses an FSD string ("1h", "0", "") into the
// config's duration limit, per spec.md's Policy subsection.
func (c *PolicyConfig) SetDurationLimitFSD(value string) error {
	secs, err := fsd.Parse(value)
	if err != nil {
		return err
	}
	c.DurationLimitSeconds = &secs
	return nil
}

// AttachConfig controls attach client behavior (spec.md §6 CLI flags, §4.9).
type AttachConfig struct {
	ShowPrimaryEvents bool // -E
	ShowExecEvents    bool // -X
	ShowStatus        bool // --show-status
	WaitEvent         string // -w NAME, default "clean"
	LabelIO           bool   // -l
	Verbose           bool   // -v
	Quiet             bool   // -q
	ReadOnly          bool   // -r
	Unbuffered        bool   // -u
	StdinRanks        string // -i RANKS, default "all"
}

func NewDefaultAttachConfig() *AttachConfig {
	return &AttachConfig{
		WaitEvent:  "clean",
		StdinRanks: "all",
	}
}

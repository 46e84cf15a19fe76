// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package metrics collects ingest/workcrew throughput counters, the way
// spec.md §4.5's stats_get() and §2's "ingest batch" component need.
// Grounded on the teacher's pkg/metrics/metrics.go (atomic counters behind
// a narrow Collector interface, snapshotted into a plain Stats struct).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector accumulates counters for one workcrew pool or ingest service.
type Collector interface {
	RecordJobAccepted()
	RecordJobRejected(reason string)
	RecordBatchFlushed(size int, commitDuration time.Duration)
	RecordWorkerSpawned()
	RecordWorkerCrashed()
	Snapshot() Stats
	Reset()
}

// Stats is a point-in-time snapshot.
type Stats struct {
	JobsAccepted    int64
	JobsRejected    int64
	RejectReasons   map[string]int64
	BatchesFlushed  int64
	JobsPerBatchAvg float64
	CommitTime      DurationStats
	WorkersSpawned  int64
	WorkersCrashed  int64
	StartTime       time.Time
	Uptime          time.Duration
}

// DurationStats aggregates a stream of durations.
type DurationStats struct {
	Count   int64
	Total   time.Duration
	Min     time.Duration
	Max     time.Duration
	Average time.Duration
}

type durationAggregator struct {
	mu    sync.Mutex
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

func newDurationAggregator() *durationAggregator {
	return &durationAggregator{min: time.Duration(1<<63 - 1)}
}

func (a *durationAggregator) add(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	a.total += d
	if d < a.min {
		a.min = d
	}
	if d > a.max {
		a.max = d
	}
}

func (a *durationAggregator) stats() DurationStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := DurationStats{Count: a.count, Total: a.total, Max: a.max}
	if a.count > 0 {
		s.Average = a.total / time.Duration(a.count)
		s.Min = a.min
	}
	return s
}

// InMemoryCollector is the default, process-local Collector.
type InMemoryCollector struct {
	mu sync.Mutex

	jobsAccepted int64
	jobsRejected int64
	rejectReason map[string]int64

	batchesFlushed int64
	jobsInBatches  int64
	commitTimes    *durationAggregator

	workersSpawned int64
	workersCrashed int64

	startTime time.Time
}

func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		rejectReason: make(map[string]int64),
		commitTimes:  newDurationAggregator(),
		startTime:    time.Now(),
	}
}

func (c *InMemoryCollector) RecordJobAccepted() {
	atomic.AddInt64(&c.jobsAccepted, 1)
}

func (c *InMemoryCollector) RecordJobRejected(reason string) {
	atomic.AddInt64(&c.jobsRejected, 1)
	c.mu.Lock()
	c.rejectReason[reason]++
	c.mu.Unlock()
}

func (c *InMemoryCollector) RecordBatchFlushed(size int, commitDuration time.Duration) {
	atomic.AddInt64(&c.batchesFlushed, 1)
	atomic.AddInt64(&c.jobsInBatches, int64(size))
	c.commitTimes.add(commitDuration)
}

func (c *InMemoryCollector) RecordWorkerSpawned() { atomic.AddInt64(&c.workersSpawned, 1) }
func (c *InMemoryCollector) RecordWorkerCrashed() { atomic.AddInt64(&c.workersCrashed, 1) }

func (c *InMemoryCollector) Snapshot() Stats {
	c.mu.Lock()
	reasons := make(map[string]int64, len(c.rejectReason))
	for k, v := range c.rejectReason {
		reasons[k] = v
	}
	c.mu.Unlock()

	batches := atomic.LoadInt64(&c.batchesFlushed)
	jobsInBatches := atomic.LoadInt64(&c.jobsInBatches)
	avg := 0.0
	if batches > 0 {
		avg = float64(jobsInBatches) / float64(batches)
	}

	return Stats{
		JobsAccepted:    atomic.LoadInt64(&c.jobsAccepted),
		JobsRejected:    atomic.LoadInt64(&c.jobsRejected),
		RejectReasons:   reasons,
		BatchesFlushed:  batches,
		JobsPerBatchAvg: avg,
		CommitTime:      c.commitTimes.stats(),
		WorkersSpawned:  atomic.LoadInt64(&c.workersSpawned),
		WorkersCrashed:  atomic.LoadInt64(&c.workersCrashed),
		StartTime:       c.startTime,
		Uptime:          time.Since(c.startTime),
	}
}

func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	atomic.StoreInt64(&c.jobsAccepted, 0)
	atomic.StoreInt64(&c.jobsRejected, 0)
	atomic.StoreInt64(&c.batchesFlushed, 0)
	atomic.StoreInt64(&c.jobsInBatches, 0)
	atomic.StoreInt64(&c.workersSpawned, 0)
	atomic.StoreInt64(&c.workersCrashed, 0)
	c.rejectReason = make(map[string]int64)
	c.commitTimes = newDurationAggregator()
	c.startTime = time.Now()
}

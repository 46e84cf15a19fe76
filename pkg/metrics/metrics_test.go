// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInMemoryCollectorAccumulates(t *testing.T) {
	c := NewInMemoryCollector()
	c.RecordJobAccepted()
	c.RecordJobAccepted()
	c.RecordJobRejected("invalid-argument")
	c.RecordBatchFlushed(2, 5*time.Millisecond)
	c.RecordWorkerSpawned()

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.JobsAccepted)
	assert.Equal(t, int64(1), s.JobsRejected)
	assert.Equal(t, int64(1), s.RejectReasons["invalid-argument"])
	assert.Equal(t, int64(1), s.BatchesFlushed)
	assert.Equal(t, 2.0, s.JobsPerBatchAvg)
	assert.Equal(t, int64(1), s.WorkersSpawned)
}

func TestInMemoryCollectorReset(t *testing.T) {
	c := NewInMemoryCollector()
	c.RecordJobAccepted()
	c.Reset()
	s := c.Snapshot()
	assert.Equal(t, int64(0), s.JobsAccepted)
}

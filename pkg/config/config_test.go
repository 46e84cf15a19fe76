// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultIngestConfig(t *testing.T) {
	c := NewDefaultIngestConfig()
	require.NotNil(t, c)
	assert.Equal(t, 10*time.Millisecond, c.BatchTimeout)
	assert.Equal(t, 0, c.BatchCount)
	assert.Equal(t, "job", c.KVSNamespace)
	assert.NoError(t, c.Validate())
}

func TestIngestConfigLoadFromEnv(t *testing.T) {
	t.Setenv("FLUX_JOB_INGEST_BATCH_TIMEOUT", "50ms")
	t.Setenv("FLUX_JOB_INGEST_BATCH_COUNT", "16")
	t.Setenv("FLUX_JOB_INGEST_KVS_NAMESPACE", "testjob")

	c := NewDefaultIngestConfig()
	c.Load()

	assert.Equal(t, 50*time.Millisecond, c.BatchTimeout)
	assert.Equal(t, 16, c.BatchCount)
	assert.Equal(t, "testjob", c.KVSNamespace)
}

func TestIngestConfigValidateRejectsNegatives(t *testing.T) {
	c := NewDefaultIngestConfig()
	c.BatchTimeout = -1
	assert.Error(t, c.Validate())

	c = NewDefaultIngestConfig()
	c.BatchCount = -1
	assert.Error(t, c.Validate())

	c = NewDefaultIngestConfig()
	c.KVSNamespace = ""
	assert.Error(t, c.Validate())
}

func TestWorkcrewConfigValidate(t *testing.T) {
	c := NewDefaultWorkcrewConfig("job-validator")
	assert.NoError(t, c.Validate())

	c.Command = ""
	assert.Error(t, c.Validate())

	c = NewDefaultWorkcrewConfig("job-validator")
	c.MaxWorkers = 0
	assert.Error(t, c.Validate())
}

func TestPolicyConfigSetDurationLimitFSD(t *testing.T) {
	c := NewDefaultPolicyConfig()
	require.NoError(t, c.SetDurationLimitFSD("1h"))
	require.NotNil(t, c.DurationLimitSeconds)
	assert.Equal(t, 3600.0, *c.DurationLimitSeconds)
}

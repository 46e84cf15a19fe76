// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/workcrew"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkerScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	script := "#!/bin/sh\nwhile IFS= read -r line; do\n  " + body + "\ndone\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func acceptingJob() *api.Job {
	duration := 60.0
	return &api.Job{
		ID: 1,
		Spec: &api.Jobspec{
			Version:    1,
			Resources:  []api.Vertex{{Type: "node", Count: 1}},
			Tasks:      []api.Task{{Command: []string{"true"}}},
			Attributes: api.Attributes{System: api.SystemAttributes{Duration: &duration}},
		},
	}
}

func TestProcessJobBothStagesSkippedReturnsNilOutcome(t *testing.T) {
	job := acceptingJob()
	job.Flags = api.FlagNoValidate
	p := New(nil, nil, config.NewDefaultWorkcrewConfig(""), config.NewDefaultPolicyConfig())

	outcome, err := p.ProcessJob(context.Background(), job)
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestProcessJobBypassesFrobnicatorWhenDisabled(t *testing.T) {
	script := writeWorkerScript(t, `echo '{}'`)
	validator := workcrew.New(workcrew.Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)

	p := New(nil, validator, config.NewDefaultWorkcrewConfig(""), config.NewDefaultPolicyConfig())
	outcome, err := p.ProcessJob(context.Background(), acceptingJob())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Accepted)
}

func TestProcessJobRunsFrobnicatorThenValidator(t *testing.T) {
	frobScript := writeWorkerScript(t, `echo '{"version":1}'`)
	validScript := writeWorkerScript(t, `echo '{}'`)
	frob := workcrew.New(workcrew.Config{Command: "/bin/sh", ArgsCSV: frobScript, MaxWorkers: 1, Frobnicator: true}, nil)
	valid := workcrew.New(workcrew.Config{Command: "/bin/sh", ArgsCSV: validScript, MaxWorkers: 1}, nil)

	frobCfg := config.NewDefaultWorkcrewConfig(frobScript)
	frobCfg.PluginsCSV = "jobspec-default"
	p := New(frob, valid, frobCfg, config.NewDefaultPolicyConfig())

	outcome, err := p.ProcessJob(context.Background(), acceptingJob())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Accepted)
	require.NotNil(t, outcome.Replacement)
	assert.Equal(t, 1, outcome.Replacement.Version)
}

func TestProcessJobFrobnicatorRejectionShortCircuitsValidator(t *testing.T) {
	frobScript := writeWorkerScript(t, `echo '{"errmsg":"bad jobspec"}'`)
	frob := workcrew.New(workcrew.Config{Command: "/bin/sh", ArgsCSV: frobScript, MaxWorkers: 1, Frobnicator: true}, nil)

	frobCfg := config.NewDefaultWorkcrewConfig(frobScript)
	frobCfg.PluginsCSV = "jobspec-default"
	p := New(frob, nil, frobCfg, config.NewDefaultPolicyConfig())

	outcome, err := p.ProcessJob(context.Background(), acceptingJob())
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, "bad jobspec", outcome.ErrMsg)
}

func TestProcessJobNoValidateSkipsValidatorButRunsFrobnicator(t *testing.T) {
	frobScript := writeWorkerScript(t, `echo "$line"`)
	frob := workcrew.New(workcrew.Config{Command: "/bin/sh", ArgsCSV: frobScript, MaxWorkers: 1, Frobnicator: true}, nil)

	frobCfg := config.NewDefaultWorkcrewConfig(frobScript)
	frobCfg.PluginsCSV = "jobspec-default"
	p := New(frob, nil, frobCfg, config.NewDefaultPolicyConfig())

	job := acceptingJob()
	job.Flags = api.FlagNoValidate
	outcome, err := p.ProcessJob(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	assert.True(t, outcome.Accepted)
}

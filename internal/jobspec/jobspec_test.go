// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobspec

import (
	"testing"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perSlot(n int) *int { return &n }

func validSpec() *api.Jobspec {
	duration := 60.0
	return &api.Jobspec{
		Version: 1,
		Resources: []api.Vertex{{
			Type:  "node",
			Count: 2,
			With: []api.Vertex{{
				Type:  "slot",
				Count: 4,
				With: []api.Vertex{
					{Type: "core", Count: 2},
					{Type: "gpu", Count: 1},
				},
			}},
		}},
		Tasks: []api.Task{{
			Command: []string{"hostname"},
			Slot:    "default",
			Count:   api.TaskCount{PerSlot: perSlot(1)},
		}},
		Attributes: api.Attributes{
			System: api.SystemAttributes{Duration: &duration},
		},
	}
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	assert.NoError(t, Validate(validSpec()))
}

func TestValidateRejectsWrongVersion(t *testing.T) {
	spec := validSpec()
	spec.Version = 2
	err := Validate(spec)
	require.Error(t, err)
	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ferrors.CodeInvalidArgument, fe.Code)
	assert.Equal(t, "version", fe.Where)
}

func TestValidateRejectsMissingDuration(t *testing.T) {
	spec := validSpec()
	spec.Attributes.System.Duration = nil
	err := Validate(spec)
	require.Error(t, err)
	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "attributes.system.duration", fe.Where)
}

func TestValidateRejectsBothPerSlotAndTotal(t *testing.T) {
	spec := validSpec()
	total := 8
	spec.Tasks[0].Count.Total = &total
	err := Validate(spec)
	require.Error(t, err)
	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "tasks[0].count", fe.Where)
}

func TestValidateRejectsSlotWithoutCore(t *testing.T) {
	spec := validSpec()
	spec.Resources[0].With[0].With = []api.Vertex{{Type: "gpu", Count: 1}}
	err := Validate(spec)
	require.Error(t, err)
}

func TestCountsMultipliesNodesBySlots(t *testing.T) {
	counts, err := Counts(validSpec())
	require.NoError(t, err)
	assert.Equal(t, 2, counts.NNodes)
	assert.Equal(t, 16, counts.NCores) // 2 nodes * 4 slots * 2 cores
	assert.Equal(t, 8, counts.NGPUs)   // 2 nodes * 4 slots * 1 gpu
}

func TestCountsHandlesBareSlotRoot(t *testing.T) {
	spec := validSpec()
	spec.Resources = []api.Vertex{spec.Resources[0].With[0]}
	counts, err := Counts(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.NNodes)
	assert.Equal(t, 8, counts.NCores)
}

func TestValidateRejectsUnknownAttributesSection(t *testing.T) {
	payload := []byte(`{
		"version": 1,
		"resources": [{"type": "slot", "count": 1, "with": [{"type": "core", "count": 1}]}],
		"tasks": [{"command": ["hostname"], "slot": "default", "count": {"per_slot": 1}}],
		"attributes": {"system": {"duration": 60}, "bogus": {}}
	}`)

	_, err := api.DecodeJobspec(payload)
	assert.Error(t, err)
}

func TestAttrSetAndUnpackRoundTrip(t *testing.T) {
	spec := validSpec()
	require.NoError(t, AttrSet(spec, "user.foo.bar", "baz"))

	s, err := AttrGetString(spec, "user.foo.bar")
	require.NoError(t, err)
	assert.Equal(t, "baz", s)
}

func TestAttrUnpackMissingPathIsNoSuchEntry(t *testing.T) {
	spec := validSpec()
	_, err := AttrGetString(spec, "user.missing.path")
	require.Error(t, err)
	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ferrors.CodeNoSuchEntry, fe.Code)
}

func TestAttrDelRemovesPath(t *testing.T) {
	spec := validSpec()
	require.NoError(t, AttrSet(spec, "user.a.b", 1))
	require.NoError(t, AttrDel(spec, "user.a.b"))
	_, err := AttrGetInt64(spec, "user.a.b")
	assert.Error(t, err)
}

func TestAttrSetAddressesSystemSubtree(t *testing.T) {
	spec := validSpec()
	require.NoError(t, AttrSet(spec, "system.cwd", "/tmp/work"))
	assert.Equal(t, "/tmp/work", spec.Attributes.System.Cwd)

	cwd, err := AttrGetString(spec, "system.cwd")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/work", cwd)
}

func TestSetEnvAndUnsetEnv(t *testing.T) {
	spec := validSpec()
	SetEnv(spec, "FOO", "1")
	assert.Equal(t, "1", spec.Attributes.System.Environment["FOO"])
	UnsetEnv(spec, "FOO")
	_, ok := spec.Attributes.System.Environment["FOO"]
	assert.False(t, ok)
}

func TestSetStdioRejectsUnknownStream(t *testing.T) {
	spec := validSpec()
	err := SetStdio(spec, "bogus", "/dev/null")
	assert.Error(t, err)
}

func TestSetStdioWritesShellOption(t *testing.T) {
	spec := validSpec()
	require.NoError(t, SetStdio(spec, StdioStdout, "out.log"))
	assert.Equal(t, "out.log", spec.Attributes.System.Shell.Options[StdioStdout])
}

func TestAttrGetInt64CoercesFromJSONNumber(t *testing.T) {
	spec := validSpec()
	require.NoError(t, AttrSet(spec, "user.n", 42))
	n, err := AttrGetInt64(spec, "user.n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

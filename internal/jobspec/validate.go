// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package jobspec implements jobspec v1 validation and mutation helpers,
// spec.md §4.3.
package jobspec

import (
	"encoding/json"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Validate checks spec against spec.md §4.3's rules, returning an error
// whose message is "<where>: <reason>" on the first violation found.
func Validate(spec *api.Jobspec) error {
	if spec.Version != 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "version", "must be 1")
	}
	if spec.Resources == nil {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "resources", "must be present")
	}
	if spec.Tasks == nil {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks", "must be present")
	}

	if err := validateTasks(spec.Tasks); err != nil {
		return err
	}
	if err := validateResources(spec.Resources); err != nil {
		return err
	}
	return validateAttributes(spec.Attributes)
}

func validateTasks(tasks []api.Task) error {
	if len(tasks) != 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks", "must have exactly one element")
	}
	t := tasks[0]
	if len(t.Command) == 0 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks[0].command", "must be a nonempty array of strings")
	}
	for _, c := range t.Command {
		if c == "" {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks[0].command", "entries must be nonempty strings")
		}
	}

	hasPerSlot := t.Count.PerSlot != nil
	hasTotal := t.Count.Total != nil
	if hasPerSlot == hasTotal {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks[0].count", "must have exactly one of per_slot or total")
	}
	if hasPerSlot && *t.Count.PerSlot < 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks[0].count.per_slot", "must be >= 1")
	}
	if hasTotal && *t.Count.Total < 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "tasks[0].count.total", "must be >= 1")
	}
	return nil
}

func validateResources(resources []api.Vertex) error {
	if len(resources) != 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "resources", "must have exactly one root vertex")
	}
	root := resources[0]
	switch root.Type {
	case "node":
		return validateNodeVertex(root)
	case "slot":
		return validateSlotVertex(root)
	default:
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "resources[0].type", "must be node or slot")
	}
}

func validateNodeVertex(v api.Vertex) error {
	if v.Count < 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "resources[0].count", "must be >= 1")
	}
	if len(v.With) != 1 || v.With[0].Type != "slot" {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "resources[0].with", "must contain exactly one slot vertex")
	}
	return validateSlotVertex(v.With[0])
}

func validateSlotVertex(v api.Vertex) error {
	if v.Count < 1 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.count", "must be >= 1")
	}
	if len(v.With) < 1 || len(v.With) > 2 {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with", "must contain 1-2 children")
	}
	sawCore := false
	sawGPU := false
	for _, child := range v.With {
		switch child.Type {
		case "core":
			if sawCore {
				return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with", "duplicate core child")
			}
			sawCore = true
			if child.Count < 1 {
				return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with.core.count", "must be >= 1")
			}
		case "gpu":
			if sawGPU {
				return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with", "duplicate gpu child")
			}
			sawGPU = true
			if child.Count < 0 {
				return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with.gpu.count", "must be >= 0")
			}
		default:
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with", "children must be core or gpu")
		}
	}
	if !sawCore {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "slot.with", "must contain a core child")
	}
	return nil
}

// validateAttributes checks attributes.system/.user field-level rules.
// The unknown-top-level-section rule (spec.md §4.3) is enforced earlier,
// at decode time, by api.Attributes.UnmarshalJSON.
func validateAttributes(attrs api.Attributes) error {
	if attrs.System.Duration == nil {
		return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.duration", "must be present")
	}
	if attrs.System.Environment != nil {
		// already typed as map[string]string by decode; nothing further to check
	}
	if attrs.System.Shell != nil && attrs.System.Shell.Options == nil {
		// an explicit empty options object is fine; nil here only happens
		// when "shell" was present without "options", which is allowed.
	}
	for i, d := range attrs.System.Dependencies {
		if d.Scheme == "" || d.Value == "" {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.dependencies", "entries must have scheme and value")
		}
		_ = i
	}
	if attrs.System.Constraints != nil {
		var v any
		if err := json.Unmarshal(attrs.System.Constraints, &v); err != nil {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.constraints", "must be valid JSON")
		}
		if _, ok := v.(map[string]any); !ok {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.system.constraints", "must be an object")
		}
	}
	if attrs.User != nil {
		var v any
		if err := json.Unmarshal(attrs.User, &v); err != nil {
			return ferrors.NewAt(ferrors.CodeInvalidArgument, "attributes.user", "must be valid JSON")
		}
	}
	return nil
}

// Counts summarizes the resource tree for limit-job-size, spec.md §4.4's
// jj_get_counts. ncores = nslots * slot_size; ngpus = nslots * slot_gpus.
func Counts(spec *api.Jobspec) (api.Counts, error) {
	if len(spec.Resources) != 1 {
		return api.Counts{}, ferrors.NewAt(ferrors.CodeInvalidArgument, "resources", "must have exactly one root vertex")
	}
	root := spec.Resources[0]

	var nnodes, nslots int
	var slot api.Vertex
	switch root.Type {
	case "node":
		nnodes = root.Count
		if len(root.With) != 1 {
			return api.Counts{}, ferrors.NewAt(ferrors.CodeInvalidArgument, "resources[0].with", "must contain exactly one slot vertex")
		}
		slot = root.With[0]
		nslots = nnodes * slot.Count
	case "slot":
		nnodes = 1
		slot = root
		nslots = slot.Count
	default:
		return api.Counts{}, ferrors.NewAt(ferrors.CodeInvalidArgument, "resources[0].type", "must be node or slot")
	}

	slotSize, slotGPUs := 0, 0
	for _, child := range slot.With {
		switch child.Type {
		case "core":
			slotSize = child.Count
		case "gpu":
			slotGPUs = child.Count
		}
	}

	return api.Counts{
		NNodes: nnodes,
		NCores: nslots * slotSize,
		NGPUs:  nslots * slotGPUs,
	}, nil
}

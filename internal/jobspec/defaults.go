// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package jobspec

import (
	"encoding/json"

	"github.com/flux-framework/flux-core-sub008/api"
)

// ApplySystemDefaults merges updates into attributes.system, the way the
// jobspec-default policy plugin's jobspec-update event is applied to the
// in-memory working copy (spec.md §4.4). All keys go through one generic
// map merge whose result is decoded back into SystemAttributes; keys that
// are not SystemAttributes fields are dropped.
func ApplySystemDefaults(spec *api.Jobspec, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	buf, err := json.Marshal(spec.Attributes.System)
	if err != nil {
		return err
	}
	var merged map[string]any
	if err := json.Unmarshal(buf, &merged); err != nil {
		return err
	}
	if merged == nil {
		merged = make(map[string]any)
	}
	for k, v := range updates {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	var sys api.SystemAttributes
	if err := json.Unmarshal(out, &sys); err != nil {
		return err
	}
	spec.Attributes.System = sys
	return nil
}

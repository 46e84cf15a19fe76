// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"fmt"
)

// Jobspec is the v1 job-request document, spec.md §3.
type Jobspec struct {
	Version    int          `json:"version"`
	Resources  []Vertex     `json:"resources"`
	Tasks      []Task       `json:"tasks"`
	Attributes Attributes   `json:"attributes"`
}

// Vertex is a node/slot/core/gpu resource tree node, spec.md §3.
type Vertex struct {
	Type  string   `json:"type"`
	Count int      `json:"count"`
	Label string   `json:"label,omitempty"`
	With  []Vertex `json:"with,omitempty"`
}

// Task describes tasks[0], spec.md §3.
type Task struct {
	Command []string  `json:"command"`
	Slot    string    `json:"slot"`
	Count   TaskCount `json:"count"`
}

// TaskCount has exactly one of PerSlot or Total set (spec.md §4.3).
type TaskCount struct {
	PerSlot *int `json:"per_slot,omitempty"`
	Total   *int `json:"total,omitempty"`
}

// Attributes holds the "system" and "user" sections; unknown top-level
// sections are rejected (spec.md §4.3).
type Attributes struct {
	System SystemAttributes `json:"system"`
	User   json.RawMessage  `json:"user,omitempty"`
}

// UnmarshalJSON rejects top-level attributes keys other than "system" and
// "user" before decoding into the typed fields, spec.md §4.3's "Unknown
// top-level attributes sections are rejected".
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key := range raw {
		if key != "system" && key != "user" {
			return fmt.Errorf("attributes: unknown section %q", key)
		}
	}

	type alias Attributes
	var a2 alias
	if sys, ok := raw["system"]; ok {
		if err := json.Unmarshal(sys, &a2.System); err != nil {
			return err
		}
	}
	if user, ok := raw["user"]; ok {
		a2.User = user
	}
	*a = Attributes(a2)
	return nil
}

// SystemAttributes is attributes.system.*, spec.md §3.
type SystemAttributes struct {
	Duration     *float64          `json:"duration,omitempty"`
	Queue        string            `json:"queue,omitempty"`
	Environment  map[string]string `json:"environment,omitempty"`
	Shell        *ShellAttributes  `json:"shell,omitempty"`
	Dependencies []Dependency      `json:"dependencies,omitempty"`
	Cwd          string            `json:"cwd,omitempty"`
	Constraints  json.RawMessage   `json:"constraints,omitempty"`
}

type ShellAttributes struct {
	Options map[string]any `json:"options,omitempty"`
}

// Dependency is one entry of attributes.system.dependencies, spec.md §3.
type Dependency struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// DecodeJobspec parses J's unwrapped payload into a Jobspec.
func DecodeJobspec(payload []byte) (*Jobspec, error) {
	var js Jobspec
	if err := json.Unmarshal(payload, &js); err != nil {
		return nil, err
	}
	return &js, nil
}

// Encode serializes the jobspec back to JSON, e.g. for the frobnicator's
// replacement line or the KVS jobspec key (spec.md §6).
func (j *Jobspec) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// Clone deep-copies the jobspec by round-tripping through JSON. Used before
// handing a jobspec to a worker process so the worker's replacement can't
// alias the job's in-memory tree.
func (j *Jobspec) Clone() (*Jobspec, error) {
	buf, err := j.Encode()
	if err != nil {
		return nil, err
	}
	return DecodeJobspec(buf)
}

// Counts summarizes the resource tree for limit-job-size (spec.md §4.4).
type Counts struct {
	NNodes int
	NCores int
	NGPUs  int
}

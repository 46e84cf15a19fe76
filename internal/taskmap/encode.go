// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package taskmap

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Encoding selects one of the four wire forms spec.md's data model names.
type Encoding int

const (
	EncodingJSON Encoding = iota
	EncodingWrapped
	EncodingPMI
	EncodingRaw
)

// blockJSON is the [start_node, nnodes, ppn, repeat] array shape.
type blockJSON [4]int

// Encode renders the taskmap in the requested form (spec.md §6 "Taskmap
// encodings").
func (t *Taskmap) Encode(enc Encoding) (string, error) {
	switch enc {
	case EncodingJSON:
		buf, err := json.Marshal(t.blocksAsJSON())
		return string(buf), err
	case EncodingWrapped:
		buf, err := json.Marshal(wrapped{Version: 1, Map: t.blocksAsJSON()})
		return string(buf), err
	case EncodingPMI:
		return t.encodePMI(), nil
	case EncodingRaw:
		return t.encodeRaw()
	default:
		return "", ferrors.New(ferrors.CodeUnsupported, "unknown taskmap encoding")
	}
}

type wrapped struct {
	Version int         `json:"version"`
	Map     []blockJSON `json:"map"`
}

func (t *Taskmap) blocksAsJSON() []blockJSON {
	out := make([]blockJSON, len(t.blocks))
	for i, b := range t.blocks {
		out[i] = blockJSON{b.StartNode, b.NNodes, b.PPN, b.Repeat}
	}
	return out
}

func (t *Taskmap) encodePMI() string {
	parts := make([]string, len(t.blocks))
	for i, b := range t.blocks {
		parts[i] = fmt.Sprintf("(%d,%d,%d)", b.StartNode, b.NNodes, b.PPN)
	}
	return "(vector," + strings.Join(parts, ",") + ")"
}

func (t *Taskmap) encodeRaw() (string, error) {
	nodes := t.totalNodes()
	sets := make([]string, nodes)
	for n := 0; n < nodes; n++ {
		ids, err := t.Taskids(n)
		if err != nil {
			return "", err
		}
		strs := make([]string, len(ids))
		for i, id := range ids {
			strs[i] = strconv.Itoa(id)
		}
		sets[n] = strings.Join(strs, ",")
	}
	return strings.Join(sets, ";"), nil
}

// Decode parses any of the four forms and returns a validated Taskmap.
// Per spec.md §9's "consider tightening" note, all four forms are
// validated for gaps/duplicates after decode, not just the raw form.
func Decode(s string, enc Encoding) (*Taskmap, error) {
	var blocks []blockJSON
	switch enc {
	case EncodingJSON:
		if err := json.Unmarshal([]byte(s), &blocks); err != nil {
			return nil, ferrors.Newf(ferrors.CodeProtocolError, "decode taskmap json: %v", err)
		}
	case EncodingWrapped:
		var w wrapped
		if err := json.Unmarshal([]byte(s), &w); err != nil {
			return nil, ferrors.Newf(ferrors.CodeProtocolError, "decode wrapped taskmap: %v", err)
		}
		if w.Version != 1 {
			return nil, ferrors.Newf(ferrors.CodeUnsupported, "unsupported taskmap version %d", w.Version)
		}
		blocks = w.Map
	case EncodingPMI:
		var err error
		blocks, err = decodePMI(s)
		if err != nil {
			return nil, err
		}
	case EncodingRaw:
		return decodeRaw(s)
	default:
		return nil, ferrors.New(ferrors.CodeUnsupported, "unknown taskmap encoding")
	}

	tm := &Taskmap{}
	for _, b := range blocks {
		tm.appendRaw(b[0], b[1], b[2], b[3])
	}
	if err := tm.validateNoGapsOrDupes(); err != nil {
		return nil, err
	}
	return tm, nil
}

func decodePMI(s string) ([]blockJSON, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "(vector,") || !strings.HasSuffix(s, ")") {
		return nil, ferrors.Newf(ferrors.CodeProtocolError, "malformed PMI_process_mapping %q", s)
	}
	inner := s[len("(vector,") : len(s)-1]
	if inner == "" {
		return nil, nil
	}
	var blocks []blockJSON
	depth := 0
	start := -1
	for i, r := range inner {
		switch r {
		case '(':
			if depth == 0 {
				start = i + 1
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				tuple := inner[start:i]
				fields := strings.Split(tuple, ",")
				if len(fields) != 3 {
					return nil, ferrors.Newf(ferrors.CodeProtocolError, "malformed PMI tuple %q", tuple)
				}
				nums := make([]int, 3)
				for j, f := range fields {
					n, err := strconv.Atoi(strings.TrimSpace(f))
					if err != nil {
						return nil, ferrors.Newf(ferrors.CodeProtocolError, "malformed PMI tuple %q: %v", tuple, err)
					}
					nums[j] = n
				}
				blocks = append(blocks, blockJSON{nums[0], nums[1], nums[2], 1})
			}
		}
	}
	if depth != 0 {
		return nil, ferrors.Newf(ferrors.CodeProtocolError, "unbalanced PMI_process_mapping %q", s)
	}
	return blocks, nil
}

func decodeRaw(s string) (*Taskmap, error) {
	nodeSets := strings.Split(s, ";")
	tm := &Taskmap{}
	seen := make(map[int]bool)
	nextID := 0
	for node, set := range nodeSets {
		if set == "" {
			continue
		}
		ids := strings.Split(set, ",")
		ppn := len(ids)
		for _, idStr := range ids {
			id, err := strconv.Atoi(strings.TrimSpace(idStr))
			if err != nil {
				return nil, ferrors.Newf(ferrors.CodeProtocolError, "malformed raw taskmap entry %q: %v", idStr, err)
			}
			if id != nextID {
				return nil, ferrors.Newf(ferrors.CodeInvalidArgument, "raw taskmap has a gap or out-of-order id at node %d: expected %d got %d", node, nextID, id)
			}
			if seen[id] {
				return nil, ferrors.Newf(ferrors.CodeInvalidArgument, "raw taskmap has a duplicate id %d", id)
			}
			seen[id] = true
			nextID++
		}
		tm.appendRaw(node, 1, ppn, 1)
	}
	return tm, nil
}

// validateNoGapsOrDupes re-derives the raw encoding and checks it, giving
// the JSON/wrapped/PMI decoders the same gap/duplicate check the raw
// decoder already has natively.
func (t *Taskmap) validateNoGapsOrDupes() error {
	raw, err := t.encodeRaw()
	if err != nil {
		return err
	}
	_, err = decodeRaw(raw)
	return err
}

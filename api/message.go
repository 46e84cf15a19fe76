// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package api

import "encoding/json"

// MessageType is a message's type, spec.md §6.
type MessageType int

const (
	MessageRequest MessageType = iota
	MessageResponse
	MessageEvent
	MessageControl
)

// FrameMagic is the fixed magic prefixing every framed message on the
// file-descriptor transport (spec.md §6). The transport layer itself is
// out of scope; this constant documents the framing contract that
// internal/transport's byte codec implements.
const FrameMagic uint32 = 0xffee0012

// Message carries a topic-routed RPC or event, spec.md §6.
type Message struct {
	Type     MessageType     `json:"type"`
	Topic    string          `json:"topic"`
	Matchtag uint32          `json:"matchtag"`
	Cred     Cred            `json:"cred"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Route    []string        `json:"route,omitempty"`
}

// BatchAnnounceJob is one entry of the job-manager.submit joblist,
// spec.md §4.7, §6.
type BatchAnnounceJob struct {
	ID       uint64          `json:"id"`
	Userid   uint32          `json:"userid"`
	Urgency  int             `json:"urgency"`
	TSubmit  float64         `json:"t_submit"`
	Flags    Flags           `json:"flags"`
	Jobspec  json.RawMessage `json:"jobspec"`
}

// BatchAnnounceRequest is the job-manager.submit request payload.
type BatchAnnounceRequest struct {
	Jobs []BatchAnnounceJob `json:"jobs"`
}

// BatchAnnounceError is one [id, msg] pair of a partial-failure response.
type BatchAnnounceError struct {
	ID  uint64
	Msg string
}

// MarshalJSON renders BatchAnnounceError as a 2-element JSON array,
// matching spec.md §4.7's "[[id, msg], ...]" shape.
func (e BatchAnnounceError) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.ID, e.Msg})
}

// UnmarshalJSON parses a 2-element JSON array back into a BatchAnnounceError.
func (e *BatchAnnounceError) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if err := json.Unmarshal(pair[0], &e.ID); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Msg)
}

// BatchAnnounceResponse is empty on full success, else carries per-job
// errors (spec.md §4.7, §6).
type BatchAnnounceResponse struct {
	Errors []BatchAnnounceError `json:"errors,omitempty"`
}

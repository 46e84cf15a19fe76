// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package api holds the wire and data types shared by the ingest core and
// the attach client: jobs, jobspecs, messages, taskmaps, and eventlog
// entries (spec.md §3, §6).
package api

// Urgency bounds, spec.md §3.
const (
	UrgencyMin     = 0
	UrgencyMax     = 31
	UrgencyDefault = 16
	UrgencyExpedite = 31 // owner-only: jump the queue unconditionally
)

// Flags bits, spec.md §6.
type Flags uint32

const (
	FlagDebug      Flags = 1 << 0
	FlagWaitable   Flags = 1 << 1
	FlagNoValidate Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Cred is the authenticated credential attached to a request by the
// connector (spec.md §3 Job.cred). RoleOwner grants elevated privileges.
type Cred struct {
	Userid   uint32
	RoleMask RoleMask
}

type RoleMask uint32

const (
	RoleUser  RoleMask = 1 << 0
	RoleOwner RoleMask = 1 << 1
)

func (c Cred) IsOwner() bool { return c.RoleMask&RoleOwner != 0 }

// SubmitRequest is the job-ingest.submit request payload, spec.md §6.
type SubmitRequest struct {
	J       string `json:"J"`
	Urgency int    `json:"urgency"`
	Flags   Flags  `json:"flags"`
}

// NewSubmitRequest applies the spec.md §3 urgency default (DEFAULT = 16)
// when the submitter didn't specify one.
func NewSubmitRequest(j string, urgency int, flags Flags) SubmitRequest {
	if urgency == 0 {
		urgency = UrgencyDefault
	}
	return SubmitRequest{J: j, Urgency: urgency, Flags: flags}
}

// SubmitResponse is returned for each submit request: exactly one of ID or
// Err is populated (spec.md §8 invariant 2).
type SubmitResponse struct {
	ID  uint64 `json:"id,omitempty"`
	Err string `json:"-"`
}

// Job is created from a submit request and lives until its batch commits
// or is rejected (spec.md §3).
type Job struct {
	ID      uint64 // FLUID; zero until FLUID assignment
	Msg     SubmitRequest
	J       string // opaque signed jobspec string, retained to respond
	Cred    Cred
	Urgency int
	Flags   Flags
	Spec    *Jobspec // decoded, environment stripped; may be mutated by frobnication

	// RespondTo receives exactly one SubmitResponse.
	RespondTo chan SubmitResponse
}

// NewJob constructs a Job from an authenticated submit request. Urgency is
// taken verbatim from the request; callers that want the spec.md §3
// default (DEFAULT = 16) apply it before calling NewJob, since 0 is itself
// a legal urgency value and cannot be treated as "unset" here. FLUID
// assignment and jobspec decoding happen later in the pipeline.
func NewJob(req SubmitRequest, cred Cred) *Job {
	return &Job{
		Msg:       req,
		J:         req.J,
		Cred:      cred,
		Urgency:   req.Urgency,
		Flags:     req.Flags,
		RespondTo: make(chan SubmitResponse, 1),
	}
}

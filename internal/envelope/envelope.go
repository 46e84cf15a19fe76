// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package envelope implements the signature envelope unwrap contract,
// spec.md §4.2. The cryptographic mech itself is a security collaborator
// out of scope for this core; this package implements the "none" mech
// (owner-only) and the pluggable contract a real mech satisfies.
package envelope

import (
	"encoding/base64"
	"encoding/json"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Unwrapped is the result of unwrapping a signed J string, spec.md §4.2.
type Unwrapped struct {
	Payload      []byte
	MechName     string
	SignerUserid uint32
}

// Mech unwraps J and returns the embedded payload and signer identity. The
// core never re-verifies signatures on the already-authenticated-by-
// transport path (spec.md §4.2) — a Mech only extracts and reports what it
// finds; permission decisions are made by the caller in Unwrap.
type Mech interface {
	Name() string
	Unwrap(j string) (payload []byte, signerUserid uint32, err error)
}

// Registry dispatches to a Mech by name embedded in J.
type Registry struct {
	mechs map[string]Mech
}

// NewRegistry builds a registry seeded with the "none" mech. Callers
// register additional mechs (e.g. a real cryptographic one) via Register.
func NewRegistry() *Registry {
	r := &Registry{mechs: make(map[string]Mech)}
	r.Register(NoneMech{})
	return r
}

func (r *Registry) Register(m Mech) { r.mechs[m.Name()] = m }

// envelopeHeader is the minimal structure every J string carries: enough
// to pick a mech before fully unwrapping.
type envelopeHeader struct {
	Mech string `json:"mech"`
}

// Unwrap unwraps J using the mech it declares, then enforces spec.md §4.2's
// two invariants: "none" requires owner role, and the signer userid
// returned by the mech must equal the authenticated credential's userid.
func (r *Registry) Unwrap(j string, authenticated api.Cred) (*Unwrapped, error) {
	raw, err := base64.RawURLEncoding.DecodeString(j)
	if err != nil {
		// Fall back to standard padding in case the caller used it.
		raw, err = base64.URLEncoding.DecodeString(j)
		if err != nil {
			return nil, ferrors.New(ferrors.CodeInvalidArgument, "J is not valid base64url")
		}
	}

	var hdr envelopeHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, ferrors.Newf(ferrors.CodeInvalidArgument, "malformed envelope: %v", err)
	}

	mech, ok := r.mechs[hdr.Mech]
	if !ok {
		return nil, ferrors.Newf(ferrors.CodeUnsupported, "unknown signing mech %q", hdr.Mech)
	}

	if hdr.Mech == "none" && !authenticated.IsOwner() {
		return nil, ferrors.New(ferrors.CodePermissionDenied, "sign-type=none requires owner role")
	}

	payload, signer, err := mech.Unwrap(j)
	if err != nil {
		return nil, ferrors.Wrap(err)
	}

	if signer != authenticated.Userid {
		return nil, ferrors.Newf(ferrors.CodePermissionDenied,
			"envelope signer userid %d does not match authenticated userid %d", signer, authenticated.Userid)
	}

	return &Unwrapped{Payload: payload, MechName: hdr.Mech, SignerUserid: signer}, nil
}

// NoneMech is the unsigned envelope: a base64url JSON object carrying the
// payload and a plain-text userid field, spec.md §6 "Sign-type = none".
type NoneMech struct{}

func (NoneMech) Name() string { return "none" }

type noneEnvelope struct {
	Mech    string          `json:"mech"`
	Userid  uint32          `json:"userid"`
	Payload json.RawMessage `json:"payload"`
}

func (NoneMech) Unwrap(j string) ([]byte, uint32, error) {
	raw, err := base64.RawURLEncoding.DecodeString(j)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(j)
		if err != nil {
			return nil, 0, ferrors.New(ferrors.CodeInvalidArgument, "J is not valid base64url")
		}
	}
	var env noneEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, 0, ferrors.Newf(ferrors.CodeInvalidArgument, "malformed none envelope: %v", err)
	}
	return []byte(env.Payload), env.Userid, nil
}

// Wrap builds a sign-type=none envelope, the inverse of NoneMech.Unwrap.
// Used by tests and by callers constructing submit requests as the owner.
func Wrap(payload []byte, userid uint32) (string, error) {
	env := noneEnvelope{Mech: "none", Userid: userid, Payload: payload}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

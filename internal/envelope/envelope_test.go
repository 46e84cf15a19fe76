// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package envelope

import (
	"encoding/base64"
	"testing"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS8UnwrapWrapRoundTripsForNoneMech(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	j, err := Wrap(payload, 1000)
	require.NoError(t, err)

	r := NewRegistry()
	owner := api.Cred{Userid: 1000, RoleMask: api.RoleOwner}
	out, err := r.Unwrap(j, owner)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(out.Payload))
	assert.Equal(t, uint32(1000), out.SignerUserid)
}

func TestS2UserIDMismatchIsPermissionDenied(t *testing.T) {
	j, err := Wrap([]byte(`{}`), 1001)
	require.NoError(t, err)

	r := NewRegistry()
	submitter := api.Cred{Userid: 1000, RoleMask: api.RoleOwner}
	_, err = r.Unwrap(j, submitter)
	require.Error(t, err)

	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ferrors.CodePermissionDenied, fe.Code)
}

func TestNoneMechRejectedWithoutOwnerRole(t *testing.T) {
	j, err := Wrap([]byte(`{}`), 1000)
	require.NoError(t, err)

	r := NewRegistry()
	nonOwner := api.Cred{Userid: 1000, RoleMask: api.RoleUser}
	_, err = r.Unwrap(j, nonOwner)
	require.Error(t, err)

	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ferrors.CodePermissionDenied, fe.Code)
}

func TestUnknownMechIsUnsupported(t *testing.T) {
	env := `{"mech":"munge","userid":1000}`
	encoded := base64.RawURLEncoding.EncodeToString([]byte(env))
	r := NewRegistry()
	_, err := r.Unwrap(encoded, api.Cred{Userid: 1000, RoleMask: api.RoleOwner})
	require.Error(t, err)

	var fe *ferrors.FluxError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ferrors.CodeUnsupported, fe.Code)
}

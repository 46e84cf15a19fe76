// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

func TestBroker_RoutesTopicToHandlerAndStampsRouteHop(t *testing.T) {
	b := NewBroker(nil)
	b.HandleTopic("job-ingest.submit", func(r *http.Request, msg api.Message) (any, error) {
		assert.Len(t, msg.Route, 1)
		return map[string]uint64{"id": 42}, nil
	})

	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	body, _ := json.Marshal(api.Message{Matchtag: 9})
	resp, err := http.Post(srv.URL+"/rpc/job-ingest.submit", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out api.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, uint32(9), out.Matchtag)

	var payload struct {
		ID uint64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(out.Payload, &payload))
	assert.Equal(t, uint64(42), payload.ID)
}

func TestBroker_MapsErrorCodeToHTTPStatus(t *testing.T) {
	b := NewBroker(nil)
	b.HandleTopic("job-ingest.submit", func(r *http.Request, msg api.Message) (any, error) {
		return nil, ferrors.New(ferrors.CodePermissionDenied, "EPERM: no owner role")
	})

	srv := httptest.NewServer(b.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/rpc/job-ingest.submit", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
)

func TestEventStreamClient_TailsStoreOverWebsocket(t *testing.T) {
	store := eventlog.NewStore()
	require.NoError(t, store.Append(11, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventSubmit}))
	require.NoError(t, store.Append(11, eventlog.LogPrimary, api.EventLogEntry{Name: api.EventStart}))
	store.Close(11, eventlog.LogPrimary)

	server := NewEventStreamServer(store, nil)
	ts := httptest.NewServer(server)
	defer ts.Close()

	client := NewEventStreamClient(ts.URL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lines, status, err := client.WatchRaw(ctx, 11, eventlog.LogPrimary)
	require.NoError(t, err)

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	require.Len(t, got, 2)
	assert.Contains(t, got[0], api.EventSubmit)
	assert.Contains(t, got[1], api.EventStart)
	assert.True(t, eventlog.IsNoData(status()))
}

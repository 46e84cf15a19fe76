// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-sub008/api"
)

func TestStore_WatchRawDeliversAppendedEntriesThenNoData(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append(7, LogPrimary, api.EventLogEntry{Name: api.EventSubmit}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	lines, status, err := s.WatchRaw(ctx, 7, LogPrimary)
	require.NoError(t, err)

	first := <-lines
	assert.Contains(t, first, api.EventSubmit)

	require.NoError(t, s.Append(7, LogPrimary, api.EventLogEntry{Name: api.EventStart}))
	second := <-lines
	assert.Contains(t, second, api.EventStart)

	s.Close(7, LogPrimary)
	_, ok := <-lines
	assert.False(t, ok)
	assert.True(t, IsNoData(status()))
}

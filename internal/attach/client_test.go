// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/pkg/config"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

type fakeEventSource struct {
	streams map[string][]api.EventLogEntry
}

func (f *fakeEventSource) Tail(ctx context.Context, jobID uint64, name string) (<-chan api.EventLogEntry, func() error, error) {
	entries := f.streams[name]
	ch := make(chan api.EventLogEntry, len(entries)+1)
	for _, e := range entries {
		ch <- e
	}
	close(ch)
	return ch, func() error { return ferrors.New(ferrors.CodeNoData, "eof") }, nil
}

func entry(t *testing.T, name string, ctx any) api.EventLogEntry {
	t.Helper()
	e := api.EventLogEntry{Name: name}
	if ctx != nil {
		raw, err := json.Marshal(ctx)
		require.NoError(t, err)
		e.Context = raw
	}
	return e
}

// TestClient_CanceledJobExitsNonZero mirrors spec.md §8 scenario S6: a
// canceled job's primary eventlog carries a fatal exception followed by a
// finish(status=SIGTERM); the attach client must exit non-zero.
func TestClient_CanceledJobExitsNonZero(t *testing.T) {
	events := &fakeEventSource{streams: map[string][]api.EventLogEntry{
		eventlog.LogPrimary: {
			entry(t, api.EventSubmit, nil),
			entry(t, api.EventValidate, nil),
			entry(t, api.EventDepend, nil),
			entry(t, api.EventPriority, api.PriorityContext{Priority: 1}),
			entry(t, api.EventAlloc, nil),
			entry(t, api.EventStart, nil),
			entry(t, api.EventException, api.ExceptionContext{Type: "cancel", Severity: 0, Note: "user"}),
			entry(t, api.EventFinish, api.FinishContext{Status: 15}), // SIGTERM
			entry(t, api.EventClean, nil),
		},
	}}

	cfg := config.NewDefaultAttachConfig()
	var stdout, stderr bytes.Buffer
	c := New(cfg, 42, "", events, nil, nil, nil, nil).WithIO(&stdout, &stderr, nil)

	code := c.Run(context.Background())
	assert.GreaterOrEqual(t, code, 1)
	assert.Contains(t, stderr.String(), "job.exception type=cancel severity=0 user")
}

func TestClient_NormalFinishExitCode(t *testing.T) {
	events := &fakeEventSource{streams: map[string][]api.EventLogEntry{
		eventlog.LogPrimary: {
			entry(t, api.EventSubmit, nil),
			entry(t, api.EventStart, nil),
			entry(t, api.EventFinish, api.FinishContext{Status: 0}),
			entry(t, api.EventClean, nil),
		},
	}}

	cfg := config.NewDefaultAttachConfig()
	var stdout, stderr bytes.Buffer
	c := New(cfg, 7, "", events, nil, nil, nil, nil).WithIO(&stdout, &stderr, nil)

	code := c.Run(context.Background())
	assert.Equal(t, 0, code)
}

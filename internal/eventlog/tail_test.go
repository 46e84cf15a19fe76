// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

type fakeRawWatcher struct {
	lines    []string
	statusFn func() error
}

func (f *fakeRawWatcher) WatchRaw(ctx context.Context, jobID uint64, name string) (<-chan string, func() error, error) {
	ch := make(chan string, len(f.lines))
	for _, l := range f.lines {
		ch <- l
	}
	close(ch)
	return ch, f.statusFn, nil
}

func TestTailer_ParsesEntriesInOrder(t *testing.T) {
	watcher := &fakeRawWatcher{
		lines: []string{
			`{"timestamp":1.0,"name":"submit"}`,
			`{"timestamp":2.0,"name":"validate"}`,
		},
		statusFn: func() error { return ferrors.New(ferrors.CodeNoData, "eof") },
	}
	tailer := NewTailer(watcher)

	entries, status, err := tailer.Tail(context.Background(), 42, LogPrimary)
	require.NoError(t, err)

	var names []string
	for e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"submit", "validate"}, names)
	assert.True(t, IsNoData(status()))
}

func TestTailer_SurfacesParseErrors(t *testing.T) {
	watcher := &fakeRawWatcher{
		lines:    []string{`not json`},
		statusFn: func() error { return ferrors.New(ferrors.CodeNoData, "eof") },
	}
	tailer := NewTailer(watcher)

	entries, status, err := tailer.Tail(context.Background(), 42, LogPrimary)
	require.NoError(t, err)
	for range entries {
	}
	assert.False(t, IsNoData(status()))
}

func TestSeverityName(t *testing.T) {
	assert.Equal(t, "emerg", SeverityName(0))
	assert.Equal(t, "debug", SeverityName(7))
	assert.Equal(t, "unknown", SeverityName(8))
}

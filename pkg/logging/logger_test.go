// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToStderr(t *testing.T) {
	l := New(nil)
	require.NotNil(t, l)
}

func TestWithContextExtractsCorrelation(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	l := New(&Config{Level: slog.LevelDebug, Format: FormatJSON, Output: w, Service: "job-ingest"})

	ctx := WithJobID(context.Background(), 42)
	ctx = WithMatchtag(ctx, 7)
	l.WithContext(ctx).Info("batch flushed")
	w.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	out := buf.String()
	assert.Contains(t, out, `"jobid":42`)
	assert.Contains(t, out, `"matchtag":7`)
}

func TestNoOpLoggerIsSilent(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("x")
	l.With("a", 1).Info("y")
	assert.Equal(t, NoOpLogger{}, l.WithContext(context.Background()))
}

func TestOrFallsBackToNoOp(t *testing.T) {
	assert.Equal(t, NoOpLogger{}, Or(nil))
	l := New(nil)
	assert.Equal(t, l, Or(l))
}

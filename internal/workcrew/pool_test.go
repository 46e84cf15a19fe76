// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workcrew

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeEchoScript writes a line-oriented shell worker that writes body for
// every line it reads on stdin, then exits when stdin closes.
func writeEchoScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	script := "#!/bin/sh\nwhile IFS= read -r line; do\n  " + body + "\ndone\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestProcessJobAcceptsOnEmptyErrmsg(t *testing.T) {
	script := writeEchoScript(t, `echo '{}'`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)

	resp, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{"version":1}`)})
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
}

func TestProcessJobSurfacesWorkerErrmsg(t *testing.T) {
	script := writeEchoScript(t, `echo '{"errmsg":"duration exceeds limit"}'`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)

	resp, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, resp.Accepted())
	assert.Equal(t, "duration exceeds limit", resp.ErrMsg)
}

func TestProcessJobFrobnicatorReturnsReplacementJobspec(t *testing.T) {
	script := writeEchoScript(t, `echo "$line"`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1, Frobnicator: true}, nil)

	resp, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{"version":1}`)})
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
	assert.Contains(t, string(resp.Replacement), `"version":1`)
}

func TestProcessJobSpawnsUpToMaxWorkersConcurrently(t *testing.T) {
	script := writeEchoScript(t, `sleep 0.05; echo '{}'`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 3}, nil)

	done := make(chan struct{}, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
			assert.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent jobs")
		}
	}
	assert.Equal(t, int64(3), p.StatsGet().WorkersSpawned)
}

func TestStopNotifyFiresCallbackAfterAllWorkersExit(t *testing.T) {
	script := writeEchoScript(t, `echo '{}'`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)

	_, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	require.NoError(t, err)

	fired := make(chan struct{})
	count := p.StopNotify(func() { close(fired) })
	assert.Equal(t, 1, count)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("stop_notify callback never fired")
	}
}

func TestProcessJobDetectsCrashedWorker(t *testing.T) {
	script := writeEchoScript(t, `exit 0`) // worker reads nothing then exits
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)

	_, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.StatsGet().WorkersCrashed)
}

func TestRespawnBacksOffAfterCrashAndResetsOnSuccess(t *testing.T) {
	script := writeEchoScript(t, `exit 0`) // every spawned worker crashes immediately
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)
	p.respawnBackoff.InitialDelay = time.Millisecond
	p.respawnBackoff.MaxDelay = 5 * time.Millisecond

	_, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	require.Error(t, err)
	assert.Equal(t, 1, p.crashStreak)

	start := time.Now()
	_, err = p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	require.Error(t, err)
	assert.GreaterOrEqual(t, time.Since(start), time.Millisecond)
	assert.Equal(t, 2, p.crashStreak)
}

func TestRespawnResetsBackoffOnceAWorkerSurvives(t *testing.T) {
	script := writeEchoScript(t, `echo '{}'`)
	p := New(Config{Command: "/bin/sh", ArgsCSV: script, MaxWorkers: 1}, nil)
	p.crashStreak = 3
	p.respawnBackoff.InitialDelay = time.Microsecond
	p.respawnBackoff.MaxDelay = time.Microsecond

	resp, err := p.ProcessJob(context.Background(), Request{Jobspec: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, resp.Accepted())
	assert.Equal(t, 0, p.crashStreak)
}

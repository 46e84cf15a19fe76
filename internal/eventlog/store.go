// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Store is an append-only, per-(job,name) eventlog buffer backing
// job-info.event-watch for a single-broker deployment: the job manager
// and exec system append entries as they occur (spec.md §6's "Eventlogs
// are managed by the job manager and exec system"), and Store implements
// RawWatcher so internal/transport's websocket stream and internal/attach
// can tail it the same way they would a real broker connection.
type Store struct {
	mu      sync.Mutex
	logs    map[logKey][]string
	waiters map[logKey][]chan struct{}
}

type logKey struct {
	jobID uint64
	name  string
}

func NewStore() *Store {
	return &Store{
		logs:    make(map[logKey][]string),
		waiters: make(map[logKey][]chan struct{}),
	}
}

// Append records one eventlog entry and wakes any in-progress tails.
func (s *Store) Append(jobID uint64, name string, entry api.EventLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := logKey{jobID, name}

	s.mu.Lock()
	s.logs[key] = append(s.logs[key], string(raw))
	waiting := s.waiters[key]
	s.waiters[key] = nil
	s.mu.Unlock()

	for _, w := range waiting {
		close(w)
	}
	return nil
}

// Close marks a (job, name) eventlog as final: outstanding and future
// tails drain what's buffered, then WatchRaw's status() returns ENODATA.
func (s *Store) Close(jobID uint64, name string) {
	key := logKey{jobID, name}
	s.mu.Lock()
	s.logs[key] = append(s.logs[key], "")
	waiting := s.waiters[key]
	s.waiters[key] = nil
	s.mu.Unlock()
	for _, w := range waiting {
		close(w)
	}
}

// WatchRaw implements RawWatcher, streaming lines already appended plus
// any appended later, terminating with ENODATA once Close has been
// called, spec.md §4.8.
func (s *Store) WatchRaw(ctx context.Context, jobID uint64, name string) (<-chan string, func() error, error) {
	key := logKey{jobID, name}
	out := make(chan string, 16)
	var streamErr error

	go func() {
		defer close(out)
		pos := 0
		for {
			s.mu.Lock()
			lines := s.logs[key]
			for pos < len(lines) {
				line := lines[pos]
				pos++
				if line == "" {
					s.mu.Unlock()
					streamErr = ferrors.New(ferrors.CodeNoData, "eventlog closed")
					return
				}
				s.mu.Unlock()
				select {
				case out <- line:
				case <-ctx.Done():
					streamErr = ferrors.New(ferrors.CodeNoData, "eventlog watch canceled")
					return
				}
				s.mu.Lock()
			}
			wake := make(chan struct{})
			s.waiters[key] = append(s.waiters[key], wake)
			s.mu.Unlock()

			select {
			case <-wake:
			case <-ctx.Done():
				streamErr = ferrors.New(ferrors.CodeNoData, "eventlog watch canceled")
				return
			}
		}
	}()

	status := func() error { return streamErr }
	return out, status, nil
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package kvs defines the minimal transactional key/value contract the
// ingest batch path needs (spec.md §4.7); real storage backends are out
// of scope (spec.md Non-goals), so this package also ships an in-memory
// implementation sufficient for tests and for a single-broker deployment.
package kvs

import (
	"context"
	"sync"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Txn accumulates put/unlink operations for one atomic commit, spec.md
// §4.7's "KVS transaction builder".
type Txn struct {
	puts    map[string][]byte
	unlinks []string
	order   []string // preserves Put call order for deterministic commit
}

func NewTxn() *Txn {
	return &Txn{puts: make(map[string][]byte)}
}

// Put stages an append-only write to key.
func (t *Txn) Put(key string, value []byte) {
	if _, exists := t.puts[key]; !exists {
		t.order = append(t.order, key)
	}
	t.puts[key] = value
}

// Unlink stages removal of key's subtree, spec.md §4.7's cleanup step.
func (t *Txn) Unlink(key string) {
	t.unlinks = append(t.unlinks, key)
}

func (t *Txn) IsEmpty() bool { return len(t.puts) == 0 && len(t.unlinks) == 0 }

// KVS is the transactional interface the ingest batch path depends on.
type KVS interface {
	Commit(ctx context.Context, txn *Txn) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// InMemory is a map-backed KVS for tests and single-process deployments.
type InMemory struct {
	mu    sync.RWMutex
	store map[string][]byte
}

func NewInMemory() *InMemory {
	return &InMemory{store: make(map[string][]byte)}
}

func (m *InMemory) Commit(ctx context.Context, txn *Txn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range txn.order {
		m.store[key] = txn.puts[key]
	}
	for _, key := range txn.unlinks {
		for k := range m.store {
			if hasPrefix(k, key) {
				delete(m.store, k)
			}
		}
	}
	return nil
}

func (m *InMemory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.store[key]
	if !ok {
		return nil, ferrors.NewAt(ferrors.CodeNoSuchEntry, key, "no such key")
	}
	return v, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

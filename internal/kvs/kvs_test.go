// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package kvs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitAppliesPutsInOrder(t *testing.T) {
	m := NewInMemory()
	txn := NewTxn()
	txn.Put("job.1/J", []byte("a"))
	txn.Put("job.1/jobspec", []byte("b"))
	require.NoError(t, m.Commit(context.Background(), txn))

	v, err := m.Get(context.Background(), "job.1/J")
	require.NoError(t, err)
	assert.Equal(t, "a", string(v))
}

func TestGetMissingKeyIsNoSuchEntry(t *testing.T) {
	m := NewInMemory()
	_, err := m.Get(context.Background(), "missing")
	assert.Error(t, err)
}

func TestUnlinkRemovesSubtree(t *testing.T) {
	m := NewInMemory()
	txn := NewTxn()
	txn.Put("job.1/J", []byte("a"))
	txn.Put("job.1/jobspec", []byte("b"))
	require.NoError(t, m.Commit(context.Background(), txn))

	cleanup := NewTxn()
	cleanup.Unlink("job.1/")
	require.NoError(t, m.Commit(context.Background(), cleanup))

	_, err := m.Get(context.Background(), "job.1/J")
	assert.Error(t, err)
}

func TestTxnIsEmpty(t *testing.T) {
	txn := NewTxn()
	assert.True(t, txn.IsEmpty())
	txn.Put("k", []byte("v"))
	assert.False(t, txn.IsEmpty())
}

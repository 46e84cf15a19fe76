// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package fluid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsGeneratorIDTooLarge(t *testing.T) {
	_, err := New(MaxGeneratorID, 0)
	assert.Error(t, err)
}

func TestGenerateStrictlyIncreasing(t *testing.T) {
	now := uint64(1000)
	clock := func() uint64 { return now }

	g, err := NewWithClock(5, 0, clock)
	require.NoError(t, err)

	var ids []uint64
	for i := 0; i < 5; i++ {
		id, err := g.Generate()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestGenerateAdvancesOnClockTick(t *testing.T) {
	now := uint64(1000)
	clock := func() uint64 { return now }
	g, err := NewWithClock(1, 0, clock)
	require.NoError(t, err)

	a, err := g.Generate()
	require.NoError(t, err)
	now = 1001
	b, err := g.Generate()
	require.NoError(t, err)
	assert.Greater(t, b, a)

	ts, gen, seq := Unpack(b)
	assert.Equal(t, uint64(1001), ts)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, uint64(0), seq)
}

func TestGenerateHandlesClockGoingBackwards(t *testing.T) {
	now := uint64(5000)
	clock := func() uint64 { return now }
	g, err := NewWithClock(2, 0, clock)
	require.NoError(t, err)

	a, err := g.Generate()
	require.NoError(t, err)

	now = 4000 // clock regression
	b, err := g.Generate()
	require.NoError(t, err)
	assert.Greater(t, b, a)

	ts, _, _ := Unpack(b)
	assert.Equal(t, uint64(5000), ts, "timestamp must never move backwards")
}

func TestSaveTimestampMatchesNextGenerate(t *testing.T) {
	now := uint64(42)
	clock := func() uint64 { return now }
	g, err := NewWithClock(0, 0, clock)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), g.SaveTimestamp())
	_, err = g.Generate()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), g.SaveTimestamp())
}

func TestPackUnpackRoundTrip(t *testing.T) {
	id := pack(123456, 77, 5)
	ts, gen, seq := Unpack(id)
	assert.Equal(t, uint64(123456), ts)
	assert.Equal(t, uint64(77), gen)
	assert.Equal(t, uint64(5), seq)
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponentialBackoffGrowsAndCaps(t *testing.T) {
	b := NewExponentialBackoff()
	b.Jitter = 0
	b.MaxAttempts = 4

	prev := time.Duration(0)
	for i := 0; i < 3; i++ {
		d, ok := b.NextDelay(i)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}

	_, ok := b.NextDelay(4)
	assert.False(t, ok)
}

func TestExponentialBackoffRespectsMaxDelay(t *testing.T) {
	b := NewExponentialBackoff()
	b.Jitter = 0
	b.MaxDelay = 200 * time.Millisecond
	b.MaxAttempts = 100

	d, ok := b.NextDelay(20)
	assert.True(t, ok)
	assert.LessOrEqual(t, d, 200*time.Millisecond)
}

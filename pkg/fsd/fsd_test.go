// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package fsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := map[string]float64{
		"":     0,
		"0":    0,
		"30":   30,
		"30s":  30,
		"5m":   300,
		"1h":   3600,
		"2d":   172800,
		"1.5h": 5400,
	}
	for in, want := range cases {
		got, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseRejectsNegativeAndGarbage(t *testing.T) {
	_, err := Parse("-1h")
	assert.Error(t, err)
	_, err = Parse("abc")
	assert.Error(t, err)
	_, err = Parse("h")
	assert.Error(t, err)
}

func TestFormatRoundTripsCommonUnits(t *testing.T) {
	assert.Equal(t, "0", Format(0))
	assert.Equal(t, "1h", Format(3600))
	assert.Equal(t, "2d", Format(172800))
	assert.Equal(t, "5m", Format(300))
	assert.Equal(t, "90s", Format(90))
}

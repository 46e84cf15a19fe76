// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame_RoundTrips(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	encoded := EncodeFrame(payload)

	got, err := ReadFrame(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestReadFrame_RejectsBadMagic(t *testing.T) {
	buf := EncodeFrame([]byte("x"))
	buf[0] ^= 0xff

	_, err := ReadFrame(bytes.NewReader(buf))
	assert.Error(t, err)
}

func TestIobuf_HandlesPartialReads(t *testing.T) {
	encoded := EncodeFrame([]byte("partial-read-payload"))

	// Deliver the frame split across several short reads.
	r := &chunkedReader{data: encoded, chunk: 3}
	got, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("partial-read-payload"), got)
}

// chunkedReader returns at most chunk bytes per Read, to exercise
// iobuf's restartable partial-read path.
type chunkedReader struct {
	data  []byte
	chunk int
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, bytes.ErrTooLarge // unreachable in these tests
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestMatchtags_AllocIsMonotonicAndNonzero(t *testing.T) {
	var m Matchtags
	a := m.Alloc()
	b := m.Alloc()
	assert.NotZero(t, a)
	assert.Greater(t, b, a)
}

func TestRouteHop_ProducesDistinctIDs(t *testing.T) {
	assert.NotEqual(t, RouteHop(), RouteHop())
}

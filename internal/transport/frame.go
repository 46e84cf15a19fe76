// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package transport implements the file-descriptor message framing, a
// topic-routed broker standing in for the broker's dispatch, and the
// websocket-backed eventlog streaming transport, spec.md §6.
package transport

import (
	"encoding/binary"
	"io"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Magic is the fixed 4-byte prefix of every framed message, spec.md §6.
const Magic uint32 = 0xffee0012

const headerSize = 8 // 4 bytes magic + 4 bytes big-endian size

const minBufCap = 4096

// iobuf is a growable per-connection scratch buffer that makes partial
// reads on a non-blocking fd restartable: callers keep calling fillFrom
// with the same iobuf until it returns a complete frame,
// spec.md §6's "iobuf whose internal buffer grows from a 4 KiB static
// buffer to the needed size".
type iobuf struct {
	buf []byte
	n   int // bytes currently held
}

func newIobuf() *iobuf {
	return &iobuf{buf: make([]byte, minBufCap)}
}

func (b *iobuf) ensure(size int) {
	if cap(b.buf) >= size {
		b.buf = b.buf[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, b.buf[:b.n])
	b.buf = grown
}

func (b *iobuf) reset() {
	b.n = 0
}

// fillFrom reads the rest of one frame from r, returning the decoded
// payload once the full frame has arrived. If r returns an error first,
// that error is returned and the bytes read so far stay in the iobuf, so
// a later call with the same iobuf resumes the frame.
func (b *iobuf) fillFrom(r io.Reader) ([]byte, error) {
	if b.n < headerSize {
		b.ensure(headerSize)
		n, err := io.ReadFull(r, b.buf[b.n:headerSize])
		b.n += n
		if err != nil {
			return nil, err
		}
	}

	magic := binary.BigEndian.Uint32(b.buf[0:4])
	if magic != Magic {
		return nil, ferrors.Newf(ferrors.CodeProtocolError, "bad frame magic 0x%x", magic)
	}
	size := binary.BigEndian.Uint32(b.buf[4:8])
	total := headerSize + int(size)

	if b.n < total {
		b.ensure(total)
		n, err := io.ReadFull(r, b.buf[b.n:total])
		b.n += n
		if err != nil {
			return nil, err
		}
	}

	payload := make([]byte, size)
	copy(payload, b.buf[headerSize:total])
	b.reset()
	return payload, nil
}

// EncodeFrame prepends the magic+size header to payload, spec.md §6.
func EncodeFrame(payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(out[0:4], Magic)
	binary.BigEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[headerSize:], payload)
	return out
}

// ReadFrame reads one complete framed message from r, blocking until it
// has arrived. It is the blocking counterpart to iobuf.fillFrom, for
// transports (like a websocket text/binary message) that already deliver
// whole reads.
func ReadFrame(r io.Reader) ([]byte, error) {
	b := newIobuf()
	for {
		payload, err := b.fillFrom(r)
		if payload != nil || err != nil {
			return payload, err
		}
	}
}

// WriteFrame writes one complete framed message to w.
func WriteFrame(w io.Writer, payload []byte) error {
	_, err := w.Write(EncodeFrame(payload))
	return err
}

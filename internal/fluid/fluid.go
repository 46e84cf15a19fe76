// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package fluid implements the FLUID distributed 64-bit ID generator,
// spec.md §4.1. Each producer rank holds its own Generator; no
// coordination is required per-ID, only at initialization.
package fluid

import (
	"sync"
	"time"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

const (
	// MaxGeneratorID bounds generator_id to 14 bits (0..16368, not the full
	// 0..16383, per spec.md §4.1).
	MaxGeneratorID = 16368

	sequenceBits  = 10
	generatorBits = 14
	maxSequence   = 1 << sequenceBits // sequence overflows at 1024
)

// Clock returns the current monotonic-wall-clock milliseconds since the
// instance epoch. Tests substitute a deterministic clock.
type Clock func() uint64

// Generator produces strictly increasing 64-bit FLUIDs for one producer
// rank. Generate and SaveTimestamp serialize on an internal mutex, so a
// Generator is safe to share between goroutines.
type Generator struct {
	mu sync.Mutex

	generatorID uint64
	timestampMs uint64
	sequence    uint64

	clock Clock
}

// New initializes a generator for the given rank and epoch, spec.md §4.1.
// id must be < MaxGeneratorID.
func New(generatorID uint64, epochMs uint64) (*Generator, error) {
	return NewWithClock(generatorID, epochMs, defaultClock)
}

// NewWithClock is New with an injectable clock, for deterministic tests.
func NewWithClock(generatorID uint64, epochMs uint64, clock Clock) (*Generator, error) {
	if generatorID >= MaxGeneratorID {
		return nil, ferrors.Newf(ferrors.CodeOverflow, "generator id %d exceeds max %d", generatorID, MaxGeneratorID)
	}
	if clock == nil {
		clock = defaultClock
	}
	return &Generator{generatorID: generatorID, timestampMs: epochMs, clock: clock}, nil
}

func defaultClock() uint64 {
	return uint64(time.Now().UnixMilli())
}

// Generate returns the next FLUID, spec.md §4.1. Within a process lifetime,
// successive IDs are strictly increasing (spec.md §8 invariant 1).
func (g *Generator) Generate() (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock()

	switch {
	case now > g.timestampMs:
		g.timestampMs = now
		g.sequence = 0
	case now == g.timestampMs:
		g.sequence++
		if g.sequence >= maxSequence {
			// Busy-wait until the clock advances one ms (spec.md §4.1,
			// §5's documented exception to "no blocking syscalls").
			for {
				now = g.clock()
				if now > g.timestampMs {
					break
				}
			}
			g.timestampMs = now
			g.sequence = 0
		}
	default:
		// Clock went backwards; time only ever moves forward in the
		// generator (spec.md §4.1) — reuse timestampMs and advance sequence.
		g.sequence++
		if g.sequence >= maxSequence {
			for {
				now = g.clock()
				if now > g.timestampMs {
					break
				}
			}
			g.timestampMs = now
			g.sequence = 0
		}
	}

	return pack(g.timestampMs, g.generatorID, g.sequence), nil
}

// SaveTimestamp returns the timestamp embedded in the next-to-be-generated
// id, so peer generators may initialize from it (spec.md §4.1).
func (g *Generator) SaveTimestamp() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now := g.clock(); now > g.timestampMs {
		return now
	}
	return g.timestampMs
}

// pack assembles a FLUID per the normative bit layout: high 40 bits
// timestamp, next 14 bits generator id, low 10 bits sequence.
func pack(timestampMs, generatorID, sequence uint64) uint64 {
	return (timestampMs << (generatorBits + sequenceBits)) |
		(generatorID << sequenceBits) |
		sequence
}

// Unpack splits a FLUID back into its components, e.g. for KVS path
// rendering ("job.<dotted-fluid>/") and diagnostics.
func Unpack(id uint64) (timestampMs, generatorID, sequence uint64) {
	sequence = id & (maxSequence - 1)
	generatorID = (id >> sequenceBits) & (1<<generatorBits - 1)
	timestampMs = id >> (generatorBits + sequenceBits)
	return
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Matchtags correlates in-flight RPC requests with their responses on one
// connection, spec.md §6's "matchtag (uint32)" message field.
type Matchtags struct {
	next uint32
}

// Alloc returns the next matchtag for this connection. 0 is reserved for
// unsolicited messages (events), so the sequence starts at 1.
func (m *Matchtags) Alloc() uint32 {
	return atomic.AddUint32(&m.next, 1)
}

// RouteHop is one named hop a message traverses, spec.md §6's "route
// stack (list of named hops)". Each broker adds its own hop id so a
// response can retrace the request's path; ids are generated with uuid
// rather than a sequential counter since hops are appended concurrently
// by independent broker instances with no shared counter.
func RouteHop() string {
	return uuid.NewString()
}

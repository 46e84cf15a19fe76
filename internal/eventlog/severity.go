// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package eventlog

// severityNames is the RFC 5424 0..7 table, restored from
// original_source/src/common/libeventlog/formatter.c (SPEC_FULL.md §12.4);
// spec.md's output "log" row only says "RFC 5424 severity prefix".
var severityNames = [8]string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

// SeverityName returns the RFC 5424 name for level, or "unknown" if level
// is out of the 0..7 range.
func SeverityName(level int) string {
	if level < 0 || level > 7 {
		return "unknown"
	}
	return severityNames[level]
}

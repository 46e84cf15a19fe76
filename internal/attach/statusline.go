// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"fmt"
	"time"

	"golang.org/x/text/width"
)

// statusMessages maps the most recent primary eventlog event name to the
// human-readable word the statusline shows, spec.md §4.9 "Status-line".
var statusMessages = map[string]string{
	"submit":       "submitted",
	"validate":     "validating",
	"depend":       "waiting for dependencies",
	"priority":     "waiting for resources",
	"alloc":        "allocated",
	"prolog-start": "running prolog",
	"start":        "running",
}

// StatusMessage computes the statusline's <message> field from the most
// recently observed primary event name.
func StatusMessage(eventName string) string {
	if msg, ok := statusMessages[eventName]; ok {
		return msg
	}
	return eventName
}

// QueueStoppedSuffix renders the " (<queue> queue stopped)" suffix shown
// while waiting for resources against a stopped queue, spec.md §4.9.
func QueueStoppedSuffix(queue string, stopped bool) string {
	if !stopped || queue == "" {
		return ""
	}
	return fmt.Sprintf(" (%s queue stopped)", queue)
}

// Render paints the one-line "\rflux-job: <jobid> <message> HH:MM:SS\r"
// status, spec.md §4.9. Multi-byte rank/component labels that made their
// way into message (from exec/output log rendering sharing the terminal)
// are narrowed via width.Narrow before any truncation, so east-asian-width
// runes don't throw off terminal column math.
func Render(jobID uint64, message string, now time.Time, maxWidth int) string {
	clock := now.Format("15:04:05")
	line := fmt.Sprintf("flux-job: %d %s %s", jobID, message, clock)
	narrowed := width.Narrow.String(line)
	if maxWidth > 0 {
		runes := []rune(narrowed)
		if len(runes) > maxWidth {
			narrowed = string(runes[:maxWidth])
		}
	}
	return "\r" + narrowed + "\r"
}

// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package fsd parses Flux Standard Duration strings, as used throughout
// policy.limits.duration and policy.jobspec.defaults.system.duration
// (spec.md §3). The grammar is not spelled out in spec.md itself; it is
// supplemented from original_source/src/common/libfluxutil/policy.c
// (SPEC_FULL.md §12.2): a bare number is seconds, and s/m/h/d suffixes
// scale it. An empty string or "0" means unlimited.
package fsd

import (
	"strconv"
	"strings"

	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// Parse converts an FSD string to seconds. "0" and "" both parse to 0,
// which callers interpret as "unlimited" per spec.md's Policy subsection.
func Parse(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	numPart := s
	switch s[len(s)-1] {
	case 's':
		mult, numPart = 1.0, s[:len(s)-1]
	case 'm':
		mult, numPart = 60.0, s[:len(s)-1]
	case 'h':
		mult, numPart = 3600.0, s[:len(s)-1]
	case 'd':
		mult, numPart = 86400.0, s[:len(s)-1]
	}

	if numPart == "" {
		return 0, ferrors.Newf(ferrors.CodeInvalidArgument, "invalid FSD duration %q", s)
	}

	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, ferrors.Newf(ferrors.CodeInvalidArgument, "invalid FSD duration %q: %v", s, err)
	}
	if n < 0 {
		return 0, ferrors.Newf(ferrors.CodeInvalidArgument, "FSD duration %q must not be negative", s)
	}
	return n * mult, nil
}

// Format renders seconds back to an FSD string using the largest unit
// that divides evenly, falling back to a bare second count.
func Format(seconds float64) string {
	if seconds == 0 {
		return "0"
	}
	switch {
	case seconds >= 86400 && int64(seconds)%86400 == 0:
		return strconv.FormatInt(int64(seconds)/86400, 10) + "d"
	case seconds >= 3600 && int64(seconds)%3600 == 0:
		return strconv.FormatInt(int64(seconds)/3600, 10) + "h"
	case seconds >= 60 && int64(seconds)%60 == 0:
		return strconv.FormatInt(int64(seconds)/60, 10) + "m"
	default:
		return strconv.FormatFloat(seconds, 'g', -1, 64) + "s"
	}
}

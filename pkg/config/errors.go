// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package config

import "github.com/flux-framework/flux-core-sub008/pkg/ferrors"

var (
	ErrInvalidBatchTimeout  = ferrors.New(ferrors.CodeInvalidArgument, "batch timeout must be >= 0")
	ErrInvalidBatchCount    = ferrors.New(ferrors.CodeInvalidArgument, "batch count must be >= 0")
	ErrMissingKVSNamespace  = ferrors.New(ferrors.CodeInvalidArgument, "kvs namespace must not be empty")
	ErrMissingWorkerCommand = ferrors.New(ferrors.CodeInvalidArgument, "worker command must not be empty")
	ErrInvalidMaxWorkers    = ferrors.New(ferrors.CodeInvalidArgument, "max workers must be > 0")
	ErrInvalidInputBuffer   = ferrors.New(ferrors.CodeInvalidArgument, "input buffer bytes must be > 0")
)

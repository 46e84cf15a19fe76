// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"encoding/base64"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
)

// DecodeData base64-decodes an output "data" event's ioencode payload,
// spec.md §3's DataContext.
func DecodeData(ctx api.DataContext) ([]byte, error) {
	if ctx.Data == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(ctx.Data)
	if err != nil {
		return nil, ferrors.Newf(ferrors.CodeProtocolError, "decode ioencode data: %v", err)
	}
	return raw, nil
}

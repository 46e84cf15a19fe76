// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package attach

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode_Exited(t *testing.T) {
	// WIFEXITED status for exit code 3: low byte 0, code in next byte.
	status := 3 << 8
	assert.Equal(t, 3, ExitCode(status))
}

func TestExitCode_Signaled(t *testing.T) {
	// SIGTERM = 15, WIFSIGNALED encodes the signal in the low 7 bits.
	status := 15
	assert.Equal(t, 128+15, ExitCode(status))
	assert.Equal(t, "killed by SIGTERM", DescribeWaitStatus(status))
}

func TestSignalName_Unknown(t *testing.T) {
	assert.Equal(t, "signal 200", SignalName(200))
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteReference(t *testing.T) {
	var buf bytes.Buffer
	writeReference(&buf)
	out := buf.String()
	for _, want := range []string{
		"| `network` | string | `https://icp0.io` |",
		"| `expire_after` | string | `5m` |",
		"| `ICSIGN_DATA` |",
		"| `ICSIGN_DEBUG` |",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("reference missing %q", want)
		}
	}
}

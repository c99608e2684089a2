// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package security

import (
	"syscall"
	"testing"
)

func TestHardenDisablesCoreDumps(t *testing.T) {
	if err := Harden(false); err != nil {
		t.Fatalf("Harden(false) error: %v", err)
	}
	var rlimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_CORE, &rlimit); err != nil {
		t.Fatal(err)
	}
	if rlimit.Cur != 0 || rlimit.Max != 0 {
		t.Errorf("RLIMIT_CORE = %+v, want zero", rlimit)
	}
}

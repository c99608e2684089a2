// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package security hardens the process before private key material is loaded.
package security

import (
	"fmt"
	"os"
	"syscall"
)

// Harden disables core dumps and, when lockMemory is set, locks all pages
// in RAM so decrypted identities are never written to swap.
func Harden(lockMemory bool) error {
	if err := DisableCoreDumps(); err != nil {
		return err
	}
	if lockMemory {
		return LockMemory()
	}
	return nil
}

// LockMemory locks all current and future memory pages.
func LockMemory() error {
	if err := syscall.Mlockall(syscall.MCL_CURRENT | syscall.MCL_FUTURE); err != nil {
		return fmt.Errorf("mlockall failed: %w\n\nTo fix this, run:\n  sudo setcap cap_ipc_lock+ep %s\nor set lock_memory: false", err, os.Args[0])
	}
	return nil
}

// DisableCoreDumps sets the core file size limit to zero.
func DisableCoreDumps() error {
	rlimit := syscall.Rlimit{Cur: 0, Max: 0}
	if err := syscall.Setrlimit(syscall.RLIMIT_CORE, &rlimit); err != nil {
		return fmt.Errorf("failed to disable core dumps: %w", err)
	}
	return nil
}

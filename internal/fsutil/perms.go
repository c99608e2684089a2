// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package fsutil provides filesystem helpers for the icsign data directory
// and the message files it writes. Key material uses owner-only permissions
// (0600 files, 0700 dirs); signed messages are world-readable so a relay
// running as another user can pick them up.
package fsutil

import (
	"fmt"
	"os"

	"github.com/facebookgo/atomicfile"
)

// DataDirPerm is the permission mode for the data directory.
const DataDirPerm os.FileMode = 0700

// SecretFilePerm is the permission mode for identity files.
const SecretFilePerm os.FileMode = 0600

// MessageFilePerm is the permission mode for signed message files.
const MessageFilePerm os.FileMode = 0644

// MkdirAll creates a directory and all parents with owner-only permissions.
// Unlike os.MkdirAll, this explicitly sets permissions after creation to
// bypass umask restrictions.
func MkdirAll(path string) error {
	if err := os.MkdirAll(path, DataDirPerm); err != nil {
		return err
	}
	return os.Chmod(path, DataDirPerm)
}

// WriteFile writes data to path atomically: readers see either the old
// contents or the complete new contents, never a partial write.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := atomicfile.New(path, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Abort()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Abort()
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", path, err)
	}
	return nil
}

// WriteSecretFile atomically writes key material with owner-only permissions.
func WriteSecretFile(path string, data []byte) error {
	return WriteFile(path, data, SecretFilePerm)
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package util

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aplane-algo/icsign/internal/crypto"
)

const (
	// PassphraseCommandTimeout bounds one run of the passphrase command.
	PassphraseCommandTimeout = 5 * time.Second

	// maxPassphraseOutputBytes is the maximum stdout size from the passphrase command (8 KB).
	maxPassphraseOutputBytes = 8 * 1024
)

// ErrPassphraseCommand wraps every passphrase command failure.
var ErrPassphraseCommand = errors.New("passphrase_command")

// PassphraseCommand runs an external helper that prints the identity
// passphrase on stdout, for unattended use.
type PassphraseCommand struct {
	Argv []string          // Absolute path of the helper, then its arguments
	Env  map[string]string // The helper's whole environment; nothing is inherited
}

// Enabled reports whether a helper is configured.
func (c *PassphraseCommand) Enabled() bool {
	return c != nil && len(c.Argv) > 0
}

// Passphrase runs the helper and returns its output as a passphrase.
//
// Output contract:
//   - Exactly one trailing newline is stripped (not TrimSpace)
//   - NUL bytes and empty output are rejected
//   - Output prefixed with "base64:" or "hex:" is decoded
//
// The caller must Destroy the returned passphrase.
func (c *PassphraseCommand) Passphrase(ctx context.Context) (*crypto.Passphrase, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, PassphraseCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...) //nolint:gosec // validated above
	cmd.Env = passphraseEnv(c.Env)
	// Run in its own process group so a timeout also kills children (sh -> sleep).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = time.Second
	// stderr is discarded: a misbehaving helper could write secrets there.
	cmd.Stderr = io.Discard

	var stdout bytes.Buffer
	defer func() {
		crypto.ZeroBytes(stdout.Bytes())
		stdout.Reset()
	}()
	lw := &limitedWriter{w: &stdout, remaining: maxPassphraseOutputBytes}
	cmd.Stdout = lw

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timed out after %s", ErrPassphraseCommand, PassphraseCommandTimeout)
		}
		return nil, fmt.Errorf("%w: command failed: %w", ErrPassphraseCommand, err)
	}
	if lw.truncated {
		return nil, fmt.Errorf("%w: stdout exceeded %d bytes", ErrPassphraseCommand, maxPassphraseOutputBytes)
	}

	out := stdout.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
		if n := len(out); n > 0 && out[n-1] == '\r' {
			out = out[:n-1]
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty output", ErrPassphraseCommand)
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return nil, fmt.Errorf("%w: output contains NUL bytes", ErrPassphraseCommand)
	}

	pass, err := decodePassphraseOutput(out)
	if err != nil {
		return nil, err
	}
	return crypto.NewPassphrase(pass), nil
}

// Validate checks that argv[0] is an absolute path to an executable that
// only its owner can modify.
func (c *PassphraseCommand) Validate() error {
	if !c.Enabled() {
		return fmt.Errorf("%w: must be non-empty", ErrPassphraseCommand)
	}
	path := c.Argv[0]
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q must be an absolute path or relative to the data directory", ErrPassphraseCommand, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPassphraseCommand, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrPassphraseCommand, path)
	}
	perm := info.Mode().Perm()
	if perm&0111 == 0 {
		return fmt.Errorf("%w: %s is not executable (mode %04o)", ErrPassphraseCommand, path, perm)
	}
	if perm&0022 != 0 {
		return fmt.Errorf("%w: %s is group or world writable (mode %04o)", ErrPassphraseCommand, path, perm)
	}
	return nil
}

// decodePassphraseOutput handles base64: and hex: prefixed output and
// otherwise copies the raw bytes.
func decodePassphraseOutput(output []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(output, []byte("base64:")):
		encoded := output[len("base64:"):]
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
		n, err := base64.StdEncoding.Decode(decoded, encoded)
		if err != nil {
			crypto.ZeroBytes(decoded)
			return nil, fmt.Errorf("%w: invalid base64 output: %w", ErrPassphraseCommand, err)
		}
		return decoded[:n], nil

	case bytes.HasPrefix(output, []byte("hex:")):
		encoded := output[len("hex:"):]
		decoded := make([]byte, hex.DecodedLen(len(encoded)))
		n, err := hex.Decode(decoded, encoded)
		if err != nil {
			crypto.ZeroBytes(decoded)
			return nil, fmt.Errorf("%w: invalid hex output: %w", ErrPassphraseCommand, err)
		}
		return decoded[:n], nil
	}

	return bytes.Clone(output), nil
}

func passphraseEnv(declared map[string]string) []string {
	env := make([]string, 0, len(declared))
	for k, v := range declared {
		env = append(env, k+"="+v)
	}
	return env
}

// limitedWriter stops writing after a byte limit and records truncation.
type limitedWriter struct {
	w         io.Writer
	remaining int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if lw.remaining <= 0 {
		// Report the full length so the child doesn't see a short write.
		lw.truncated = true
		return len(p), nil
	}
	originalLen := len(p)
	if int64(originalLen) > lw.remaining {
		p = p[:lw.remaining]
		lw.truncated = true
	}
	n, err := lw.w.Write(p)
	lw.remaining -= int64(n)
	if err != nil {
		return n, err
	}
	return originalLen, nil
}

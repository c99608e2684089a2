// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

import (
	"bufio"
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/identity"
)

// stdinReader is a shared reader for non-terminal stdin
var stdinReader *bufio.Reader

var errPassphraseMismatch = errors.New("passphrases do not match")

// readPassword safely reads a password from stdin, handling both terminal and non-terminal inputs.
func readPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd()) // #nosec G115 - file descriptors are small integers
	if term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}

	// Not a terminal - read plaintext line using shared reader
	if stdinReader == nil {
		stdinReader = bufio.NewReader(os.Stdin)
	}
	line, err := stdinReader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, err
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}

// promptPassphrase returns a PassphraseFunc that prompts on w.
func promptPassphrase(w io.Writer, prompt string) identity.PassphraseFunc {
	return func() (*crypto.Passphrase, error) {
		_, _ = fmt.Fprint(w, prompt)
		b, err := readPassword()
		_, _ = fmt.Fprintln(w)
		if err != nil {
			return nil, err
		}
		return crypto.NewPassphrase(b), nil
	}
}

// newPassphrase obtains a passphrase for encrypting an identity. When
// prompting, the passphrase is asked twice and must not be empty.
func (a *app) newPassphrase() (*crypto.Passphrase, error) {
	if a.passphrase != nil {
		return a.passphrase()
	}
	if cmd := a.config.PassphraseCommand(); cmd != nil {
		return cmd.Passphrase(context.Background())
	}

	first, err := promptPassphrase(a.stderr, "New passphrase: ")()
	if err != nil {
		return nil, err
	}
	if len(first.Bytes()) == 0 {
		first.Destroy()
		return nil, errors.New("passphrase must not be empty")
	}
	second, err := promptPassphrase(a.stderr, "Repeat passphrase: ")()
	if err != nil {
		first.Destroy()
		return nil, err
	}
	defer second.Destroy()
	if subtle.ConstantTimeCompare(first.Bytes(), second.Bytes()) != 1 {
		first.Destroy()
		return nil, errPassphraseMismatch
	}
	return first, nil
}

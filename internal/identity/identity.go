// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package identity loads offline signing keys and signs request blobs.
//
// The set of key schemes is closed: secp256k1 and ed25519. Load tries
// secp256k1 first because it is the conventional default for PEM files
// produced by the platform tooling, then falls back to ed25519.
//
// Every identity exposes the DER-encoded public key that goes into the
// envelope's sender_pubkey field and the self-authenticating principal
// derived from it.
package identity

import (
	"errors"
	"fmt"
	"os"

	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/principal"
)

// Scheme identifies a key scheme.
type Scheme string

const (
	SchemeSecp256k1 Scheme = "secp256k1"
	SchemeEd25519   Scheme = "ed25519"
)

var (
	// ErrCorruptKeyMaterial indicates that no supported scheme could parse the key file
	ErrCorruptKeyMaterial = errors.New("corrupt key material: not a secp256k1 or ed25519 PEM identity")

	// ErrUnknownScheme indicates an unsupported scheme name
	ErrUnknownScheme = errors.New("unknown key scheme")

	// ErrPassphraseRequired indicates an encrypted identity was loaded without a passphrase source
	ErrPassphraseRequired = errors.New("identity file is encrypted and no passphrase source was provided")
)

// Identity is a loaded private key able to sign request blobs.
type Identity interface {
	// Scheme returns the key scheme
	Scheme() Scheme

	// Principal returns the self-authenticating principal of the public key
	Principal() principal.Principal

	// PublicKeyDER returns the SubjectPublicKeyInfo DER encoding of the public key
	PublicKeyDER() []byte

	// Sign signs blob using the scheme's canonical rule
	Sign(blob []byte) ([]byte, error)

	// EncodePEM serializes the private key in the format Load accepts
	EncodePEM() ([]byte, error)

	// Zero wipes the private key material. The identity is unusable afterwards.
	Zero()
}

// PassphraseFunc supplies the passphrase of an encrypted identity file.
type PassphraseFunc func() (*crypto.Passphrase, error)

type loader struct {
	scheme Scheme
	load   func([]byte) (Identity, error)
}

// loaders is ordered: the first scheme that parses wins.
var loaders = []loader{
	{SchemeSecp256k1, loadSecp256k1},
	{SchemeEd25519, loadEd25519},
}

// Load parses PEM key material into an Identity.
func Load(pemData []byte) (Identity, error) {
	var errs []error
	for _, l := range loaders {
		id, err := l.load(pemData)
		if err == nil {
			return id, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.scheme, err))
	}
	return nil, fmt.Errorf("%w (%v)", ErrCorruptKeyMaterial, errors.Join(errs...))
}

// LoadFile reads an identity file. Encrypted files are opened with the
// passphrase returned by passphrase; the decrypted PEM is wiped after parsing.
func LoadFile(path string, passphrase PassphraseFunc) (Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}
	defer crypto.ZeroBytes(data)

	if !crypto.IsEncrypted(data) {
		return Load(data)
	}

	if passphrase == nil {
		return nil, ErrPassphraseRequired
	}
	pass, err := passphrase()
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	defer pass.Destroy()

	plain, err := crypto.Decrypt(data, pass.Bytes())
	if err != nil {
		return nil, err
	}
	defer crypto.ZeroBytes(plain)

	return Load(plain)
}

// Generate creates a fresh identity for scheme.
func Generate(scheme Scheme) (Identity, error) {
	switch scheme {
	case SchemeSecp256k1:
		return generateSecp256k1()
	case SchemeEd25519:
		return generateEd25519()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// Verify checks sig over blob against a DER-encoded public key of either scheme.
func Verify(publicKeyDER, blob, sig []byte) bool {
	if pub, ok := ed25519FromDER(publicKeyDER); ok {
		return verifyEd25519(pub, blob, sig)
	}
	if pub, ok := secp256k1FromDER(publicKeyDER); ok {
		return verifySecp256k1(pub, blob, sig)
	}
	return false
}

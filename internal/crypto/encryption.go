// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package crypto protects identity files at rest.
//
// An encrypted identity file is a small JSON envelope holding an Argon2id
// salt, an AES-256-GCM nonce and the sealed PEM. The envelope is
// self-contained: the file and the passphrase are enough to recover the key.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters (OWASP recommended)
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2KeyLen  = 32        // AES-256

	saltLen = 32

	// EnvelopeVersion is the only envelope format this package reads or writes.
	EnvelopeVersion = 2
)

var (
	// ErrWrongPassphrase is returned when the envelope cannot be opened with the given passphrase
	ErrWrongPassphrase = errors.New("incorrect passphrase or corrupted identity file")

	// ErrUnsupportedEnvelope is returned for envelopes with an unknown version
	ErrUnsupportedEnvelope = errors.New("unsupported encryption envelope")
)

// EncryptedIdentity is the on-disk form of an encrypted identity file.
type EncryptedIdentity struct {
	EnvelopeVersion int    `json:"envelope_version"`
	Salt            string `json:"salt"`       // Base64-encoded Argon2id salt
	Nonce           string `json:"nonce"`      // Base64-encoded AES-GCM nonce
	Ciphertext      string `json:"ciphertext"` // Base64-encoded sealed PEM
}

// IsEncrypted reports whether data looks like an encrypted identity envelope.
// Plain PEM files never parse as JSON, so this is unambiguous.
func IsEncrypted(data []byte) bool {
	var env EncryptedIdentity
	return json.Unmarshal(data, &env) == nil && env.EnvelopeVersion > 0
}

// deriveKey derives the AES key from passphrase and salt using Argon2id.
// Caller is responsible for zeroing the returned key.
func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under a passphrase-derived key and returns the JSON envelope.
func Encrypt(plaintext, passphrase []byte) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer ZeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	env := EncryptedIdentity{
		EnvelopeVersion: EnvelopeVersion,
		Salt:            base64.StdEncoding.EncodeToString(salt),
		Nonce:           base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:      base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, nil)),
	}
	return json.MarshalIndent(env, "", "  ")
}

// Decrypt opens an envelope produced by Encrypt.
// The caller owns the returned plaintext and should zero it after use.
func Decrypt(envelopeJSON, passphrase []byte) ([]byte, error) {
	var env EncryptedIdentity
	if err := json.Unmarshal(envelopeJSON, &env); err != nil {
		return nil, fmt.Errorf("failed to parse encrypted identity: %w", err)
	}
	if env.EnvelopeVersion != EnvelopeVersion {
		return nil, fmt.Errorf("%w: envelope_version %d (expected %d)", ErrUnsupportedEnvelope, env.EnvelopeVersion, EnvelopeVersion)
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer ZeroBytes(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrUnsupportedEnvelope, len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plaintext, nil
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package ledger holds the ICP ledger's address and amount types.
//
// AccountIdentifier layout (32 bytes):
//
//	crc32(h) (4 bytes, big endian) ∥ h
//	h = sha224("\x0aaccount-id" ∥ principal ∥ subaccount)
//
// The subaccount is 32 zero bytes when absent. The text form is lowercase hex.
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/aplane-algo/icsign/internal/principal"
)

const (
	// AccountIdentifierLength is the byte length of an account identifier
	AccountIdentifierLength = 32

	// SubaccountLength is the byte length of a subaccount
	SubaccountLength = 32

	accountDomainSeparator = "\x0aaccount-id"
)

var (
	// ErrInvalidHex indicates account identifier text that is not hex
	ErrInvalidHex = errors.New("account identifier is not valid hex")

	// ErrInvalidLength indicates an identifier or subaccount of the wrong size
	ErrInvalidLength = errors.New("invalid length")

	// ErrChecksumMismatch indicates a CRC32 prefix that does not match the hash
	ErrChecksumMismatch = errors.New("account identifier checksum mismatch")
)

// Subaccount disambiguates multiple accounts under one principal.
type Subaccount [SubaccountLength]byte

// AccountIdentifier is the ledger address of (principal, subaccount).
type AccountIdentifier [AccountIdentifierLength]byte

// NewAccountIdentifier derives the account identifier of owner and an optional subaccount.
func NewAccountIdentifier(owner principal.Principal, sub *Subaccount) AccountIdentifier {
	var zero Subaccount
	if sub == nil {
		sub = &zero
	}

	h := sha256.New224()
	h.Write([]byte(accountDomainSeparator))
	h.Write(owner.Bytes())
	h.Write(sub[:])
	digest := h.Sum(nil)

	var id AccountIdentifier
	binary.BigEndian.PutUint32(id[:4], crc32.ChecksumIEEE(digest))
	copy(id[4:], digest)
	return id
}

// ParseAccountIdentifier parses the hex text form and verifies its checksum.
func ParseAccountIdentifier(text string) (AccountIdentifier, error) {
	var id AccountIdentifier
	raw, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	if len(raw) != AccountIdentifierLength {
		return id, fmt.Errorf("%w: account identifier must be %d bytes, got %d", ErrInvalidLength, AccountIdentifierLength, len(raw))
	}
	if binary.BigEndian.Uint32(raw[:4]) != crc32.ChecksumIEEE(raw[4:]) {
		return id, fmt.Errorf("%w: %s", ErrChecksumMismatch, text)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex text form.
func (a AccountIdentifier) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the identifier bytes.
func (a AccountIdentifier) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// ParseSubaccount parses a hex subaccount. Shorter inputs are left-padded
// with zeros, so "01" names subaccount 1.
func ParseSubaccount(text string) (Subaccount, error) {
	var sub Subaccount
	raw, err := hex.DecodeString(text)
	if err != nil {
		return sub, fmt.Errorf("%w: subaccount: %v", ErrInvalidHex, err)
	}
	if len(raw) > SubaccountLength {
		return sub, fmt.Errorf("%w: subaccount must be at most %d bytes, got %d", ErrInvalidLength, SubaccountLength, len(raw))
	}
	copy(sub[SubaccountLength-len(raw):], raw)
	return sub, nil
}

// String returns the lowercase hex form.
func (s Subaccount) String() string {
	return hex.EncodeToString(s[:])
}

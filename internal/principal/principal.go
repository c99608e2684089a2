// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package principal implements Internet Computer principals and their
// textual representation.
//
// The textual form is the lowercase, unpadded base32 encoding of
// crc32(bytes) ∥ bytes, split into dash-separated groups of five characters.
package principal

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	b32 "github.com/multiformats/go-base32"
)

// MaxLength is the maximum number of bytes in a principal.
const MaxLength = 29

// Principal class suffixes.
const (
	selfAuthenticatingTag byte = 0x02
	anonymousTag          byte = 0x04
)

var (
	// ErrInvalidText indicates a malformed textual principal
	ErrInvalidText = errors.New("invalid principal text")

	// ErrChecksum indicates that the embedded CRC32 does not match the bytes
	ErrChecksum = errors.New("principal checksum mismatch")

	// ErrTooLong indicates a principal longer than MaxLength bytes
	ErrTooLong = errors.New("principal too long")
)

var encoding = b32.NewEncodingCI("abcdefghijklmnopqrstuvwxyz234567").WithPadding(b32.NoPadding)

// Principal is the canonical identity of a user or canister.
type Principal struct {
	raw string
}

// ManagementCanister is the principal of the management canister ("aaaaa-aa").
var ManagementCanister = Principal{}

// Anonymous is the principal used by unauthenticated callers ("2vxsx-fae").
var Anonymous = Principal{raw: string([]byte{anonymousTag})}

// FromBytes builds a principal from its raw bytes.
func FromBytes(b []byte) (Principal, error) {
	if len(b) > MaxLength {
		return Principal{}, fmt.Errorf("%w: %d bytes", ErrTooLong, len(b))
	}
	return Principal{raw: string(b)}, nil
}

// MustFromText parses a principal and panics on failure. Intended for constants.
func MustFromText(s string) Principal {
	p, err := FromText(s)
	if err != nil {
		panic(err)
	}
	return p
}

// SelfAuthenticating derives the principal of a DER-encoded public key.
func SelfAuthenticating(derPublicKey []byte) Principal {
	h := sha256.Sum224(derPublicKey)
	raw := make([]byte, 0, len(h)+1)
	raw = append(raw, h[:]...)
	raw = append(raw, selfAuthenticatingTag)
	return Principal{raw: string(raw)}
}

// FromText parses the dash-grouped textual form. The input must be the
// canonical (lowercase, correctly grouped) encoding of the decoded bytes.
func FromText(s string) (Principal, error) {
	compact := strings.ReplaceAll(s, "-", "")
	decoded, err := encoding.DecodeString(compact)
	if err != nil {
		return Principal{}, fmt.Errorf("%w %q: %v", ErrInvalidText, s, err)
	}
	if len(decoded) < 4 {
		return Principal{}, fmt.Errorf("%w %q: too short", ErrInvalidText, s)
	}
	body := decoded[4:]
	if len(body) > MaxLength {
		return Principal{}, fmt.Errorf("%w: %d bytes", ErrTooLong, len(body))
	}
	if binary.BigEndian.Uint32(decoded[:4]) != crc32.ChecksumIEEE(body) {
		return Principal{}, fmt.Errorf("%w: %q", ErrChecksum, s)
	}
	p := Principal{raw: string(body)}
	if p.String() != s {
		return Principal{}, fmt.Errorf("%w %q: not in canonical form (expected %q)", ErrInvalidText, s, p.String())
	}
	return p, nil
}

// Bytes returns a copy of the raw principal bytes.
func (p Principal) Bytes() []byte {
	return []byte(p.raw)
}

// Len returns the number of raw bytes.
func (p Principal) Len() int {
	return len(p.raw)
}

// IsManagementCanister reports whether p is the management canister.
func (p Principal) IsManagementCanister() bool {
	return p.raw == ""
}

// IsAnonymous reports whether p is the anonymous principal.
func (p Principal) IsAnonymous() bool {
	return p == Anonymous
}

// IsSelfAuthenticating reports whether p was derived from a public key.
func (p Principal) IsSelfAuthenticating() bool {
	return len(p.raw) == sha256.Size224+1 && p.raw[len(p.raw)-1] == selfAuthenticatingTag
}

// String returns the textual representation.
func (p Principal) String() string {
	raw := []byte(p.raw)
	buf := make([]byte, 4, 4+len(raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE(raw))
	buf = append(buf, raw...)

	encoded := encoding.EncodeToString(buf)
	var sb strings.Builder
	for i := 0; i < len(encoded); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := i + 5
		if end > len(encoded) {
			end = len(encoded)
		}
		sb.WriteString(encoded[i:end])
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := FromText(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package identity

import (
	"bytes"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/principal"
)

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// secp256k1DERPrefix is the SubjectPublicKeyInfo header for a 65-byte uncompressed point.
var secp256k1DERPrefix = []byte{
	0x30, 0x56, 0x30, 0x10, 0x06, 0x07, 0x2a, 0x86, 0x48, 0xce, 0x3d, 0x02, 0x01,
	0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a, 0x03, 0x42, 0x00,
}

// ecPrivateKey is the SEC 1 (RFC 5915) structure.
type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

type secp256k1Identity struct {
	priv *secp256k1.PrivateKey
	der  []byte
	id   principal.Principal
}

func newSecp256k1Identity(priv *secp256k1.PrivateKey) *secp256k1Identity {
	der := secp256k1DER(priv.PubKey())
	return &secp256k1Identity{
		priv: priv,
		der:  der,
		id:   principal.SelfAuthenticating(der),
	}
}

func generateSecp256k1() (Identity, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
	}
	return newSecp256k1Identity(priv), nil
}

func loadSecp256k1(pemData []byte) (Identity, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no secp256k1 private key block")
		}

		var scalar []byte
		switch block.Type {
		case "EC PRIVATE KEY":
			key, err := parseSEC1(block.Bytes)
			if err != nil {
				return nil, err
			}
			scalar = key
		case "PRIVATE KEY":
			key, err := parsePKCS8Secp256k1(block.Bytes)
			if err != nil {
				return nil, err
			}
			scalar = key
		default:
			// Skips "EC PARAMETERS" and anything else preceding the key.
			continue
		}

		priv, err := privateKeyFromScalar(scalar)
		crypto.ZeroBytes(scalar)
		if err != nil {
			return nil, err
		}
		return newSecp256k1Identity(priv), nil
	}
}

func parseSEC1(der []byte) ([]byte, error) {
	var key ecPrivateKey
	if _, err := asn1.Unmarshal(der, &key); err != nil {
		return nil, fmt.Errorf("malformed SEC1 private key: %w", err)
	}
	if key.Version != 1 {
		return nil, fmt.Errorf("unsupported SEC1 version %d", key.Version)
	}
	if len(key.NamedCurveOID) > 0 && !key.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("curve %v is not secp256k1", key.NamedCurveOID)
	}
	return key.PrivateKey, nil
}

func parsePKCS8Secp256k1(der []byte) ([]byte, error) {
	var doc pkcs8
	if _, err := asn1.Unmarshal(der, &doc); err != nil {
		return nil, fmt.Errorf("malformed PKCS#8 document: %w", err)
	}
	if !doc.Algo.Algorithm.Equal(oidECPublicKey) {
		return nil, fmt.Errorf("PKCS#8 algorithm %v is not an EC key", doc.Algo.Algorithm)
	}
	var curve asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(doc.Algo.Parameters.FullBytes, &curve); err != nil || !curve.Equal(oidSecp256k1) {
		return nil, errors.New("PKCS#8 EC key is not on secp256k1")
	}
	return parseSEC1(doc.PrivateKey)
}

func privateKeyFromScalar(b []byte) (*secp256k1.PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid secp256k1 private key length: expected 32 bytes, got %d", len(b))
	}
	var k secp256k1.ModNScalar
	if overflow := k.SetByteSlice(b); overflow || k.IsZero() {
		return nil, errors.New("secp256k1 private key out of range")
	}
	k.Zero()
	return secp256k1.PrivKeyFromBytes(b), nil
}

func secp256k1DER(pub *secp256k1.PublicKey) []byte {
	point := pub.SerializeUncompressed()
	der := make([]byte, 0, len(secp256k1DERPrefix)+len(point))
	der = append(der, secp256k1DERPrefix...)
	return append(der, point...)
}

func secp256k1FromDER(der []byte) (*secp256k1.PublicKey, bool) {
	if !bytes.HasPrefix(der, secp256k1DERPrefix) || len(der) != len(secp256k1DERPrefix)+65 {
		return nil, false
	}
	pub, err := secp256k1.ParsePubKey(der[len(secp256k1DERPrefix):])
	if err != nil {
		return nil, false
	}
	return pub, true
}

func verifySecp256k1(pub *secp256k1.PublicKey, blob, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || s.SetByteSlice(sig[32:]) {
		return false
	}
	hash := sha256.Sum256(blob)
	return ecdsa.NewSignature(&r, &s).Verify(hash[:], pub)
}

func (i *secp256k1Identity) Scheme() Scheme {
	return SchemeSecp256k1
}

func (i *secp256k1Identity) Principal() principal.Principal {
	return i.id
}

func (i *secp256k1Identity) PublicKeyDER() []byte {
	return bytes.Clone(i.der)
}

// Sign returns the 64-byte r ∥ s ECDSA signature over sha256(blob).
func (i *secp256k1Identity) Sign(blob []byte) ([]byte, error) {
	if i.priv == nil {
		return nil, errors.New("secp256k1 identity has been zeroed")
	}
	hash := sha256.Sum256(blob)
	// SignCompact prefixes the recovery code; the platform wants bare r ∥ s.
	compact := ecdsa.SignCompact(i.priv, hash[:], false)
	return compact[1:], nil
}

// EncodePEM writes a SEC1 "EC PRIVATE KEY" document naming the curve.
func (i *secp256k1Identity) EncodePEM() ([]byte, error) {
	if i.priv == nil {
		return nil, errors.New("secp256k1 identity has been zeroed")
	}
	scalar := i.priv.Serialize()
	defer crypto.ZeroBytes(scalar)

	point := i.priv.PubKey().SerializeUncompressed()
	doc, err := asn1.Marshal(ecPrivateKey{
		Version:       1,
		PrivateKey:    scalar,
		NamedCurveOID: oidSecp256k1,
		PublicKey:     asn1.BitString{Bytes: point, BitLength: 8 * len(point)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode SEC1 private key: %w", err)
	}
	defer crypto.ZeroBytes(doc)

	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: doc}), nil
}

func (i *secp256k1Identity) Zero() {
	if i.priv != nil {
		i.priv.Zero()
	}
	i.priv = nil
}

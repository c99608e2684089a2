// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/aplane-algo/icsign/internal/crypto"
	"github.com/aplane-algo/icsign/internal/principal"
)

var oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}

// ed25519DERPrefix is the SubjectPublicKeyInfo header for a raw 32-byte key.
var ed25519DERPrefix = []byte{
	0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00,
}

// pkcs8 covers both RFC 5208 (v1) and RFC 5958 (v2, embedded public key) documents.
type pkcs8 struct {
	Version    int
	Algo       pkix.AlgorithmIdentifier
	PrivateKey []byte
	Attributes asn1.RawValue  `asn1:"optional,tag:0"`
	PublicKey  asn1.BitString `asn1:"optional,explicit,tag:1"`
}

type ed25519Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	der  []byte
	id   principal.Principal
}

func newEd25519Identity(priv ed25519.PrivateKey) (*ed25519Identity, error) {
	pub := priv.Public().(ed25519.PublicKey)
	// Reject seeds whose public key is not a canonical point encoding.
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return nil, fmt.Errorf("invalid ed25519 public key: %w", err)
	}
	der := ed25519DER(pub)
	return &ed25519Identity{
		priv: priv,
		pub:  pub,
		der:  der,
		id:   principal.SelfAuthenticating(der),
	}, nil
}

func generateEd25519() (Identity, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return newEd25519Identity(priv)
}

func loadEd25519(pemData []byte) (Identity, error) {
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no PRIVATE KEY block")
		}
		if block.Type != "PRIVATE KEY" {
			continue
		}

		var doc pkcs8
		if _, err := asn1.Unmarshal(block.Bytes, &doc); err != nil {
			return nil, fmt.Errorf("malformed PKCS#8 document: %w", err)
		}
		if !doc.Algo.Algorithm.Equal(oidEd25519) {
			return nil, fmt.Errorf("PKCS#8 algorithm %v is not ed25519", doc.Algo.Algorithm)
		}

		var seed []byte
		if _, err := asn1.Unmarshal(doc.PrivateKey, &seed); err != nil {
			return nil, fmt.Errorf("malformed ed25519 private key: %w", err)
		}
		if len(seed) != ed25519.SeedSize {
			crypto.ZeroBytes(seed)
			return nil, fmt.Errorf("invalid ed25519 seed length: expected %d bytes, got %d", ed25519.SeedSize, len(seed))
		}

		priv := ed25519.NewKeyFromSeed(seed)
		crypto.ZeroBytes(seed)

		id, err := newEd25519Identity(priv)
		if err != nil {
			return nil, err
		}
		if embedded := doc.PublicKey.RightAlign(); len(embedded) > 0 && !bytes.Equal(embedded, id.pub) {
			id.Zero()
			return nil, errors.New("embedded public key does not match private key")
		}
		return id, nil
	}
}

func ed25519DER(pub ed25519.PublicKey) []byte {
	der := make([]byte, 0, len(ed25519DERPrefix)+ed25519.PublicKeySize)
	der = append(der, ed25519DERPrefix...)
	return append(der, pub...)
}

func ed25519FromDER(der []byte) (ed25519.PublicKey, bool) {
	if len(der) != len(ed25519DERPrefix)+ed25519.PublicKeySize || !bytes.HasPrefix(der, ed25519DERPrefix) {
		return nil, false
	}
	return ed25519.PublicKey(der[len(ed25519DERPrefix):]), true
}

func verifyEd25519(pub ed25519.PublicKey, blob, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, blob, sig)
}

func (i *ed25519Identity) Scheme() Scheme {
	return SchemeEd25519
}

func (i *ed25519Identity) Principal() principal.Principal {
	return i.id
}

func (i *ed25519Identity) PublicKeyDER() []byte {
	return bytes.Clone(i.der)
}

func (i *ed25519Identity) Sign(blob []byte) ([]byte, error) {
	if i.priv == nil {
		return nil, errors.New("ed25519 identity has been zeroed")
	}
	return ed25519.Sign(i.priv, blob), nil
}

// EncodePEM writes a PKCS#8 v2 document with the embedded public key.
func (i *ed25519Identity) EncodePEM() ([]byte, error) {
	if i.priv == nil {
		return nil, errors.New("ed25519 identity has been zeroed")
	}
	seed, err := asn1.Marshal(i.priv.Seed())
	if err != nil {
		return nil, fmt.Errorf("failed to encode ed25519 seed: %w", err)
	}
	defer crypto.ZeroBytes(seed)

	doc, err := asn1.Marshal(pkcs8{
		Version:    1,
		Algo:       pkix.AlgorithmIdentifier{Algorithm: oidEd25519},
		PrivateKey: seed,
		PublicKey:  asn1.BitString{Bytes: i.pub, BitLength: 8 * len(i.pub)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#8 document: %w", err)
	}
	defer crypto.ZeroBytes(doc)

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: doc}), nil
}

func (i *ed25519Identity) Zero() {
	crypto.ZeroBytes(i.priv)
	i.priv = nil
}

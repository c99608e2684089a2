// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aplane-algo/icsign/internal/crypto"
)

func generate(t *testing.T, scheme Scheme) Identity {
	t.Helper()
	id, err := Generate(scheme)
	if err != nil {
		t.Fatalf("Generate(%s) error: %v", scheme, err)
	}
	return id
}

func TestGenerateEncodeLoadRoundTrip(t *testing.T) {
	for _, scheme := range []Scheme{SchemeSecp256k1, SchemeEd25519} {
		t.Run(string(scheme), func(t *testing.T) {
			id := generate(t, scheme)
			pemData, err := id.EncodePEM()
			if err != nil {
				t.Fatalf("EncodePEM() error: %v", err)
			}

			loaded, err := Load(pemData)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if loaded.Scheme() != scheme {
				t.Errorf("Scheme() = %s, want %s", loaded.Scheme(), scheme)
			}
			if loaded.Principal() != id.Principal() {
				t.Errorf("Principal() = %s, want %s", loaded.Principal(), id.Principal())
			}
			if !bytes.Equal(loaded.PublicKeyDER(), id.PublicKeyDER()) {
				t.Error("PublicKeyDER() differs after reload")
			}
			if !loaded.Principal().IsSelfAuthenticating() {
				t.Error("principal is not self-authenticating")
			}
		})
	}
}

func TestSignVerifies(t *testing.T) {
	blob := append([]byte("\x0aic-request"), bytes.Repeat([]byte{0x5a}, 32)...)

	for _, scheme := range []Scheme{SchemeSecp256k1, SchemeEd25519} {
		t.Run(string(scheme), func(t *testing.T) {
			id := generate(t, scheme)
			sig, err := id.Sign(blob)
			if err != nil {
				t.Fatalf("Sign() error: %v", err)
			}
			if len(sig) != 64 {
				t.Errorf("signature length = %d, want 64", len(sig))
			}
			if !Verify(id.PublicKeyDER(), blob, sig) {
				t.Fatal("signature does not verify")
			}

			tampered := bytes.Clone(blob)
			tampered[len(tampered)-1] ^= 0x01
			if Verify(id.PublicKeyDER(), tampered, sig) {
				t.Error("signature verified over a different blob")
			}
		})
	}
}

func TestPublicKeyDERLayout(t *testing.T) {
	ed := generate(t, SchemeEd25519)
	if der := ed.PublicKeyDER(); len(der) != 44 || !bytes.HasPrefix(der, ed25519DERPrefix) {
		t.Errorf("ed25519 DER = %x", der)
	}

	k1 := generate(t, SchemeSecp256k1)
	der := k1.PublicKeyDER()
	if len(der) != 88 || !bytes.HasPrefix(der, secp256k1DERPrefix) {
		t.Errorf("secp256k1 DER = %x", der)
	}
	if der[len(secp256k1DERPrefix)] != 0x04 {
		t.Error("secp256k1 DER does not hold an uncompressed point")
	}
}

func TestLoadPKCS8v1Ed25519(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey error: %v", err)
	}
	doc, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey error: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: doc})

	id, err := Load(pemData)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if id.Scheme() != SchemeEd25519 {
		t.Fatalf("Scheme() = %s, want ed25519", id.Scheme())
	}
	want := ed25519DER(priv.Public().(ed25519.PublicKey))
	if !bytes.Equal(id.PublicKeyDER(), want) {
		t.Error("public key does not match the generated key")
	}
}

func TestLoadSkipsECParameters(t *testing.T) {
	id := generate(t, SchemeSecp256k1)
	keyPEM, err := id.EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM() error: %v", err)
	}
	params := pem.EncodeToMemory(&pem.Block{Type: "EC PARAMETERS", Bytes: []byte{0x06, 0x05, 0x2b, 0x81, 0x04, 0x00, 0x0a}})

	loaded, err := Load(append(params, keyPEM...))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Principal() != id.Principal() {
		t.Error("principal changed when EC PARAMETERS block precedes the key")
	}
}

func TestLoadRejectsCorruptMaterial(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not a key")},
		{"wrong block", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1, 2, 3}})},
		{"truncated key", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{0x30, 0x03, 0x02, 0x01}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.data)
			if !errors.Is(err, ErrCorruptKeyMaterial) {
				t.Errorf("Load() error = %v, want ErrCorruptKeyMaterial", err)
			}
		})
	}
}

func TestLoadFileEncrypted(t *testing.T) {
	id := generate(t, SchemeEd25519)
	pemData, err := id.EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM() error: %v", err)
	}
	sealed, err := crypto.Encrypt(pemData, []byte("hunter2"))
	if err != nil {
		t.Fatalf("Encrypt() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, sealed, 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	if _, err := LoadFile(path, nil); !errors.Is(err, ErrPassphraseRequired) {
		t.Errorf("LoadFile(nil passphrase) error = %v, want ErrPassphraseRequired", err)
	}

	wrong := func() (*crypto.Passphrase, error) { return crypto.NewPassphrase([]byte("wrong")), nil }
	if _, err := LoadFile(path, wrong); !errors.Is(err, crypto.ErrWrongPassphrase) {
		t.Errorf("LoadFile(wrong passphrase) error = %v, want ErrWrongPassphrase", err)
	}

	right := func() (*crypto.Passphrase, error) { return crypto.NewPassphrase([]byte("hunter2")), nil }
	loaded, err := LoadFile(path, right)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if loaded.Principal() != id.Principal() {
		t.Errorf("Principal() = %s, want %s", loaded.Principal(), id.Principal())
	}
}

func TestLoadFilePlain(t *testing.T) {
	id := generate(t, SchemeSecp256k1)
	pemData, err := id.EncodePEM()
	if err != nil {
		t.Fatalf("EncodePEM() error: %v", err)
	}
	path := filepath.Join(t.TempDir(), "identity.pem")
	if err := os.WriteFile(path, pemData, 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	loaded, err := LoadFile(path, nil)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if loaded.Principal() != id.Principal() {
		t.Errorf("Principal() = %s, want %s", loaded.Principal(), id.Principal())
	}
}

func TestZeroDisablesSigning(t *testing.T) {
	for _, scheme := range []Scheme{SchemeSecp256k1, SchemeEd25519} {
		id := generate(t, scheme)
		id.Zero()
		if _, err := id.Sign([]byte("x")); err == nil {
			t.Errorf("%s: Sign() after Zero() should fail", scheme)
		}
	}
}

func TestGenerateUnknownScheme(t *testing.T) {
	if _, err := Generate("rsa"); !errors.Is(err, ErrUnknownScheme) {
		t.Errorf("Generate(rsa) error = %v, want ErrUnknownScheme", err)
	}
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package envelope

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/algorand/go-codec/codec"
)

// selfDescribe is CBOR tag 55799, prepended to every encoded envelope.
var selfDescribe = []byte{0xd9, 0xd9, 0xf7}

// requestDomain separates request signatures from other signed blobs.
const requestDomain = "\x0Aic-request"

// ErrMalformedEnvelope indicates CBOR that does not decode as an envelope
var ErrMalformedEnvelope = errors.New("malformed envelope")

var cborHandle = newCborHandle()

func newCborHandle() *codec.CborHandle {
	h := new(codec.CborHandle)
	h.Canonical = true
	return h
}

// Signer produces request signatures. identity.Identity satisfies it.
type Signer interface {
	PublicKeyDER() []byte
	Sign(blob []byte) ([]byte, error)
}

// Envelope is the authenticated request sent to a replica.
type Envelope[C Content] struct {
	Content      C      `codec:"content"`
	SenderPubkey []byte `codec:"sender_pubkey"`
	SenderSig    []byte `codec:"sender_sig"`
}

// Sign hashes content and wraps it in a signed envelope.
func Sign[C Content](signer Signer, content C) (*Envelope[C], RequestID, error) {
	if err := content.Validate(); err != nil {
		return nil, RequestID{}, err
	}
	id := content.RequestID()
	sig, err := signer.Sign(SigningBlob(id))
	if err != nil {
		return nil, id, fmt.Errorf("failed to sign request %s: %w", id, err)
	}
	return &Envelope[C]{
		Content:      content,
		SenderPubkey: signer.PublicKeyDER(),
		SenderSig:    sig,
	}, id, nil
}

// SigningBlob returns the bytes a sender signs for request id.
func SigningBlob(id RequestID) []byte {
	blob := make([]byte, 0, len(requestDomain)+RequestIDLength)
	blob = append(blob, requestDomain...)
	return append(blob, id[:]...)
}

// Marshal encodes the envelope as self-describing CBOR.
func (e *Envelope[C]) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(selfDescribe)
	if err := codec.NewEncoder(&buf, cborHandle).Encode(e); err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalCall decodes a CBOR call or query envelope. The self-describe
// tag is optional.
func UnmarshalCall(data []byte) (*Envelope[*CallContent], error) {
	env, err := unmarshal[*CallContent](data)
	if err != nil {
		return nil, err
	}
	if env.Content == nil {
		return nil, fmt.Errorf("%w: no content", ErrMalformedEnvelope)
	}
	return env, nil
}

// UnmarshalReadState decodes a CBOR read_state envelope.
func UnmarshalReadState(data []byte) (*Envelope[*ReadStateContent], error) {
	env, err := unmarshal[*ReadStateContent](data)
	if err != nil {
		return nil, err
	}
	if env.Content == nil {
		return nil, fmt.Errorf("%w: no content", ErrMalformedEnvelope)
	}
	return env, nil
}

func unmarshal[C Content](data []byte) (*Envelope[C], error) {
	data = bytes.TrimPrefix(data, selfDescribe)
	var env Envelope[C]
	if err := codec.NewDecoderBytes(data, cborHandle).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return &env, nil
}

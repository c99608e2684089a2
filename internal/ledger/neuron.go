// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aplane-algo/icsign/internal/principal"
)

// MaxNeuronNameLength is the maximum neuron name length in bytes.
const MaxNeuronNameLength = 8

const neuronStakeDomain = "neuron-stake"

// ErrNameTooLong indicates a neuron name longer than MaxNeuronNameLength bytes
var ErrNameTooLong = errors.New("neuron name must be 8 bytes or less")

// NeuronNonce converts a neuron name to its staking nonce: the name's bytes,
// left-padded with zeros to 8 bytes, read as a big-endian integer.
func NeuronNonce(name string) (uint64, error) {
	// Byte length, not rune count, so multi-byte names cannot sneak past.
	if len(name) > MaxNeuronNameLength {
		return 0, fmt.Errorf("%w: %q is %d bytes", ErrNameTooLong, name, len(name))
	}
	var buf [8]byte
	copy(buf[8-len(name):], name)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// NeuronStakeSubaccount derives the governance subaccount that stakes a
// neuron for controller under nonce:
//
//	sha256(len("neuron-stake") ∥ "neuron-stake" ∥ controller ∥ nonce_be)
func NeuronStakeSubaccount(controller principal.Principal, nonce uint64) Subaccount {
	h := sha256.New()
	h.Write([]byte{byte(len(neuronStakeDomain))})
	h.Write([]byte(neuronStakeDomain))
	h.Write(controller.Bytes())
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], nonce)
	h.Write(be[:])

	var sub Subaccount
	copy(sub[:], h.Sum(nil))
	return sub
}

// NeuronStakeSubaccountForName combines NeuronNonce and NeuronStakeSubaccount.
func NeuronStakeSubaccountForName(controller principal.Principal, name string) (Subaccount, uint64, error) {
	nonce, err := NeuronNonce(name)
	if err != nil {
		return Subaccount{}, 0, err
	}
	return NeuronStakeSubaccount(controller, nonce), nonce, nil
}

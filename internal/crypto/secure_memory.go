// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package crypto

import (
	"crypto/subtle"
	"runtime"
	"sync"
)

// ZeroBytes securely overwrites a byte slice with zeros
// Uses constant-time operation to prevent compiler optimization
func ZeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	subtle.ConstantTimeCopy(1, b, make([]byte, len(b)))
	runtime.KeepAlive(b)
}

// Passphrase holds a passphrase read from the terminal and wipes it on Destroy.
type Passphrase struct {
	mu   sync.Mutex
	data []byte
}

// NewPassphrase takes ownership of b.
func NewPassphrase(b []byte) *Passphrase {
	return &Passphrase{data: b}
}

// Bytes returns the underlying bytes; they are only valid until Destroy.
func (p *Passphrase) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data
}

// Destroy zeros the passphrase. Safe to call more than once.
func (p *Passphrase) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	ZeroBytes(p.data)
	p.data = nil
}

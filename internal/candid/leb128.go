// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package candid

import (
	"fmt"
	"math/big"
)

var big0x7f = big.NewInt(0x7f)

// AppendUleb128 appends the unsigned LEB128 encoding of n.
func AppendUleb128(buf []byte, n uint64) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// AppendSleb128 appends the signed LEB128 encoding of n.
func AppendSleb128(buf []byte, n int64) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if (n == 0 && b&0x40 == 0) || (n == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func appendBigUleb128(buf []byte, n *big.Int) []byte {
	if n.IsUint64() {
		return AppendUleb128(buf, n.Uint64())
	}
	v := new(big.Int).Set(n)
	low := new(big.Int)
	for {
		low.And(v, big0x7f)
		v.Rsh(v, 7)
		b := byte(low.Uint64())
		if v.Sign() == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func appendBigSleb128(buf []byte, n *big.Int) []byte {
	if n.IsInt64() {
		return AppendSleb128(buf, n.Int64())
	}
	v := new(big.Int).Set(n)
	low := new(big.Int)
	minusOne := big.NewInt(-1)
	for {
		// And on a negative big.Int uses two's complement semantics.
		low.And(v, big0x7f)
		v.Rsh(v, 7)
		b := byte(low.Uint64())
		if (v.Sign() == 0 && b&0x40 == 0) || (v.Cmp(minusOne) == 0 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// reader walks a Candid message with bounds checks.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) remaining() int {
	return len(r.data) - r.pos
}

func (r *reader) byte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("%w: unexpected end of input at offset %d", ErrDecode, r.pos)
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || n > r.remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrDecode, n, r.pos, r.remaining())
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) uleb() (uint64, error) {
	var n uint64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		if shift == 63 && b > 1 {
			return 0, fmt.Errorf("%w: LEB128 overflows 64 bits", ErrDecode)
		}
		n |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, nil
		}
		shift += 7
		if shift > 63 {
			return 0, fmt.Errorf("%w: LEB128 overflows 64 bits", ErrDecode)
		}
	}
}

func (r *reader) sleb() (int64, error) {
	var n int64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		if shift > 63 {
			return 0, fmt.Errorf("%w: SLEB128 overflows 64 bits", ErrDecode)
		}
		n |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				n |= -1 << shift
			}
			return n, nil
		}
	}
}

func (r *reader) bigUleb() (*big.Int, error) {
	n := new(big.Int)
	chunk := new(big.Int)
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		chunk.SetUint64(uint64(b & 0x7f))
		n.Or(n, chunk.Lsh(chunk, shift))
		if b&0x80 == 0 {
			return n, nil
		}
		shift += 7
	}
}

func (r *reader) bigSleb() (*big.Int, error) {
	n := new(big.Int)
	chunk := new(big.Int)
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return nil, err
		}
		chunk.SetUint64(uint64(b & 0x7f))
		n.Or(n, chunk.Lsh(chunk, shift))
		shift += 7
		if b&0x80 == 0 {
			if b&0x40 != 0 {
				n.Sub(n, new(big.Int).Lsh(big.NewInt(1), shift))
			}
			return n, nil
		}
	}
}

// length reads a uleb count and rejects values that cannot fit in the
// remaining input, given each element occupies at least minSize bytes.
func (r *reader) length(minSize int) (int, error) {
	n, err := r.uleb()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && n > uint64(r.remaining()/minSize) {
		return 0, fmt.Errorf("%w: length %d exceeds remaining input", ErrDecode, n)
	}
	if n > 1<<31 {
		return 0, fmt.Errorf("%w: length %d too large", ErrDecode, n)
	}
	return int(n), nil
}

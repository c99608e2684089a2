// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package envelope

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
)

// hashOfMap implements the representation-independent hash: each field
// contributes sha256(key) ∥ hash(value); the pairs are sorted bytewise,
// concatenated and hashed.
func hashOfMap(fields map[string]any) RequestID {
	pairs := make([][]byte, 0, len(fields))
	for k, v := range fields {
		kh := sha256.Sum256([]byte(k))
		vh := hashOfValue(v)
		pairs = append(pairs, append(kh[:], vh[:]...))
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i], pairs[j]) < 0 })

	h := sha256.New()
	for _, p := range pairs {
		h.Write(p)
	}
	var id RequestID
	copy(id[:], h.Sum(nil))
	return id
}

func hashOfValue(v any) [32]byte {
	switch x := v.(type) {
	case []byte:
		return sha256.Sum256(x)
	case string:
		return sha256.Sum256([]byte(x))
	case uint64:
		return sha256.Sum256(leb128(x))
	case []any:
		h := sha256.New()
		for _, e := range x {
			eh := hashOfValue(e)
			h.Write(eh[:])
		}
		var out [32]byte
		copy(out[:], h.Sum(nil))
		return out
	case map[string]any:
		return hashOfMap(x)
	}
	panic(fmt.Sprintf("envelope: cannot hash %T", v))
}

func leb128(n uint64) []byte {
	var buf []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package ledger

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// E8sPerICP is the number of e8s in one ICP
	E8sPerICP uint64 = 100_000_000

	// Decimals is the number of fractional digits of an ICP amount
	Decimals = 8
)

// DefaultTransactionFee is the ledger's fixed transfer fee.
var DefaultTransactionFee = Tokens{E8s: 10_000}

var (
	// ErrInvalidAmount indicates a malformed or out-of-range token amount
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidMemo indicates a memo that is not a non-negative whole number
	ErrInvalidMemo = errors.New("memo must be a non negative whole number")
)

// Tokens is an ICP amount in e8s.
type Tokens struct {
	E8s uint64
}

// ParseTokens parses a decimal ICP amount such as "1", "0.5" or "100.012".
// At most eight fractional digits are allowed.
func ParseTokens(s string) (Tokens, error) {
	if !isPlainDecimal(s) {
		return Tokens{}, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}

	e8s := d.Shift(Decimals)
	if !e8s.IsInteger() {
		return Tokens{}, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, Decimals)
	}
	n := e8s.BigInt()
	if !n.IsUint64() {
		return Tokens{}, fmt.Errorf("%w: %q is too large", ErrInvalidAmount, s)
	}
	return Tokens{E8s: n.Uint64()}, nil
}

// isPlainDecimal accepts digits with at most one dot, rejecting signs and exponents.
func isPlainDecimal(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}

// TokensFromParts adds whole ICP and e8s, failing on overflow.
func TokensFromParts(icp, e8s uint64) (Tokens, error) {
	if icp > math.MaxUint64/E8sPerICP {
		return Tokens{}, fmt.Errorf("%w: %d ICP is too large", ErrInvalidAmount, icp)
	}
	whole := icp * E8sPerICP
	if e8s > math.MaxUint64-whole {
		return Tokens{}, fmt.Errorf("%w: could not add %d ICP and %d e8s", ErrInvalidAmount, icp, e8s)
	}
	return Tokens{E8s: whole + e8s}, nil
}

// ParseWholeNumber parses a non-negative integer argument such as --icp or --e8s.
func ParseWholeNumber(s string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q must be a non negative whole number", ErrInvalidAmount, s)
	}
	return n, nil
}

// ParseMemo parses a transfer memo. An empty string means memo 0.
func ParseMemo(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMemo, s)
	}
	return n, nil
}

// String formats the amount with eight fractional digits, e.g. "1.50000000".
func (t Tokens) String() string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(t.E8s), -Decimals).StringFixed(Decimals)
}

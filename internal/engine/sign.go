// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

// Generic canister call signing

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aplane-algo/icsign/internal/candid"
	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/transport"
)

// Argument types accepted by SignParams.ArgType.
const (
	ArgTypeIDL = "idl"
	ArgTypeRaw = "raw"
)

// SignParams contains parameters for signing one canister call.
type SignParams struct {
	Canister string // Canister id text
	Method   string

	Argument    string // Candid text, or hex when ArgType is raw; empty means no argument
	HasArgument bool   // Distinguishes an empty argument from none
	ArgType     string // "idl" (default) or "raw"
	Random      string // YAML random-argument config; mutually exclusive with Argument
	UseRandom   bool   // Generate a random argument (Random may be empty for defaults)

	Query  bool
	Update bool

	ExpireAfter time.Duration
}

// Sign builds the call argument and signs the call.
func (e *Engine) Sign(ctx context.Context, p SignParams) (*envelope.SignedMessage, error) {
	canister, err := principal.FromText(p.Canister)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidCanister, p.Canister, err)
	}
	if p.Query && p.Update {
		return nil, transport.ErrConflictingCallKind
	}

	sig := e.Transport.Signature(ctx, canister, p.Method)
	arg, err := buildArgument(p, sig)
	if err != nil {
		return nil, err
	}

	return e.Transport.Sign(ctx, transport.CallRequest{
		CanisterID:  canister,
		Method:      p.Method,
		Arg:         arg,
		Query:       p.Query,
		Update:      p.Update,
		ExpireAfter: e.expireAfter(p.ExpireAfter),
		Signature:   sig,
		Resolved:    true,
	})
}

// buildArgument encodes the call argument from text, hex or random
// generation. sig types the argument when known.
func buildArgument(p SignParams, sig *candid.FuncType) ([]byte, error) {
	if p.HasArgument && p.UseRandom {
		return nil, ErrConflictingArgument
	}
	argType := strings.ToLower(p.ArgType)
	if argType != "" && !p.HasArgument {
		return nil, ErrArgTypeWithoutArgument
	}

	var types []*candid.Type
	if sig != nil {
		types = sig.Args
	}

	switch {
	case p.HasArgument:
		switch argType {
		case "", ArgTypeIDL:
			arg, err := candid.EncodeText(p.Argument, types)
			if err != nil {
				return nil, fmt.Errorf("invalid argument: %w", err)
			}
			return arg, nil
		case ArgTypeRaw:
			arg, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(p.Argument), "0x"))
			if err != nil {
				return nil, fmt.Errorf("invalid raw argument: %w", err)
			}
			return arg, nil
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidArgType, p.ArgType)
		}

	case p.UseRandom:
		if sig == nil {
			return nil, fmt.Errorf("%w: cannot generate a random argument for %s", ErrNoSignature, p.Method)
		}
		cfg, err := candid.ParseRandomConfig(p.Random)
		if err != nil {
			return nil, err
		}
		return candid.RandomArgs(types, cfg)

	default:
		return candid.EmptyArgs(), nil
	}
}

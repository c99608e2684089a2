// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package transport signs canister calls instead of sending them. A call
// goes through the same steps an online agent would take (method kind
// resolution, effective canister routing, expiry, request id, signature)
// and ends as a SignedMessage for a relay to submit later.
package transport

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	"github.com/filecoin-project/go-clock"

	"github.com/aplane-algo/icsign/internal/candid"
	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/mgmt"
	"github.com/aplane-algo/icsign/internal/principal"
	"github.com/aplane-algo/icsign/internal/util"
)

// DefaultNetwork is the replica URL recorded in messages when none is configured.
const DefaultNetwork = "https://icp0.io"

// nonceLength is the size of the random nonce carried by update calls.
const nonceLength = 8

// Identity signs requests on behalf of its principal.
type Identity interface {
	envelope.Signer
	Principal() principal.Principal
}

// MethodLookup finds the declared signature of a canister method.
// It returns (nil, nil) when the method is unknown.
type MethodLookup interface {
	LookupMethod(ctx context.Context, canister principal.Principal, method string) (*candid.FuncType, error)
}

// TargetResolver maps a call to the canister whose subnet must receive it.
type TargetResolver interface {
	Resolve(canister principal.Principal, method string, arg []byte) (principal.Principal, error)
}

// CallRequest describes one canister call to sign.
type CallRequest struct {
	CanisterID principal.Principal
	Method     string
	Arg        []byte

	// Query and Update force the call kind. At most one may be set.
	Query  bool
	Update bool

	// ExpireAfter overrides the transport's validity window when positive.
	ExpireAfter time.Duration

	// Signature is the method signature the caller already looked up, which
	// may be nil for an unknown method. It is only used when Resolved is set;
	// otherwise Sign looks the method up itself.
	Signature *candid.FuncType
	Resolved  bool
}

// Transport captures calls as signed messages.
type Transport struct {
	identity    Identity
	clock       clock.Clock
	network     string
	lookup      MethodLookup
	resolver    TargetResolver
	expireAfter time.Duration
	nonces      io.Reader
}

// Option is a functional option for configuring a Transport
type Option func(*Transport) error

// New creates a Transport signing with id.
func New(id Identity, opts ...Option) (*Transport, error) {
	if id == nil {
		return nil, ErrNoIdentity
	}
	t := &Transport{
		identity:    id,
		clock:       clock.New(),
		network:     DefaultNetwork,
		resolver:    mgmt.Resolver{},
		expireAfter: DefaultExpireAfter,
		nonces:      rand.Reader,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WithClock sets the clock used for creation times
func WithClock(c clock.Clock) Option {
	return func(t *Transport) error {
		t.clock = c
		return nil
	}
}

// WithNetwork sets the network URL recorded in messages
func WithNetwork(network string) Option {
	return func(t *Transport) error {
		if network == "" {
			return fmt.Errorf("empty network")
		}
		t.network = network
		return nil
	}
}

// WithLookup sets the method signature lookup
func WithLookup(l MethodLookup) Option {
	return func(t *Transport) error {
		t.lookup = l
		return nil
	}
}

// WithResolver sets the effective canister resolver
func WithResolver(r TargetResolver) Option {
	return func(t *Transport) error {
		t.resolver = r
		return nil
	}
}

// WithExpireAfter sets the default validity window
func WithExpireAfter(d time.Duration) Option {
	return func(t *Transport) error {
		if d <= 0 {
			return fmt.Errorf("%w: %s is not positive", ErrInvalidDuration, d)
		}
		t.expireAfter = d
		return nil
	}
}

// WithNonceSource sets the reader update nonces are drawn from
func WithNonceSource(r io.Reader) Option {
	return func(t *Transport) error {
		t.nonces = r
		return nil
	}
}

// Sender returns the principal messages are signed as.
func (t *Transport) Sender() principal.Principal {
	return t.identity.Principal()
}

// Network returns the network URL recorded in messages.
func (t *Transport) Network() string {
	return t.network
}

// Signature looks up the declared signature of a method. Lookup failures
// are logged and reported as an unknown method.
func (t *Transport) Signature(ctx context.Context, canister principal.Principal, method string) *candid.FuncType {
	if t.lookup == nil {
		return nil
	}
	sig, err := t.lookup.LookupMethod(ctx, canister, method)
	if err != nil {
		util.Debug("method lookup failed, treating method as unknown",
			"canister", canister.String(), "method", method, "error", err)
		return nil
	}
	return sig
}

// Sign signs req as a query or update call and returns the message.
func (t *Transport) Sign(ctx context.Context, req CallRequest) (*envelope.SignedMessage, error) {
	sig := req.Signature
	if !req.Resolved {
		sig = t.Signature(ctx, req.CanisterID, req.Method)
	}
	query, err := ResolveCallKind(sig, req.Query, req.Update)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Method, err)
	}

	effective := req.CanisterID
	if t.resolver != nil {
		if effective, err = t.resolver.Resolve(req.CanisterID, req.Method, req.Arg); err != nil {
			return nil, err
		}
	}

	creation, expiration, err := t.window(req.ExpireAfter)
	if err != nil {
		return nil, err
	}

	requestType := envelope.RequestTypeQuery
	callType := envelope.CallTypeQuery
	var nonce []byte
	if !query {
		requestType = envelope.RequestTypeCall
		callType = envelope.CallTypeUpdate
		nonce = make([]byte, nonceLength)
		if _, err := io.ReadFull(t.nonces, nonce); err != nil {
			return nil, fmt.Errorf("failed to generate nonce: %w", err)
		}
	}

	content := envelope.NewCallContent(requestType, t.Sender(), req.CanisterID, req.Method, req.Arg, expiration, nonce)
	env, reqID, err := envelope.Sign(t.identity, content)
	if err != nil {
		return nil, err
	}
	data, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	msg := &envelope.SignedMessage{
		Version:             envelope.MessageVersion,
		Creation:            creation,
		Expiration:          expiration,
		Network:             t.network,
		CallType:            callType,
		Sender:              t.Sender().String(),
		CanisterID:          req.CanisterID.String(),
		EffectiveCanisterID: effective.String(),
		MethodName:          req.Method,
		Arg:                 content.Arg,
		Content:             data,
	}
	if !query {
		msg.RequestID = &reqID
	}

	util.Debug("signed call",
		"call_type", callType, "canister", msg.CanisterID, "method", req.Method,
		"effective_canister", msg.EffectiveCanisterID, "expiration", expiration.Format(time.RFC3339))
	return msg, nil
}

// SignRequestStatus signs a read_state request polling the status of
// requestID on canister. A non-positive expireAfter uses the default window.
func (t *Transport) SignRequestStatus(canister principal.Principal, requestID envelope.RequestID, expireAfter time.Duration) (*envelope.RequestStatusMessage, error) {
	creation, expiration, err := t.window(expireAfter)
	if err != nil {
		return nil, err
	}

	content := envelope.NewRequestStatusContent(t.Sender(), requestID, expiration)
	env, _, err := envelope.Sign(t.identity, content)
	if err != nil {
		return nil, err
	}
	data, err := env.Marshal()
	if err != nil {
		return nil, err
	}

	return &envelope.RequestStatusMessage{
		Version:    envelope.MessageVersion,
		Creation:   creation,
		Expiration: expiration,
		Network:    t.network,
		Sender:     t.Sender().String(),
		CanisterID: canister.String(),
		RequestID:  requestID,
		Content:    data,
	}, nil
}

// window returns the creation and expiration times of a new message.
func (t *Transport) window(expireAfter time.Duration) (time.Time, time.Time, error) {
	if expireAfter <= 0 {
		expireAfter = t.expireAfter
	}
	creation := t.clock.Now().UTC()
	expiration, err := expirationFor(creation, expireAfter)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return creation, expiration, nil
}

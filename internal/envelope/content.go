// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package envelope builds and signs Internet Computer HTTP request
// envelopes, and carries them in the portable JSON message formats
// produced by the signer.
package envelope

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/aplane-algo/icsign/internal/principal"
)

// Request types as they appear in request content.
const (
	RequestTypeCall      = "call"
	RequestTypeQuery     = "query"
	RequestTypeReadState = "read_state"
)

// RequestIDLength is the byte length of a request id.
const RequestIDLength = 32

var (
	// ErrInvalidRequestID indicates request id text that is not 32 hex bytes
	ErrInvalidRequestID = errors.New("invalid request id")

	// ErrInvalidContent indicates content missing required fields
	ErrInvalidContent = errors.New("invalid request content")
)

// RequestID identifies a request by the hash of its content.
type RequestID [RequestIDLength]byte

// ParseRequestID parses a hex request id, with or without a 0x prefix.
func ParseRequestID(text string) (RequestID, error) {
	var id RequestID
	if len(text) >= 2 && (text[:2] == "0x" || text[:2] == "0X") {
		text = text[2:]
	}
	raw, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidRequestID, err)
	}
	if len(raw) != RequestIDLength {
		return id, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidRequestID, RequestIDLength, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex form.
func (r RequestID) String() string {
	return hex.EncodeToString(r[:])
}

// MarshalText implements encoding.TextMarshaler.
func (r RequestID) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RequestID) UnmarshalText(text []byte) error {
	id, err := ParseRequestID(string(text))
	if err != nil {
		return err
	}
	*r = id
	return nil
}

// Content is request content that can be hashed and signed.
type Content interface {
	RequestID() RequestID
	Validate() error
}

// CallContent is the content of a call (update) or query request.
// CanisterID and Arg are always encoded, even when empty: the management
// canister's id is the empty byte string.
type CallContent struct {
	RequestType   string `codec:"request_type"`
	Sender        []byte `codec:"sender"`
	IngressExpiry uint64 `codec:"ingress_expiry"`
	CanisterID    []byte `codec:"canister_id"`
	MethodName    string `codec:"method_name"`
	Arg           []byte `codec:"arg"`
	Nonce         []byte `codec:"nonce,omitempty"`
}

// ReadStateContent is the content of a read_state request.
type ReadStateContent struct {
	RequestType   string     `codec:"request_type"`
	Sender        []byte     `codec:"sender"`
	IngressExpiry uint64     `codec:"ingress_expiry"`
	Paths         [][][]byte `codec:"paths"`
}

// NewCallContent builds call or query content. A nil nonce is omitted.
func NewCallContent(requestType string, sender, canister principal.Principal, method string, arg []byte, expiry time.Time, nonce []byte) *CallContent {
	return &CallContent{
		RequestType:   requestType,
		Sender:        append([]byte{}, sender.Bytes()...),
		IngressExpiry: uint64(expiry.UnixNano()),
		CanisterID:    append([]byte{}, canister.Bytes()...),
		MethodName:    method,
		Arg:           append([]byte{}, arg...),
		Nonce:         nonce,
	}
}

// NewRequestStatusContent builds read_state content asking for the status of requestID.
func NewRequestStatusContent(sender principal.Principal, requestID RequestID, expiry time.Time) *ReadStateContent {
	return &ReadStateContent{
		RequestType:   RequestTypeReadState,
		Sender:        append([]byte{}, sender.Bytes()...),
		IngressExpiry: uint64(expiry.UnixNano()),
		Paths:         [][][]byte{{[]byte("request_status"), append([]byte{}, requestID[:]...)}},
	}
}

// RequestID computes the representation-independent hash of the content.
func (c *CallContent) RequestID() RequestID {
	fields := map[string]any{
		"request_type":   c.RequestType,
		"sender":         c.Sender,
		"ingress_expiry": c.IngressExpiry,
		"canister_id":    c.CanisterID,
		"method_name":    c.MethodName,
		"arg":            c.Arg,
	}
	if c.Nonce != nil {
		fields["nonce"] = c.Nonce
	}
	return hashOfMap(fields)
}

// Validate checks the request type and principal lengths.
func (c *CallContent) Validate() error {
	if c.RequestType != RequestTypeCall && c.RequestType != RequestTypeQuery {
		return fmt.Errorf("%w: request type %q is not call or query", ErrInvalidContent, c.RequestType)
	}
	if len(c.Sender) == 0 || len(c.Sender) > principal.MaxLength || len(c.CanisterID) > principal.MaxLength {
		return fmt.Errorf("%w: bad principal length", ErrInvalidContent)
	}
	if c.MethodName == "" {
		return fmt.Errorf("%w: empty method name", ErrInvalidContent)
	}
	return nil
}

// Expiry returns ingress_expiry as a time.
func (c *CallContent) Expiry() time.Time {
	return time.Unix(0, int64(c.IngressExpiry)).UTC()
}

// RequestID computes the representation-independent hash of the content.
func (c *ReadStateContent) RequestID() RequestID {
	paths := make([]any, len(c.Paths))
	for i, path := range c.Paths {
		labels := make([]any, len(path))
		for j, l := range path {
			labels[j] = l
		}
		paths[i] = labels
	}
	return hashOfMap(map[string]any{
		"request_type":   c.RequestType,
		"sender":         c.Sender,
		"ingress_expiry": c.IngressExpiry,
		"paths":          paths,
	})
}

// Validate checks the request type and paths.
func (c *ReadStateContent) Validate() error {
	if c.RequestType != RequestTypeReadState {
		return fmt.Errorf("%w: request type %q is not read_state", ErrInvalidContent, c.RequestType)
	}
	if len(c.Sender) == 0 || len(c.Sender) > principal.MaxLength {
		return fmt.Errorf("%w: bad principal length", ErrInvalidContent)
	}
	if len(c.Paths) == 0 {
		return fmt.Errorf("%w: no paths", ErrInvalidContent)
	}
	return nil
}

// StatusRequestID returns the request id a request_status read asks about.
func (c *ReadStateContent) StatusRequestID() (RequestID, bool) {
	var id RequestID
	for _, path := range c.Paths {
		if len(path) == 2 && bytes.Equal(path[0], []byte("request_status")) && len(path[1]) == RequestIDLength {
			copy(id[:], path[1])
			return id, true
		}
	}
	return id, false
}

// Expiry returns ingress_expiry as a time.
func (c *ReadStateContent) Expiry() time.Time {
	return time.Unix(0, int64(c.IngressExpiry)).UTC()
}

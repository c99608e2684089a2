// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package envelope

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aplane-algo/icsign/internal/identity"
	"github.com/aplane-algo/icsign/internal/principal"
)

// MessageVersion is the version of the JSON message formats.
const MessageVersion = 1

// Call types of a SignedMessage.
const (
	CallTypeQuery  = "query"
	CallTypeUpdate = "update"
)

var (
	// ErrUnsupportedVersion indicates a message with an unknown version field
	ErrUnsupportedVersion = errors.New("unsupported message version")

	// ErrInvalidMessage indicates a message whose fields disagree with its content
	ErrInvalidMessage = errors.New("invalid message")
)

// HexBytes marshals as a lowercase hex string.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*h = raw
	return nil
}

// SignedMessage is a signed call or query, ready for a relay to submit.
type SignedMessage struct {
	Version             int        `json:"version"`
	Creation            time.Time  `json:"creation"`
	Expiration          time.Time  `json:"expiration"`
	Network             string     `json:"network"`
	CallType            string     `json:"call_type"`
	Sender              string     `json:"sender"`
	CanisterID          string     `json:"canister_id"`
	EffectiveCanisterID string     `json:"effective_canister_id"`
	MethodName          string     `json:"method_name"`
	Arg                 HexBytes   `json:"arg"`
	RequestID           *RequestID `json:"request_id,omitempty"`
	Content             HexBytes   `json:"content"`
}

// RequestStatusMessage is a signed read_state request polling one request's status.
type RequestStatusMessage struct {
	Version    int       `json:"version"`
	Creation   time.Time `json:"creation"`
	Expiration time.Time `json:"expiration"`
	Network    string    `json:"network"`
	Sender     string    `json:"sender"`
	CanisterID string    `json:"canister_id"`
	RequestID  RequestID `json:"request_id"`
	Content    HexBytes  `json:"content"`
}

// IsUpdate reports whether the message is an update call.
func (m *SignedMessage) IsUpdate() bool {
	return m.CallType == CallTypeUpdate
}

// JSON returns the indented JSON form written to message files.
func (m *SignedMessage) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// JSON returns the indented JSON form written to message files.
func (m *RequestStatusMessage) JSON() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// ParseSignedMessage decodes and validates a SignedMessage.
func ParseSignedMessage(data []byte) (*SignedMessage, error) {
	var m SignedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ParseRequestStatusMessage decodes and validates a RequestStatusMessage.
func ParseRequestStatusMessage(data []byte) (*RequestStatusMessage, error) {
	var m RequestStatusMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that the message stands on its own: the envelope decodes,
// its signature verifies against the sender, and the summary fields agree
// with the signed content.
func (m *SignedMessage) Validate() error {
	if err := checkHeader(m.Version, m.Creation, m.Expiration); err != nil {
		return err
	}
	env, err := UnmarshalCall(m.Content)
	if err != nil {
		return err
	}
	c := env.Content
	if err := c.Validate(); err != nil {
		return err
	}

	switch m.CallType {
	case CallTypeUpdate:
		if c.RequestType != RequestTypeCall {
			return invalid("call_type update carries %s content", c.RequestType)
		}
		if m.RequestID == nil {
			return invalid("update message has no request_id")
		}
		if *m.RequestID != c.RequestID() {
			return invalid("request_id does not match content")
		}
	case CallTypeQuery:
		if c.RequestType != RequestTypeQuery {
			return invalid("call_type query carries %s content", c.RequestType)
		}
		if m.RequestID != nil {
			return invalid("query message carries a request_id")
		}
	default:
		return invalid("unknown call_type %q", m.CallType)
	}

	if err := checkPrincipal("sender", m.Sender, c.Sender); err != nil {
		return err
	}
	if err := checkPrincipal("canister_id", m.CanisterID, c.CanisterID); err != nil {
		return err
	}
	if _, err := principal.FromText(m.EffectiveCanisterID); err != nil {
		return invalid("effective_canister_id: %v", err)
	}
	if m.MethodName != c.MethodName {
		return invalid("method_name %q does not match content %q", m.MethodName, c.MethodName)
	}
	if !bytes.Equal(m.Arg, c.Arg) {
		return invalid("arg does not match content")
	}
	if c.Expiry().Unix() != m.Expiration.Unix() {
		return invalid("expiration does not match ingress_expiry")
	}
	return verifySender(c.Sender, env.SenderPubkey, env.SenderSig, c.RequestID())
}

// Validate checks the envelope, its signature and the summary fields.
func (m *RequestStatusMessage) Validate() error {
	if err := checkHeader(m.Version, m.Creation, m.Expiration); err != nil {
		return err
	}
	env, err := UnmarshalReadState(m.Content)
	if err != nil {
		return err
	}
	c := env.Content
	if err := c.Validate(); err != nil {
		return err
	}
	if err := checkPrincipal("sender", m.Sender, c.Sender); err != nil {
		return err
	}
	if _, err := principal.FromText(m.CanisterID); err != nil {
		return invalid("canister_id: %v", err)
	}
	polled, ok := c.StatusRequestID()
	if !ok || polled != m.RequestID {
		return invalid("content does not poll request %s", m.RequestID)
	}
	if c.Expiry().Unix() != m.Expiration.Unix() {
		return invalid("expiration does not match ingress_expiry")
	}
	return verifySender(c.Sender, env.SenderPubkey, env.SenderSig, c.RequestID())
}

func checkHeader(version int, creation, expiration time.Time) error {
	if version != MessageVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	if !expiration.After(creation) {
		return invalid("expiration %s is not after creation %s", expiration.Format(time.RFC3339), creation.Format(time.RFC3339))
	}
	return nil
}

func checkPrincipal(field, text string, raw []byte) error {
	p, err := principal.FromText(text)
	if err != nil {
		return invalid("%s: %v", field, err)
	}
	if !bytes.Equal(p.Bytes(), raw) {
		return invalid("%s %s does not match content", field, text)
	}
	return nil
}

func verifySender(sender, pubkey, sig []byte, id RequestID) error {
	if !bytes.Equal(principal.SelfAuthenticating(pubkey).Bytes(), sender) {
		return invalid("sender is not derived from sender_pubkey")
	}
	if !identity.Verify(pubkey, SigningBlob(id), sig) {
		return invalid("signature does not verify")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMessage, fmt.Sprintf(format, args...))
}

// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package engine

import (
	"bytes"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/aplane-algo/icsign/internal/envelope"
	"github.com/aplane-algo/icsign/internal/ledger"
)

// TransferBundle is a signed transfer together with the read_state request
// that polls its outcome.
type TransferBundle struct {
	Ingress       *envelope.SignedMessage
	RequestStatus *envelope.RequestStatusMessage

	// Args are the decoded transfer arguments
	Args ledger.SendArgs

	doc []byte
}

// NewTransferBundle merges the two messages into one document:
// {"ingress": ..., "request_status": ...}.
func NewTransferBundle(ingress *envelope.SignedMessage, status *envelope.RequestStatusMessage) (*TransferBundle, error) {
	if ingress.RequestID == nil || *ingress.RequestID != status.RequestID {
		return nil, fmt.Errorf("%w: request status does not poll the transfer", ErrInvalidBundle)
	}

	ingressJSON, err := ingress.JSON()
	if err != nil {
		return nil, err
	}
	statusJSON, err := status.JSON()
	if err != nil {
		return nil, err
	}

	doc, err := sjson.SetRawBytes([]byte(`{}`), "ingress", ingressJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble bundle: %w", err)
	}
	doc, err = sjson.SetRawBytes(doc, "request_status", statusJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble bundle: %w", err)
	}

	return &TransferBundle{Ingress: ingress, RequestStatus: status, doc: bytes.TrimSpace(pretty.Pretty(doc))}, nil
}

// JSON returns the bundle document.
func (b *TransferBundle) JSON() ([]byte, error) {
	return b.doc, nil
}

// ParseTransferBundle splits a bundle document and validates both messages
// and their link.
func ParseTransferBundle(data []byte) (*TransferBundle, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: not JSON", ErrInvalidBundle)
	}
	ingressRaw := gjson.GetBytes(data, "ingress")
	statusRaw := gjson.GetBytes(data, "request_status")
	if !ingressRaw.IsObject() || !statusRaw.IsObject() {
		return nil, fmt.Errorf("%w: ingress and request_status objects are required", ErrInvalidBundle)
	}

	ingress, err := envelope.ParseSignedMessage([]byte(ingressRaw.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: ingress: %w", ErrInvalidBundle, err)
	}
	if !ingress.IsUpdate() {
		return nil, fmt.Errorf("%w: ingress is not an update call", ErrInvalidBundle)
	}
	status, err := envelope.ParseRequestStatusMessage([]byte(statusRaw.Raw))
	if err != nil {
		return nil, fmt.Errorf("%w: request_status: %w", ErrInvalidBundle, err)
	}
	if status.Sender != ingress.Sender {
		return nil, fmt.Errorf("%w: messages have different senders", ErrInvalidBundle)
	}

	bundle, err := NewTransferBundle(ingress, status)
	if err != nil {
		return nil, err
	}
	if ingress.MethodName == ledger.SendMethod {
		if bundle.Args, err = ledger.DecodeSendArgs(ingress.Arg); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
		}
	}
	return bundle, nil
}

// Package erp defines the contract with the external accounting system
// and provides the HTTP client implementation used in production.
//
// The engine never talks HTTP directly: it posts assembled payloads
// through the Client interface, so tests substitute a fake and the sync
// transition stays deterministic.
package erp

import (
	"context"
	"errors"
	"fmt"
)

// PostRequest is one invoice payload handed to the accounting system.
type PostRequest struct {
	InvoiceID      string `json:"invoice_id"`
	OrganizationID int64  `json:"organization_id"`

	// IdempotencyKey is derived deterministically from the invoice ID so
	// the accounting system can de-duplicate retries on its side.
	IdempotencyKey string `json:"idempotency_key"`

	// Fields maps destination-schema field names to final values.
	Fields map[string]string `json:"fields"`
}

// PostResult is a successful posting.
type PostResult struct {
	// ExternalID is the accounting system's record identifier.
	ExternalID string `json:"external_id"`
}

// Client posts resolved invoice payloads to the accounting system.
type Client interface {
	// PostInvoice submits one payload. A structured rejection is returned
	// as a *RejectionError; transport failures are returned verbatim.
	PostInvoice(ctx context.Context, req PostRequest) (PostResult, error)
}

// RejectionError is a structured rejection from the accounting system.
type RejectionError struct {
	// Code is the system's rejection category, e.g. "validation",
	// "auth", "duplicate".
	Code string

	// Message is the raw rejection detail, preserved verbatim for
	// operator display.
	Message string

	// Retriable reports whether re-posting the same payload can succeed
	// without a data correction.
	Retriable bool

	// HTTPStatus is the transport status when the rejection arrived
	// over HTTP, zero otherwise.
	HTTPStatus int
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("erp rejected (%s, http %d): %s", e.Code, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("erp rejected (%s): %s", e.Code, e.Message)
}

// Retriable classifies a PostInvoice error. Structured rejections carry
// their own classification; everything else (network failure, timeout,
// cancellation) is treated as transient and retriable.
func Retriable(err error) bool {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Retriable
	}
	return true
}

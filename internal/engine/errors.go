package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// PipelineError represents a failure detected before the accounting
// system is contacted: the invoice's own data or configuration is not
// sufficient to assemble a payload.
//
// Pipeline errors never change the invoice status. The invoice stays
// where it was (typically APPROVED) with the error recorded, so an
// operator can fix the profile or the extracted fields and retry.
type PipelineError struct {
	// Code identifies the failure category.
	Code PipelineErrorCode

	// Message is a human-readable description.
	Message string

	// InvoiceID identifies the affected invoice, when known.
	InvoiceID string

	// Targets lists the unresolved required destination fields, for
	// INCOMPLETE_MAPPING errors. All of them are reported at once so
	// the operator sees the full gap, not just the first rule that hit it.
	Targets []string
}

// PipelineErrorCode categorizes pipeline errors.
type PipelineErrorCode string

const (
	// ErrCodeIncompleteMapping indicates one or more required destination
	// fields resolved to nothing.
	ErrCodeIncompleteMapping PipelineErrorCode = "INCOMPLETE_MAPPING"

	// ErrCodeNoProfile indicates no mapping profile could be selected
	// for the invoice's organization and vendor.
	ErrCodeNoProfile PipelineErrorCode = "NO_PROFILE"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if len(e.Targets) > 0 {
		return fmt.Sprintf("%s: %s (targets: %s)", e.Code, e.Message, strings.Join(e.Targets, ", "))
	}
	if e.InvoiceID != "" {
		return fmt.Sprintf("%s: %s (invoice=%s)", e.Code, e.Message, e.InvoiceID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsIncompleteMapping returns true if the error is an incomplete-mapping
// pipeline error. Uses errors.As to handle wrapped errors.
func IsIncompleteMapping(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeIncompleteMapping
	}
	return false
}

// IsNoProfile returns true if the error reports that profile selection
// found nothing. Uses errors.As to handle wrapped errors.
func IsNoProfile(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeNoProfile
	}
	return false
}

// NewIncompleteMappingError creates a PipelineError listing every
// required target that failed to resolve.
func NewIncompleteMappingError(invoiceID string, targets []string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeIncompleteMapping,
		Message:   "required destination fields unresolved",
		InvoiceID: invoiceID,
		Targets:   targets,
	}
}

// NewNoProfileError creates a PipelineError for failed profile selection.
func NewNoProfileError(invoiceID string) *PipelineError {
	return &PipelineError{
		Code:      ErrCodeNoProfile,
		Message:   "no mapping profile matches this invoice",
		InvoiceID: invoiceID,
	}
}

// TransitionError reports a lifecycle transition the state machine does
// not allow, e.g. syncing an invoice that was never approved.
type TransitionError struct {
	InvoiceID string
	From      mapping.Status
	To        mapping.Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (invoice=%s)", e.From, e.To, e.InvoiceID)
}

// IsTransitionError returns true if the error is a lifecycle transition
// rejection. Uses errors.As to handle wrapped errors.
func IsTransitionError(err error) bool {
	var te *TransitionError
	return errors.As(err, &te)
}

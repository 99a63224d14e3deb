package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// transitions is the invoice lifecycle as data: for each status, the
// set of statuses it may move to. ARCHIVED is reachable from every
// non-terminal status and is handled separately in CanTransition.
var transitions = map[mapping.Status][]mapping.Status{
	mapping.StatusPending:     {mapping.StatusUnderReview},
	mapping.StatusUnderReview: {mapping.StatusApproved, mapping.StatusRejected},
	mapping.StatusApproved:    {mapping.StatusSynced, mapping.StatusSyncFailed},
	mapping.StatusSyncFailed:  {mapping.StatusSynced, mapping.StatusSyncFailed},
	mapping.StatusSynced:      {},
	mapping.StatusRejected:    {},
	mapping.StatusArchived:    {},
}

// CanTransition reports whether the lifecycle allows moving from one
// status to another.
func CanTransition(from, to mapping.Status) bool {
	if to == mapping.StatusArchived {
		return !from.Terminal() && from != mapping.StatusArchived
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves an invoice to a new lifecycle status, validating the
// move against the transition table first. Invalid moves return a
// *TransitionError and leave the invoice untouched.
//
// SYNCED and SYNC_FAILED are sync outcomes, not operator moves: they
// are reachable only through AttemptSync, which runs the pipeline and
// posts to the accounting system before recording either.
func (e *Engine) Transition(ctx context.Context, invoiceID string, to mapping.Status) (mapping.Invoice, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return mapping.Invoice{}, err
	}

	if to == mapping.StatusSynced || to == mapping.StatusSyncFailed {
		return mapping.Invoice{}, &TransitionError{InvoiceID: invoiceID, From: inv.Status, To: to}
	}
	if !CanTransition(inv.Status, to) {
		return mapping.Invoice{}, &TransitionError{InvoiceID: invoiceID, From: inv.Status, To: to}
	}

	if err := e.store.UpdateInvoiceStatus(ctx, invoiceID, to); err != nil {
		return mapping.Invoice{}, fmt.Errorf("persist transition: %w", err)
	}

	slog.Info("invoice transitioned",
		"invoice_id", invoiceID,
		"from", inv.Status,
		"to", to,
	)

	inv.Status = to
	return inv, nil
}

// Archive moves a non-terminal invoice to ARCHIVED.
func (e *Engine) Archive(ctx context.Context, invoiceID string) (mapping.Invoice, error) {
	return e.Transition(ctx, invoiceID, mapping.StatusArchived)
}

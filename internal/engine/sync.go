package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vedvix/ledgersync/internal/erp"
	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// Trigger types recorded in the attempt log.
const (
	TriggerOperator = "operator"
	TriggerSweep    = "sweep"
)

// DefaultSyncTimeout bounds a single call to the accounting system.
const DefaultSyncTimeout = 30 * time.Second

// idempotencyNamespace seeds the deterministic idempotency key. Fixed
// forever: changing it would break de-duplication across deployments.
var idempotencyNamespace = uuid.MustParse("9d3c5d1e-50f2-4a61-8f0a-7b1c2f9e4d55")

// Engine owns the side-effecting half of invoice synchronization.
//
// Every attempt holds the per-invoice lock for the whole
// select-resolve-post-record sequence, so concurrent callers serialize
// and at most one external record is ever created per invoice.
type Engine struct {
	store *store.Store
	erp   erp.Client
	clock Clock
	locks *lockTable

	syncTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source. Used by tests to pin
// timestamps and durations.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSyncTimeout bounds each call to the accounting system.
// Default: DefaultSyncTimeout.
func WithSyncTimeout(d time.Duration) Option {
	return func(e *Engine) { e.syncTimeout = d }
}

// New creates an Engine backed by the given store and accounting client.
func New(s *store.Store, client erp.Client, opts ...Option) *Engine {
	e := &Engine{
		store:       s,
		erp:         client,
		clock:       SystemClock(),
		locks:       newLockTable(),
		syncTimeout: DefaultSyncTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IdempotencyKey derives the deterministic de-duplication token for an
// invoice. Every attempt for the same invoice sends the same key, so
// the accounting system can collapse a retry that races a slow first
// attempt into one record.
func IdempotencyKey(invoiceID string) string {
	return uuid.NewSHA1(idempotencyNamespace, []byte(invoiceID)).String()
}

// AttemptSync runs one full synchronization attempt for an invoice.
//
// The sequence, under the per-invoice lock:
//
//  1. Already SYNCED, or an external record exists: return as-is. The
//     accounting system is not contacted again.
//  2. Status must allow the sync transition (APPROVED or SYNC_FAILED).
//  3. Select the profile; record it as the sticky assignment if the
//     invoice had none.
//  4. Run the pipeline. On failure the invoice keeps its status, the
//     error is recorded, and the accounting system is never called.
//  5. Post the payload. Success moves the invoice to SYNCED with the
//     external record ID; failure moves it to SYNC_FAILED with the
//     verbatim reason, classified retriable or not.
//
// Every attempt that reaches step 4's failure or step 5 appends an
// attempt-log row carrying the exact rule set it ran with.
func (e *Engine) AttemptSync(ctx context.Context, invoiceID, trigger string) (mapping.Invoice, error) {
	e.locks.acquire(invoiceID)
	defer e.locks.release(invoiceID)

	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return mapping.Invoice{}, err
	}

	if inv.Status == mapping.StatusSynced || inv.ExternalRecordID != "" {
		slog.Debug("invoice already synced, skipping",
			"invoice_id", invoiceID,
			"external_record_id", inv.ExternalRecordID,
		)
		return inv, nil
	}

	if !CanTransition(inv.Status, mapping.StatusSynced) {
		return mapping.Invoice{}, &TransitionError{InvoiceID: invoiceID, From: inv.Status, To: mapping.StatusSynced}
	}

	profile, err := e.SelectProfile(ctx, inv)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			return e.recordPipelineFailure(ctx, inv, mapping.Profile{}, trigger, pe)
		}
		return mapping.Invoice{}, err
	}

	// Sticky assignment: recorded here, persisted with the attempt's
	// other bookkeeping below.
	inv.ProfileID = profile.ID

	payload, err := Execute(profile, inv.Fields, inv.ID)
	if err != nil {
		var pe *PipelineError
		if errors.As(err, &pe) {
			return e.recordPipelineFailure(ctx, inv, profile, trigger, pe)
		}
		return mapping.Invoice{}, err
	}

	started := e.clock.Now()
	postCtx, cancel := context.WithTimeout(ctx, e.syncTimeout)
	defer cancel()

	result, postErr := e.erp.PostInvoice(postCtx, erp.PostRequest{
		InvoiceID:      inv.ID,
		OrganizationID: inv.OrganizationID,
		IdempotencyKey: IdempotencyKey(inv.ID),
		Fields:         payload.Values,
	})
	duration := e.clock.Now().Sub(started)

	inv.SyncAttempts++
	inv.LastSyncAt = e.clock.Now()

	if postErr != nil {
		return e.recordPostFailure(ctx, inv, profile, trigger, duration, postErr)
	}

	inv.Status = mapping.StatusSynced
	inv.ExternalRecordID = result.ExternalID
	inv.LastSyncError = ""
	inv.LastSyncErrorCode = ""
	inv.LastSyncRetriable = false

	if err := e.store.UpdateInvoiceSync(ctx, inv); err != nil {
		return mapping.Invoice{}, fmt.Errorf("persist sync success: %w", err)
	}
	e.appendAttempt(ctx, inv, profile, mapping.SyncAttempt{
		Result:           mapping.StatusSynced,
		ExternalRecordID: result.ExternalID,
		TriggerType:      trigger,
		DurationMs:       duration.Milliseconds(),
	})

	slog.Info("invoice synced",
		"invoice_id", inv.ID,
		"external_record_id", result.ExternalID,
		"profile_id", profile.ID,
		"attempt", inv.SyncAttempts,
		"trigger", trigger,
	)
	return inv, nil
}

// recordPipelineFailure persists a pre-post failure: the invoice keeps
// its lifecycle status, the error detail is recorded for the operator,
// and an attempt-log row is written. The accounting system was never
// contacted, so the attempt counter still advances to keep the log's
// (invoice, attempt) key monotonic.
func (e *Engine) recordPipelineFailure(ctx context.Context, inv mapping.Invoice, profile mapping.Profile, trigger string, pe *PipelineError) (mapping.Invoice, error) {
	inv.SyncAttempts++
	inv.LastSyncError = pe.Error()
	inv.LastSyncErrorCode = string(pe.Code)
	inv.LastSyncRetriable = false
	inv.LastSyncAt = e.clock.Now()

	if err := e.store.UpdateInvoiceSync(ctx, inv); err != nil {
		return mapping.Invoice{}, fmt.Errorf("persist pipeline failure: %w", err)
	}
	e.appendAttempt(ctx, inv, profile, mapping.SyncAttempt{
		Result:       inv.Status,
		ErrorCode:    string(pe.Code),
		ErrorMessage: pe.Error(),
		TriggerType:  trigger,
	})

	slog.Warn("sync blocked before posting",
		"invoice_id", inv.ID,
		"code", pe.Code,
		"error", pe.Message,
		"trigger", trigger,
	)
	return inv, pe
}

// recordPostFailure persists a rejected or failed post: SYNC_FAILED with
// the verbatim reason and the retriable classification.
func (e *Engine) recordPostFailure(ctx context.Context, inv mapping.Invoice, profile mapping.Profile, trigger string, duration time.Duration, postErr error) (mapping.Invoice, error) {
	retriable := erp.Retriable(postErr)
	code := "transport"
	var re *erp.RejectionError
	if errors.As(postErr, &re) {
		code = re.Code
	}

	inv.Status = mapping.StatusSyncFailed
	inv.LastSyncError = postErr.Error()
	inv.LastSyncErrorCode = code
	inv.LastSyncRetriable = retriable

	if err := e.store.UpdateInvoiceSync(ctx, inv); err != nil {
		return mapping.Invoice{}, fmt.Errorf("persist sync failure: %w", err)
	}
	e.appendAttempt(ctx, inv, profile, mapping.SyncAttempt{
		Result:       mapping.StatusSyncFailed,
		ErrorCode:    code,
		ErrorMessage: postErr.Error(),
		Retriable:    retriable,
		TriggerType:  trigger,
		DurationMs:   duration.Milliseconds(),
	})

	slog.Warn("sync attempt failed",
		"invoice_id", inv.ID,
		"code", code,
		"retriable", retriable,
		"attempt", inv.SyncAttempts,
		"trigger", trigger,
		"error", postErr,
	)
	return inv, fmt.Errorf("sync invoice %s: %w", inv.ID, postErr)
}

// appendAttempt fills the audit fields shared by every attempt row and
// writes it. Log failures are logged but never mask the attempt's own
// outcome.
func (e *Engine) appendAttempt(ctx context.Context, inv mapping.Invoice, profile mapping.Profile, att mapping.SyncAttempt) {
	att.InvoiceID = inv.ID
	att.Attempt = inv.SyncAttempts
	att.ProfileID = profile.ID
	att.ProfileVersion = profile.Version
	att.RulesSnapshot = profile.Rules
	att.CreatedAt = e.clock.Now()

	if err := e.store.AppendSyncAttempt(ctx, att); err != nil {
		slog.Error("append sync attempt failed",
			"invoice_id", inv.ID,
			"attempt", att.Attempt,
			"error", err,
		)
	}
}

// SweepResult summarizes one retry sweep.
type SweepResult struct {
	Attempted int
	Synced    int
	Failed    int
}

// RetrySweep re-attempts every SYNC_FAILED invoice whose last failure
// was classified retriable. Failures do not stop the sweep; each
// invoice's outcome lands in its own attempt log.
func (e *Engine) RetrySweep(ctx context.Context) (SweepResult, error) {
	ids, err := e.store.ListRetriable(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list retriable invoices: %w", err)
	}

	res := SweepResult{Attempted: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if _, err := e.AttemptSync(ctx, id, TriggerSweep); err != nil {
			res.Failed++
			continue
		}
		res.Synced++
	}

	slog.Info("retry sweep finished",
		"attempted", res.Attempted,
		"synced", res.Synced,
		"failed", res.Failed,
	)
	return res, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedvix/ledgersync/internal/erp"
	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
	"github.com/vedvix/ledgersync/internal/testutil"
)

// newTestEngine creates an engine backed by a real SQLite store, a fake
// accounting client and a pinned clock.
func newTestEngine(t *testing.T) (*Engine, *store.Store, *testutil.FakeERP, *testutil.FixedClock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	fake := testutil.NewFakeERP()
	clk := testutil.NewFixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	return New(s, fake, WithClock(clk)), s, fake, clk
}

func strptr(s string) *string { return &s }

// seedDefaultProfile saves a default profile whose single required rule
// maps invoice_number to reference.
func seedDefaultProfile(t *testing.T, s *store.Store) mapping.Profile {
	t.Helper()
	p, _, err := s.SaveProfile(context.Background(), mapping.Profile{
		OrganizationID: 1,
		Name:           "Org Default",
		IsDefault:      true,
		Rules: []mapping.Rule{
			{Source: "invoice_number", Target: "reference", Required: true},
			{Source: "total", Target: "total_amount", Required: true},
		},
	})
	require.NoError(t, err)
	return p
}

// seedApprovedInvoice creates an invoice ready to sync, with fields that
// satisfy seedDefaultProfile's rules.
func seedApprovedInvoice(t *testing.T, s *store.Store) mapping.Invoice {
	t.Helper()
	inv, err := s.CreateInvoice(context.Background(), mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		InvoiceNumber:  "INV-1001",
		Status:         mapping.StatusApproved,
		Fields: mapping.FieldBag{
			"invoice_number": {Value: "INV-1001", Confidence: 0.99},
			"total":          {Value: "412.50", Confidence: 0.97},
		},
	})
	require.NoError(t, err)
	return inv
}

func TestAttemptSync_Success(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	profile := seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)

	assert.Equal(t, mapping.StatusSynced, got.Status)
	assert.NotEmpty(t, got.ExternalRecordID)
	assert.Equal(t, profile.ID, got.ProfileID, "sticky profile recorded on first attempt")
	assert.Equal(t, 1, got.SyncAttempts)
	assert.Empty(t, got.LastSyncError)

	require.Equal(t, 1, fake.CallCount())
	req := fake.Requests()[0]
	assert.Equal(t, inv.ID, req.InvoiceID)
	assert.Equal(t, IdempotencyKey(inv.ID), req.IdempotencyKey)
	assert.Equal(t, "INV-1001", req.Fields["reference"])
	assert.Equal(t, "412.50", req.Fields["total_amount"])

	attempts, err := s.ListSyncAttempts(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, mapping.StatusSynced, attempts[0].Result)
	assert.Equal(t, TriggerOperator, attempts[0].TriggerType)
	assert.Equal(t, profile.Version, attempts[0].ProfileVersion)
	assert.Len(t, attempts[0].RulesSnapshot, 2, "rule set snapshotted for audit")
}

func TestAttemptSync_IdempotentAfterSuccess(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	first, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)

	second, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)

	assert.Equal(t, first.ExternalRecordID, second.ExternalRecordID)
	assert.Equal(t, 1, fake.CallCount(), "second attempt must not contact the accounting system")
	assert.Equal(t, 1, second.SyncAttempts)
}

func TestAttemptSync_RequiresApprovedStatus(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)

	inv, err := s.CreateInvoice(ctx, mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusUnderReview,
		Fields:         mapping.FieldBag{"invoice_number": {Value: "INV-1", Confidence: 1}},
	})
	require.NoError(t, err)

	_, err = e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)
	assert.True(t, IsTransitionError(err))
	assert.Zero(t, fake.CallCount())
}

func TestAttemptSync_PipelineFailureStaysApproved(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)

	// Missing the required total field.
	inv, err := s.CreateInvoice(ctx, mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusApproved,
		Fields: mapping.FieldBag{
			"invoice_number": {Value: "INV-2002", Confidence: 0.99},
		},
	})
	require.NoError(t, err)

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)
	assert.True(t, IsIncompleteMapping(err))

	assert.Equal(t, mapping.StatusApproved, got.Status, "pipeline failure must not change the status")
	assert.Equal(t, string(ErrCodeIncompleteMapping), got.LastSyncErrorCode)
	assert.False(t, got.LastSyncRetriable)
	assert.Zero(t, fake.CallCount(), "accounting system never contacted on pipeline failure")

	attempts, lerr := s.ListSyncAttempts(ctx, inv.ID)
	require.NoError(t, lerr)
	require.Len(t, attempts, 1)
	assert.Equal(t, string(ErrCodeIncompleteMapping), attempts[0].ErrorCode)
}

func TestAttemptSync_NoProfile(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()

	inv, err := s.CreateInvoice(ctx, mapping.Invoice{
		OrganizationID: 42,
		VendorName:     "Unknown Vendor",
		Status:         mapping.StatusApproved,
		Fields:         mapping.FieldBag{"invoice_number": {Value: "X", Confidence: 1}},
	})
	require.NoError(t, err)

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)
	assert.True(t, IsNoProfile(err))
	assert.Equal(t, mapping.StatusApproved, got.Status)
	assert.Zero(t, fake.CallCount())
}

func TestAttemptSync_RejectionNonRetriable(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	fake.Fail(&erp.RejectionError{
		Code:      "validation",
		Message:   "total_amount exceeds approval limit",
		Retriable: false,
	})

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)

	assert.Equal(t, mapping.StatusSyncFailed, got.Status)
	assert.False(t, got.LastSyncRetriable)
	assert.Equal(t, "validation", got.LastSyncErrorCode)
	assert.Contains(t, got.LastSyncError, "total_amount exceeds approval limit",
		"rejection reason preserved verbatim")
	assert.Equal(t, 1, got.SyncAttempts)
}

func TestAttemptSync_TransportFailureRetriable(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	fake.Fail(errors.New("connection refused"))

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)

	assert.Equal(t, mapping.StatusSyncFailed, got.Status)
	assert.True(t, got.LastSyncRetriable, "transport failures are retriable")
	assert.Equal(t, "transport", got.LastSyncErrorCode)
}

// stallingERP never answers; posts end with the deadline.
type stallingERP struct{}

func (stallingERP) PostInvoice(ctx context.Context, _ erp.PostRequest) (erp.PostResult, error) {
	<-ctx.Done()
	return erp.PostResult{}, fmt.Errorf("post invoice: %w", ctx.Err())
}

func TestAttemptSync_TimeoutIsRetriable(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := testutil.NewFixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	e := New(s, stallingERP{}, WithClock(clk), WithSyncTimeout(10*time.Millisecond))

	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Equal(t, mapping.StatusSyncFailed, got.Status)
	assert.True(t, got.LastSyncRetriable, "a timed-out attempt stays eligible for the sweep")
	assert.Equal(t, "transport", got.LastSyncErrorCode)

	ids, err := s.ListRetriable(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, inv.ID)
}

func TestAttemptSync_RetryAfterFailureSucceeds(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	fake.Script(erp.PostResult{}, &erp.RejectionError{Code: "server_error", Message: "try later", Retriable: true})

	_, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)

	assert.Equal(t, mapping.StatusSynced, got.Status)
	assert.Equal(t, 2, got.SyncAttempts)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].IdempotencyKey, reqs[1].IdempotencyKey,
		"retry reuses the deterministic idempotency key")

	attempts, err := s.ListSyncAttempts(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, mapping.StatusSyncFailed, attempts[0].Result)
	assert.Equal(t, mapping.StatusSynced, attempts[1].Result)
}

func TestAttemptSync_StickyProfileReusedOnRetry(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)

	// A pattern profile created after the first attempt must not steal
	// the invoice on retry.
	inv := seedApprovedInvoice(t, s)
	fake.Script(erp.PostResult{}, &erp.RejectionError{Code: "server_error", Message: "down", Retriable: true})

	first, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)
	require.NotEmpty(t, first.ProfileID)

	_, _, err = s.SaveProfile(ctx, mapping.Profile{
		OrganizationID: 1,
		Name:           "ACME Special",
		VendorPattern:  `ACME`,
		Rules:          []mapping.Rule{{Source: "invoice_number", Target: "reference", Required: true}},
	})
	require.NoError(t, err)

	second, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)
	assert.Equal(t, first.ProfileID, second.ProfileID, "sticky assignment beats later pattern match")
}

func TestAttemptSync_OperatorOverrideRedirectsRetry(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	fake.Script(erp.PostResult{}, &erp.RejectionError{Code: "server_error", Message: "down", Retriable: true})
	_, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.Error(t, err)

	override, _, err := s.SaveProfile(ctx, mapping.Profile{
		OrganizationID: 1,
		Name:           "Reference Only",
		Rules:          []mapping.Rule{{Source: "invoice_number", Target: "reference", Required: true}},
	})
	require.NoError(t, err)
	require.NoError(t, s.AssignProfile(ctx, inv.ID, override.ID))

	got, err := e.AttemptSync(ctx, inv.ID, TriggerOperator)
	require.NoError(t, err)
	assert.Equal(t, override.ID, got.ProfileID, "explicit assignment replaces the sticky reference")

	req := fake.Requests()[1]
	assert.Equal(t, "INV-1001", req.Fields["reference"])
	assert.NotContains(t, req.Fields, "total_amount", "retry ran the overriding profile's rules")

	attempts, err := s.ListSyncAttempts(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, override.ID, attempts[1].ProfileID)
}

func TestAttemptSync_ConcurrentCallsOneExternalRecord(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.AttemptSync(ctx, inv.ID, TriggerOperator)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fake.CallCount(), "exactly one post despite concurrent attempts")
	got, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusSynced, got.Status)
	assert.Equal(t, 0, e.locks.size(), "lock table drained after attempts")
}

func TestRetrySweep(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)

	retriable := seedApprovedInvoice(t, s)
	fake.Script(erp.PostResult{}, &erp.RejectionError{Code: "server_error", Message: "down", Retriable: true})
	_, err := e.AttemptSync(ctx, retriable.ID, TriggerOperator)
	require.Error(t, err)

	permanent, err := s.CreateInvoice(ctx, mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusApproved,
		Fields: mapping.FieldBag{
			"invoice_number": {Value: "INV-9", Confidence: 1},
			"total":          {Value: "10.00", Confidence: 1},
		},
	})
	require.NoError(t, err)
	fake.Script(erp.PostResult{}, &erp.RejectionError{Code: "validation", Message: "bad", Retriable: false})
	_, err = e.AttemptSync(ctx, permanent.ID, TriggerOperator)
	require.Error(t, err)

	res, err := e.RetrySweep(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempted, "non-retriable failure excluded from the sweep")
	assert.Equal(t, 1, res.Synced)
	assert.Equal(t, 0, res.Failed)

	got, err := s.GetInvoice(ctx, retriable.ID)
	require.NoError(t, err)
	assert.Equal(t, mapping.StatusSynced, got.Status)

	attempts, err := s.ListSyncAttempts(ctx, retriable.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, TriggerSweep, attempts[1].TriggerType)
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	assert.Equal(t, IdempotencyKey("inv-1"), IdempotencyKey("inv-1"))
	assert.NotEqual(t, IdempotencyKey("inv-1"), IdempotencyKey("inv-2"))
}

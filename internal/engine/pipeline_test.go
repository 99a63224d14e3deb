package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// reviewProfile exercises every resolution outcome: source hit, fallback
// with a date transform, literal default, and an unresolved required rule.
func reviewProfile() mapping.Profile {
	return mapping.Profile{
		ID:             "prof-review",
		OrganizationID: 1,
		Name:           "Review",
		Rules: []mapping.Rule{
			{Source: "invoice_number", Target: "reference", Required: true},
			{Source: "due_date", FallbackSource: "invoice_date", Target: "payment_due",
				DateTransform: mapping.TransformNet30, Required: true},
			{Source: "po_number", Target: "purchase_order", DefaultValue: strptr("N/A")},
			{Source: "tax_code", Target: "tax_code", Required: true},
		},
	}
}

// reviewBag is missing due_date (low confidence), po_number and tax_code.
func reviewBag() mapping.FieldBag {
	return mapping.FieldBag{
		"invoice_number": {Value: "INV-1001", Confidence: 0.99},
		"due_date":       {Value: "2024-02-01", Confidence: 0.30, LowConfidence: true},
		"invoice_date":   {Value: "2024-01-15", Confidence: 0.95},
	}
}

func TestExecute_CollectsAllUnresolvedRequired(t *testing.T) {
	profile := reviewProfile()
	profile.Rules = append(profile.Rules,
		mapping.Rule{Source: "currency", Target: "currency_code", Required: true})

	payload, err := Execute(profile, reviewBag(), "inv-1")
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ErrCodeIncompleteMapping, pe.Code)
	assert.Equal(t, []string{"tax_code", "currency_code"}, pe.Targets,
		"every unresolved required target reported, in rule order")
	assert.Equal(t, "inv-1", pe.InvoiceID)

	// The partial payload still carries the trace for review display.
	assert.Len(t, payload.Trace, 5)
	assert.Equal(t, "INV-1001", payload.Values["reference"])
}

func TestExecute_Complete(t *testing.T) {
	bag := reviewBag()
	bag["tax_code"] = mapping.FieldValue{Value: "VAT-STD", Confidence: 0.9}

	payload, err := Execute(reviewProfile(), bag, "inv-1")
	require.NoError(t, err)

	assert.Equal(t, map[mapping.Target]string{
		"reference":      "INV-1001",
		"payment_due":    "2024-02-14",
		"purchase_order": "N/A",
		"tax_code":       "VAT-STD",
	}, payload.Values)
}

func TestExecute_PureAndDeterministic(t *testing.T) {
	profile := reviewProfile()
	bag := reviewBag()

	first, _ := Execute(profile, bag, "inv-1")
	second, _ := Execute(profile, bag, "inv-1")

	assert.Equal(t, first, second)
	assert.Equal(t, reviewBag(), bag, "bag must not be mutated")
}

func TestPreview_NoSideEffects(t *testing.T) {
	e, s, fake, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)
	inv := seedApprovedInvoice(t, s)

	payload, profile, err := e.Preview(ctx, inv.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, profile.ID)
	assert.Equal(t, "INV-1001", payload.Values["reference"])

	assert.Zero(t, fake.CallCount())
	stored, err := s.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ProfileID, "preview must not record a sticky assignment")
	assert.Equal(t, mapping.StatusApproved, stored.Status)
	assert.Zero(t, stored.SyncAttempts)
}

func TestPreview_ReturnsTraceOnIncompleteMapping(t *testing.T) {
	e, s, _, _ := newTestEngine(t)
	ctx := context.Background()
	seedDefaultProfile(t, s)

	inv, err := s.CreateInvoice(ctx, mapping.Invoice{
		OrganizationID: 1,
		VendorName:     "ACME Corp",
		Status:         mapping.StatusUnderReview,
		Fields:         mapping.FieldBag{"invoice_number": {Value: "INV-5", Confidence: 1}},
	})
	require.NoError(t, err)

	payload, _, err := e.Preview(ctx, inv.ID)
	require.Error(t, err)
	assert.True(t, IsIncompleteMapping(err))
	assert.NotEmpty(t, payload.Trace, "trace returned even when required targets are missing")
}

// TestExecute_TraceGolden pins the full payload shape, including the
// per-rule trace, against a golden file.
func TestExecute_TraceGolden(t *testing.T) {
	payload, err := Execute(reviewProfile(), reviewBag(), "inv-1")
	require.Error(t, err)

	data, err := json.MarshalIndent(payload, "", "  ")
	require.NoError(t, err)
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "review_trace", data)
}

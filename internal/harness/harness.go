package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vedvix/ledgersync/internal/engine"
	"github.com/vedvix/ledgersync/internal/erp"
	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/profileio"
	"github.com/vedvix/ledgersync/internal/store"
	"github.com/vedvix/ledgersync/internal/testutil"
)

// scenarioEpoch is the pinned clock start for every run. Each step
// advances the clock by one minute, so timestamps are deterministic.
var scenarioEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// TraceEvent is one step's observable outcome.
type TraceEvent struct {
	Step       int    `json:"step"`
	Action     string `json:"action"`
	Invoice    string `json:"invoice,omitempty"`
	Status     string `json:"status,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Error      string `json:"error,omitempty"`

	// Sweep counters, for sweep steps.
	Attempted int `json:"attempted,omitempty"`
	Synced    int `json:"synced,omitempty"`
}

// Result is the outcome of running a scenario.
type Result struct {
	ScenarioName string       `json:"scenario"`
	Passed       bool         `json:"passed"`
	Failures     []string     `json:"failures,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// Run executes a scenario against a fresh in-memory database.
//
// Step failures that the scenario scripted (rejected posts, invalid
// transitions) land in the trace, not in the returned error; the error
// covers infrastructure problems only.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewFixedClock(scenarioEpoch)
	fake := testutil.NewFakeERP()
	eng := engine.New(st, fake, engine.WithClock(clock))

	ctx := context.Background()
	result := &Result{ScenarioName: scenario.Name}

	if len(scenario.Profiles) > 0 {
		doc := &profileio.Document{OrganizationID: scenario.OrganizationID, Profiles: scenario.Profiles}
		if _, err := profileio.Import(ctx, st, doc); err != nil {
			return nil, fmt.Errorf("import scenario profiles: %w", err)
		}
	}

	ids := make(map[string]string, len(scenario.Invoices))
	for _, spec := range scenario.Invoices {
		inv, err := st.CreateInvoice(ctx, spec.toInvoice(scenario.OrganizationID))
		if err != nil {
			return nil, fmt.Errorf("create scenario invoice %q: %w", spec.InvoiceNumber, err)
		}
		ids[spec.InvoiceNumber] = inv.ID
	}

	for i, step := range scenario.Steps {
		clock.Advance(time.Minute)
		event := TraceEvent{Step: i + 1, Action: step.Action, Invoice: step.Invoice}

		switch step.Action {
		case ActionTransition:
			inv, err := eng.Transition(ctx, ids[step.Invoice], mapping.Status(step.To))
			recordOutcome(&event, inv, err)

		case ActionSync:
			if step.ERP != nil {
				fake.Script(step.ERP.response())
			}
			inv, err := eng.AttemptSync(ctx, ids[step.Invoice], engine.TriggerOperator)
			recordOutcome(&event, inv, err)

		case ActionSweep:
			res, err := eng.RetrySweep(ctx)
			if err != nil {
				return nil, fmt.Errorf("step %d: sweep: %w", i+1, err)
			}
			event.Attempted = res.Attempted
			event.Synced = res.Synced
		}

		result.Trace = append(result.Trace, event)
	}

	result.Passed = true
	for _, exp := range scenario.Expect {
		inv, err := st.GetInvoice(ctx, ids[exp.Invoice])
		if err != nil {
			return nil, fmt.Errorf("load invoice %q for expectation: %w", exp.Invoice, err)
		}
		for _, failure := range exp.check(ctx, st, inv) {
			result.Passed = false
			result.Failures = append(result.Failures, failure)
		}
	}
	return result, nil
}

func recordOutcome(event *TraceEvent, inv mapping.Invoice, err error) {
	event.Status = string(inv.Status)
	event.ExternalID = inv.ExternalRecordID
	if err != nil {
		event.Error = err.Error()
		event.ErrorCode = inv.LastSyncErrorCode
		var te *engine.TransitionError
		if errors.As(err, &te) {
			event.ErrorCode = "INVALID_TRANSITION"
			event.Status = string(te.From)
		}
	}
}

func (spec InvoiceSpec) toInvoice(organizationID int64) mapping.Invoice {
	// Deterministic IDs keep error text in traces golden-comparable.
	inv := mapping.Invoice{
		ID:             "scn-" + spec.InvoiceNumber,
		OrganizationID: organizationID,
		VendorName:     spec.VendorName,
		InvoiceNumber:  spec.InvoiceNumber,
		Status:         mapping.Status(spec.Status),
		Fields:         make(mapping.FieldBag, len(spec.Fields)),
	}
	for name, f := range spec.Fields {
		inv.Fields[name] = mapping.FieldValue{
			Value:         f.Value,
			Confidence:    f.Confidence,
			LowConfidence: f.LowConfidence,
		}
	}
	return inv
}

func (s *ERPScript) response() (erp.PostResult, error) {
	if s.Reject {
		return erp.PostResult{}, &erp.RejectionError{
			Code:      s.Code,
			Message:   s.Message,
			Retriable: s.Retriable,
		}
	}
	id := s.ExternalID
	if id == "" {
		id = "ext-scripted"
	}
	return erp.PostResult{ExternalID: id}, nil
}

func (exp Expectation) check(ctx context.Context, st *store.Store, inv mapping.Invoice) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf("invoice %s: ", exp.Invoice)+fmt.Sprintf(format, args...))
	}

	if exp.Status != "" && string(inv.Status) != exp.Status {
		fail("status = %s, want %s", inv.Status, exp.Status)
	}
	if exp.ExternalID != "" && inv.ExternalRecordID != exp.ExternalID {
		fail("external_id = %q, want %q", inv.ExternalRecordID, exp.ExternalID)
	}
	if exp.SyncAttempts != nil && inv.SyncAttempts != *exp.SyncAttempts {
		fail("sync_attempts = %d, want %d", inv.SyncAttempts, *exp.SyncAttempts)
	}
	if exp.LastErrorCode != "" && inv.LastSyncErrorCode != exp.LastErrorCode {
		fail("last_error_code = %q, want %q", inv.LastSyncErrorCode, exp.LastErrorCode)
	}
	if exp.ProfileName != "" {
		p, err := st.GetProfile(ctx, inv.ProfileID)
		if err != nil {
			fail("profile lookup: %v", err)
		} else if p.Name != exp.ProfileName {
			fail("profile = %q, want %q", p.Name, exp.ProfileName)
		}
	}
	return failures
}

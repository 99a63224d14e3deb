package engine

import (
	"context"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// Execute runs every rule of a profile against an invoice's field bag
// and assembles the destination payload.
//
// Execute is pure: it reads the profile and the bag, touches nothing
// else, and the same inputs always produce the same payload. Rules run
// in their persisted order and every rule is evaluated even after a
// failure, so the returned error (and the trace) names ALL unresolved
// required targets, not just the first.
//
// On an INCOMPLETE_MAPPING error the payload is still returned: the
// trace is what the review UI shows the operator.
func Execute(profile mapping.Profile, bag mapping.FieldBag, invoiceID string) (mapping.Payload, error) {
	payload := mapping.Payload{
		Values: make(map[mapping.Target]string, len(profile.Rules)),
		Trace:  make([]mapping.Resolution, 0, len(profile.Rules)),
	}

	for _, rule := range profile.Rules {
		res := mapping.Resolve(rule, bag)
		payload.Trace = append(payload.Trace, res)
		if res.Outcome != mapping.OutcomeUnresolved {
			payload.Values[res.Target] = res.Value
		}
	}

	if missing := payload.UnresolvedRequired(); len(missing) > 0 {
		return payload, NewIncompleteMappingError(invoiceID, missing)
	}
	return payload, nil
}

// Preview selects a profile for the invoice and runs the pipeline
// without any side effects: no sticky assignment, no status change, no
// call to the accounting system. The payload's trace is returned even
// when required targets are unresolved.
func (e *Engine) Preview(ctx context.Context, invoiceID string) (mapping.Payload, mapping.Profile, error) {
	inv, err := e.store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return mapping.Payload{}, mapping.Profile{}, err
	}

	profile, err := e.SelectProfile(ctx, inv)
	if err != nil {
		return mapping.Payload{}, mapping.Profile{}, err
	}

	payload, execErr := Execute(profile, inv.Fields, inv.ID)
	return payload, profile, execErr
}

// PreviewProfile runs the pipeline for an explicit profile against a
// caller-supplied bag, bypassing selection entirely. Used by the API's
// profile preview endpoint and the CLI.
func PreviewProfile(profile mapping.Profile, bag mapping.FieldBag) (mapping.Payload, error) {
	return Execute(profile, bag, "")
}

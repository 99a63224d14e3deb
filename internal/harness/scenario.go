// Package harness provides a scenario-based conformance framework for
// the sync engine.
//
// A scenario is a YAML document describing an organization's profiles,
// a set of extracted invoices, a sequence of operator actions (lifecycle
// transitions, sync attempts with scripted accounting-system responses,
// retry sweeps) and expectations on the final invoice state. Scenarios
// run against a fresh in-memory database with a pinned clock and a
// scriptable accounting client, so the produced event trace is
// deterministic and can be compared against golden files.
package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vedvix/ledgersync/internal/profileio"
)

// Scenario defines one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it is also the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// OrganizationID owns the profiles and invoices.
	OrganizationID int64 `yaml:"organization_id"`

	// Profiles are imported before any step runs.
	Profiles []profileio.ProfileSpec `yaml:"profiles"`

	// Invoices are created before any step runs. Steps and
	// expectations reference them by invoice number.
	Invoices []InvoiceSpec `yaml:"invoices"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Expect is checked after the last step.
	Expect []Expectation `yaml:"expect,omitempty"`
}

// InvoiceSpec seeds one invoice.
type InvoiceSpec struct {
	VendorName    string               `yaml:"vendor_name"`
	InvoiceNumber string               `yaml:"invoice_number"`
	Status        string               `yaml:"status,omitempty"`
	Fields        map[string]FieldSpec `yaml:"fields,omitempty"`
}

// FieldSpec is one extracted field value.
type FieldSpec struct {
	Value         string  `yaml:"value"`
	Confidence    float64 `yaml:"confidence,omitempty"`
	LowConfidence bool    `yaml:"low_confidence,omitempty"`
}

// Step action constants.
const (
	ActionTransition = "transition"
	ActionSync       = "sync"
	ActionSweep      = "sweep"
)

// Step is one operator action.
type Step struct {
	// Action is "transition", "sync" or "sweep".
	Action string `yaml:"action"`

	// Invoice references the target by invoice number
	// (transition and sync).
	Invoice string `yaml:"invoice,omitempty"`

	// To is the destination status (transition only).
	To string `yaml:"to,omitempty"`

	// ERP scripts the accounting system's response (sync only).
	// Omitted means the post succeeds with a generated record id.
	ERP *ERPScript `yaml:"erp,omitempty"`
}

// ERPScript configures the accounting system's next response.
type ERPScript struct {
	ExternalID string `yaml:"external_id,omitempty"`
	Reject     bool   `yaml:"reject,omitempty"`
	Code       string `yaml:"code,omitempty"`
	Message    string `yaml:"message,omitempty"`
	Retriable  bool   `yaml:"retriable,omitempty"`
}

// Expectation checks one invoice's final state. Zero-valued fields are
// not checked.
type Expectation struct {
	Invoice       string `yaml:"invoice"`
	Status        string `yaml:"status,omitempty"`
	ExternalID    string `yaml:"external_id,omitempty"`
	SyncAttempts  *int   `yaml:"sync_attempts,omitempty"`
	LastErrorCode string `yaml:"last_error_code,omitempty"`
	ProfileName   string `yaml:"profile,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected (catches typos like "expects:" for "expect:").
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.OrganizationID == 0 {
		return fmt.Errorf("organization_id is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	known := make(map[string]bool, len(s.Invoices))
	for i, inv := range s.Invoices {
		if inv.InvoiceNumber == "" {
			return fmt.Errorf("invoice %d: invoice_number is required", i)
		}
		if known[inv.InvoiceNumber] {
			return fmt.Errorf("duplicate invoice number %q", inv.InvoiceNumber)
		}
		known[inv.InvoiceNumber] = true
	}

	for i, step := range s.Steps {
		switch step.Action {
		case ActionTransition:
			if !known[step.Invoice] {
				return fmt.Errorf("step %d: unknown invoice %q", i, step.Invoice)
			}
			if step.To == "" {
				return fmt.Errorf("step %d: transition requires 'to'", i)
			}
		case ActionSync:
			if !known[step.Invoice] {
				return fmt.Errorf("step %d: unknown invoice %q", i, step.Invoice)
			}
		case ActionSweep:
		default:
			return fmt.Errorf("step %d: unknown action %q", i, step.Action)
		}
	}

	for i, exp := range s.Expect {
		if !known[exp.Invoice] {
			return fmt.Errorf("expectation %d: unknown invoice %q", i, exp.Invoice)
		}
	}
	return nil
}

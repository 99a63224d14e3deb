// Package profileio reads and writes mapping profiles as YAML
// documents, for bulk import/export and for seeding environments from
// version-controlled profile files.
package profileio

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vedvix/ledgersync/internal/mapping"
	"github.com/vedvix/ledgersync/internal/store"
)

// Document is one organization's profile set.
type Document struct {
	OrganizationID int64         `yaml:"organization_id"`
	Profiles       []ProfileSpec `yaml:"profiles"`
}

// ProfileSpec mirrors mapping.Profile minus the server-owned fields
// (ID, version, timestamps).
type ProfileSpec struct {
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description,omitempty"`
	VendorPattern string     `yaml:"vendor_pattern,omitempty"`
	IsDefault     bool       `yaml:"is_default,omitempty"`
	Rules         []RuleSpec `yaml:"rules"`
}

// RuleSpec mirrors mapping.Rule.
type RuleSpec struct {
	Source         string  `yaml:"source"`
	Target         string  `yaml:"target"`
	FallbackSource string  `yaml:"fallback_source,omitempty"`
	DefaultValue   *string `yaml:"default_value,omitempty"`
	DateTransform  string  `yaml:"date_transform,omitempty"`
	Required       bool    `yaml:"required,omitempty"`
	Description    string  `yaml:"description,omitempty"`
}

// Load reads and parses a profile document. Unknown fields are
// rejected, catching typos like "fallback:" for "fallback_source:".
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile document: %w", err)
	}
	return Parse(data)
}

// Parse parses a profile document from bytes.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse profile document: %w", err)
	}

	if doc.OrganizationID == 0 {
		return nil, fmt.Errorf("profile document: organization_id is required")
	}
	if len(doc.Profiles) == 0 {
		return nil, fmt.Errorf("profile document: at least one profile is required")
	}
	return &doc, nil
}

// ImportResult reports one imported profile.
type ImportResult struct {
	Profile  mapping.Profile
	Warnings []store.Warning
}

// Import saves every profile in the document. Each profile is validated
// by the store; the first failure aborts the import and reports which
// profile failed.
//
// Existing profiles with the same name are not merged: the store's
// unique name constraint rejects them, so re-importing a document into
// a non-empty organization is an explicit conflict, not a silent update.
func Import(ctx context.Context, s *store.Store, doc *Document) ([]ImportResult, error) {
	results := make([]ImportResult, 0, len(doc.Profiles))
	for _, spec := range doc.Profiles {
		saved, warnings, err := s.SaveProfile(ctx, spec.toProfile(doc.OrganizationID))
		if err != nil {
			return results, fmt.Errorf("import profile %q: %w", spec.Name, err)
		}
		results = append(results, ImportResult{Profile: saved, Warnings: warnings})
	}
	return results, nil
}

// Export builds a document from an organization's stored profiles, in
// creation order.
func Export(ctx context.Context, s *store.Store, organizationID int64) (*Document, error) {
	profiles, err := s.ListProfiles(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("export profiles: %w", err)
	}

	doc := &Document{OrganizationID: organizationID}
	for _, p := range profiles {
		doc.Profiles = append(doc.Profiles, fromProfile(p))
	}
	return doc, nil
}

// Marshal renders a document as YAML.
func Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal profile document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal profile document: %w", err)
	}
	return buf.Bytes(), nil
}

func (spec ProfileSpec) toProfile(organizationID int64) mapping.Profile {
	p := mapping.Profile{
		OrganizationID: organizationID,
		Name:           spec.Name,
		Description:    spec.Description,
		VendorPattern:  spec.VendorPattern,
		IsDefault:      spec.IsDefault,
	}
	for _, r := range spec.Rules {
		p.Rules = append(p.Rules, mapping.Rule{
			Source:         r.Source,
			Target:         r.Target,
			FallbackSource: r.FallbackSource,
			DefaultValue:   r.DefaultValue,
			DateTransform:  mapping.DateTransform(r.DateTransform),
			Required:       r.Required,
			Description:    r.Description,
		})
	}
	return p
}

func fromProfile(p mapping.Profile) ProfileSpec {
	spec := ProfileSpec{
		Name:          p.Name,
		Description:   p.Description,
		VendorPattern: p.VendorPattern,
		IsDefault:     p.IsDefault,
	}
	for _, r := range p.Rules {
		spec.Rules = append(spec.Rules, RuleSpec{
			Source:         r.Source,
			Target:         r.Target,
			FallbackSource: r.FallbackSource,
			DefaultValue:   r.DefaultValue,
			DateTransform:  string(r.DateTransform),
			Required:       r.Required,
			Description:    r.Description,
		})
	}
	return spec
}

// LoadBag reads a sample field bag from a YAML file, for previewing a
// profile against captured extractor output.
//
// Format:
//
//	fields:
//	  invoice_number:
//	    value: INV-1001
//	    confidence: 0.99
func LoadBag(path string) (mapping.FieldBag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read field bag: %w", err)
	}

	var doc struct {
		Fields map[string]struct {
			Value         string  `yaml:"value"`
			Confidence    float64 `yaml:"confidence"`
			LowConfidence bool    `yaml:"low_confidence"`
		} `yaml:"fields"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse field bag: %w", err)
	}

	bag := make(mapping.FieldBag, len(doc.Fields))
	for name, f := range doc.Fields {
		bag[name] = mapping.FieldValue{
			Value:         f.Value,
			Confidence:    f.Confidence,
			LowConfidence: f.LowConfidence,
		}
	}
	return bag, nil
}

package mapping

import "time"

// Outcome records how a rule's target value was resolved.
type Outcome string

const (
	// OutcomeSource indicates the primary source field supplied the value.
	OutcomeSource Outcome = "RESOLVED_FROM_SOURCE"

	// OutcomeFallback indicates the fallback source supplied the value.
	OutcomeFallback Outcome = "RESOLVED_FROM_FALLBACK"

	// OutcomeDefault indicates the rule's literal default supplied the value.
	OutcomeDefault Outcome = "RESOLVED_FROM_DEFAULT"

	// OutcomeUnresolved indicates no value could be produced.
	OutcomeUnresolved Outcome = "UNRESOLVED"
)

// DateTransform identifies a calendar-arithmetic transform applied to a
// resolved date value. The set is closed: adding a transform is a
// reviewable change to this enum and to Apply, not a new dispatch path.
type DateTransform string

const (
	TransformNone            DateTransform = "NONE"
	TransformNextFriday      DateTransform = "NEXT_FRIDAY"
	TransformNextMonday      DateTransform = "NEXT_MONDAY"
	TransformNextBusinessDay DateTransform = "NEXT_BUSINESS_DAY"
	TransformEndOfMonth      DateTransform = "END_OF_MONTH"
	TransformAdd30Days       DateTransform = "ADD_30_DAYS"
	TransformAdd60Days       DateTransform = "ADD_60_DAYS"
	TransformAdd90Days       DateTransform = "ADD_90_DAYS"

	// Net terms mirror accounting terminology. NET_30 and NET_60 are
	// semantically identical to ADD_30_DAYS and ADD_60_DAYS; the separate
	// names let profile authors express intent explicitly.
	TransformNet30 DateTransform = "NET_30"
	TransformNet60 DateTransform = "NET_60"
)

// ValidTransforms defines the allowed transform values.
var ValidTransforms = map[DateTransform]bool{
	TransformNone:            true,
	TransformNextFriday:      true,
	TransformNextMonday:      true,
	TransformNextBusinessDay: true,
	TransformEndOfMonth:      true,
	TransformAdd30Days:       true,
	TransformAdd60Days:       true,
	TransformAdd90Days:       true,
	TransformNet30:           true,
	TransformNet60:           true,
}

// FieldValue is one extracted field as reported by the upstream
// extraction service.
type FieldValue struct {
	Value string `json:"value"`

	// Confidence is the extractor's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence,omitempty"`

	// LowConfidence is set when the extractor explicitly flagged the
	// value as unreliable. A low-confidence value is treated as absent
	// during resolution.
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Blank reports whether the value should be treated as absent for
// resolution purposes.
func (v FieldValue) Blank() bool {
	return v.Value == "" || v.LowConfidence
}

// FieldBag is the immutable set of extracted fields for one invoice,
// keyed by the extractor's field-name vocabulary. The resolver treats
// the names as opaque strings configured per rule.
type FieldBag map[string]FieldValue

// Get returns the named field and whether it is present and non-blank.
func (b FieldBag) Get(name string) (FieldValue, bool) {
	v, ok := b[name]
	if !ok || v.Blank() {
		return FieldValue{}, false
	}
	return v, true
}

// Clone returns an independent copy of the bag.
func (b FieldBag) Clone() FieldBag {
	out := make(FieldBag, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Rule is one source→target field translation with optional fallback,
// default, and date-transform policy.
type Rule struct {
	Source         string        `json:"source"`
	Target         string        `json:"target"`
	FallbackSource string        `json:"fallback_source,omitempty"`
	DefaultValue   *string       `json:"default_value,omitempty"`
	DateTransform  DateTransform `json:"date_transform,omitempty"`
	Required       bool          `json:"required,omitempty"`

	// Description is documentation only; it has no runtime effect.
	Description string `json:"description,omitempty"`
}

// Transform returns the rule's transform, defaulting to NONE.
func (r Rule) Transform() DateTransform {
	if r.DateTransform == "" {
		return TransformNone
	}
	return r.DateTransform
}

// Profile is a named, organization-owned, ordered set of rules used to
// translate extracted invoice data into the destination accounting schema.
type Profile struct {
	ID             string    `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	VendorPattern  string    `json:"vendor_pattern,omitempty"`
	IsDefault      bool      `json:"is_default"`
	Rules          []Rule    `json:"rules"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Resolution is the outcome of evaluating one rule against a bag.
type Resolution struct {
	Target   Target  `json:"target"`
	Outcome  Outcome `json:"outcome"`
	Value    string  `json:"value,omitempty"`
	Required bool    `json:"required,omitempty"`

	// ResolvedFrom names the field that actually supplied the value,
	// or "default" when the literal default was used.
	ResolvedFrom string `json:"resolved_from,omitempty"`

	// Detail carries an error description for UNRESOLVED outcomes
	// (for example an unparseable date input).
	Detail string `json:"detail,omitempty"`
}

// Target is a destination-schema field name.
type Target = string

// Payload is the assembled destination-schema output of a full pipeline
// run: final values per target plus the per-rule outcome trace used for
// diagnostics and review.
type Payload struct {
	Values map[Target]string `json:"values"`
	Trace  []Resolution      `json:"trace"`
}

// UnresolvedRequired returns the targets of required rules that produced
// no value, in rule order.
func (p Payload) UnresolvedRequired() []Target {
	var out []Target
	for _, r := range p.Trace {
		if r.Required && r.Outcome == OutcomeUnresolved {
			out = append(out, r.Target)
		}
	}
	return out
}

package mapping

// Resolve evaluates one rule against an extracted field bag.
//
// The algorithm runs in strict order:
//  1. primary source, if present and non-blank
//  2. fallback source, if configured and non-blank
//  3. literal default, if configured
//  4. otherwise UNRESOLVED
//
// When the rule carries a date transform, the resolved raw value must
// parse as a date; the transform is applied to the parsed date and the
// result re-rendered in the canonical layout. An unparseable raw value is
// a resolution failure, never passed through to the transform.
//
// The bag is never mutated.
func Resolve(rule Rule, bag FieldBag) Resolution {
	res := Resolution{Target: rule.Target, Required: rule.Required}

	if rule.Source != "" {
		if v, ok := bag.Get(rule.Source); ok {
			res.Outcome = OutcomeSource
			res.Value = v.Value
			res.ResolvedFrom = rule.Source
		}
	}

	if res.Outcome == "" && rule.FallbackSource != "" {
		if v, ok := bag.Get(rule.FallbackSource); ok {
			res.Outcome = OutcomeFallback
			res.Value = v.Value
			res.ResolvedFrom = rule.FallbackSource
		}
	}

	if res.Outcome == "" && rule.DefaultValue != nil {
		res.Outcome = OutcomeDefault
		res.Value = *rule.DefaultValue
		res.ResolvedFrom = "default"
	}

	if res.Outcome == "" {
		res.Outcome = OutcomeUnresolved
		return res
	}

	if t := rule.Transform(); t != TransformNone {
		d, err := ParseDate(res.Value)
		if err != nil {
			return Resolution{
				Target:   rule.Target,
				Required: rule.Required,
				Outcome:  OutcomeUnresolved,
				Detail:   err.Error(),
			}
		}
		res.Value = FormatDate(Apply(t, d))
	}

	return res
}

package mapping

import (
	"errors"
	"fmt"
	"regexp"
)

// ValidationError represents a profile configuration error detected at
// save time. Configuration errors are rejected synchronously and never
// allowed to reach resolution time.
type ValidationError struct {
	// Code identifies the error category.
	Code ValidationErrorCode

	// Message is a human-readable description.
	Message string

	// Target identifies the offending rule target, when applicable.
	Target string
}

// ValidationErrorCode categorizes validation errors.
type ValidationErrorCode string

const (
	// ErrCodeNameRequired indicates a profile with no name.
	ErrCodeNameRequired ValidationErrorCode = "NAME_REQUIRED"

	// ErrCodeDuplicateTarget indicates two rules writing the same target.
	// Last-write-wins is not the contract; duplicates are rejected.
	ErrCodeDuplicateTarget ValidationErrorCode = "DUPLICATE_TARGET"

	// ErrCodeTargetRequired indicates a rule with no target field.
	ErrCodeTargetRequired ValidationErrorCode = "TARGET_REQUIRED"

	// ErrCodeRuleUnresolvable indicates a rule with no source, no
	// fallback and no default: it could never produce a value.
	ErrCodeRuleUnresolvable ValidationErrorCode = "RULE_UNRESOLVABLE"

	// ErrCodeInvalidTransform indicates an unknown date transform value.
	ErrCodeInvalidTransform ValidationErrorCode = "INVALID_TRANSFORM"

	// ErrCodeInvalidPattern indicates a vendor pattern that does not
	// compile as a regular expression.
	ErrCodeInvalidPattern ValidationErrorCode = "INVALID_PATTERN"
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s: %s (target=%s)", e.Code, e.Message, e.Target)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError reports whether err is a profile validation error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidateProfile checks a profile's configuration.
//
// Checks, in order:
//   - name present
//   - vendor pattern compiles (case-insensitively), if set
//   - every rule has a target and at least one value source
//   - every transform is a known enum value
//   - no two rules share a target
func ValidateProfile(p Profile) error {
	if p.Name == "" {
		return &ValidationError{Code: ErrCodeNameRequired, Message: "profile name is required"}
	}

	if p.VendorPattern != "" {
		if _, err := CompilePattern(p.VendorPattern); err != nil {
			return &ValidationError{
				Code:    ErrCodeInvalidPattern,
				Message: fmt.Sprintf("vendor pattern %q does not compile: %v", p.VendorPattern, err),
			}
		}
	}

	seen := make(map[string]bool, len(p.Rules))
	for _, r := range p.Rules {
		if r.Target == "" {
			return &ValidationError{Code: ErrCodeTargetRequired, Message: "rule target is required"}
		}
		if r.Source == "" && r.FallbackSource == "" && r.DefaultValue == nil {
			return &ValidationError{
				Code:    ErrCodeRuleUnresolvable,
				Message: "rule has no source, fallback or default",
				Target:  r.Target,
			}
		}
		if !ValidTransforms[r.Transform()] {
			return &ValidationError{
				Code:    ErrCodeInvalidTransform,
				Message: fmt.Sprintf("unknown date transform %q", r.DateTransform),
				Target:  r.Target,
			}
		}
		if seen[r.Target] {
			return &ValidationError{
				Code:    ErrCodeDuplicateTarget,
				Message: "two rules write the same target",
				Target:  r.Target,
			}
		}
		seen[r.Target] = true
	}

	return nil
}

// CompilePattern compiles a vendor pattern for case-insensitive,
// unanchored matching. Patterns are validated here at save time so an
// invalid pattern can never surface during profile selection.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

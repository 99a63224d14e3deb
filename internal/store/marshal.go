package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vedvix/ledgersync/internal/mapping"
)

// timeLayout is how timestamps are stored. RFC 3339 text sorts
// chronologically, which the creation-order index relies on.
const timeLayout = time.RFC3339Nano

func marshalRules(rules []mapping.Rule) (string, error) {
	if rules == nil {
		rules = []mapping.Rule{}
	}
	b, err := json.Marshal(rules)
	if err != nil {
		return "", fmt.Errorf("marshal rules: %w", err)
	}
	return string(b), nil
}

func unmarshalRules(raw string) ([]mapping.Rule, error) {
	var rules []mapping.Rule
	if err := json.Unmarshal([]byte(raw), &rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return rules, nil
}

func marshalFields(bag mapping.FieldBag) (string, error) {
	if bag == nil {
		bag = mapping.FieldBag{}
	}
	b, err := json.Marshal(bag)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(b), nil
}

func unmarshalFields(raw string) (mapping.FieldBag, error) {
	var bag mapping.FieldBag
	if err := json.Unmarshal([]byte(raw), &bag); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return bag, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

package mapping

import (
	"fmt"
	"time"
)

// DateLayout is the canonical wire format for resolved date values.
const DateLayout = "2006-01-02"

// dateLayouts are the input formats accepted from the extractor, tried in
// order. The extractor normalizes to ISO but US-style layouts still appear
// in older raw bags.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses an extracted date string.
// Returns an error when no accepted layout matches.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}

// FormatDate renders a date in the canonical wire format.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// Apply evaluates a date transform against a calendar date.
//
// Every transform is total and deterministic: the result depends only on
// the input date, never on the system clock. NONE is the identity.
func Apply(t DateTransform, d time.Time) time.Time {
	switch t {
	case TransformNextFriday:
		return nextWeekday(d, time.Friday)
	case TransformNextMonday:
		return nextWeekday(d, time.Monday)
	case TransformNextBusinessDay:
		return nextBusinessDay(d)
	case TransformEndOfMonth:
		return endOfMonth(d)
	case TransformAdd30Days, TransformNet30:
		return d.AddDate(0, 0, 30)
	case TransformAdd60Days, TransformNet60:
		return d.AddDate(0, 0, 60)
	case TransformAdd90Days:
		return d.AddDate(0, 0, 90)
	default:
		return d
	}
}

// nextWeekday returns the smallest date strictly after d that falls on the
// given weekday. A date already on the target weekday advances a full week.
func nextWeekday(d time.Time, weekday time.Weekday) time.Time {
	ahead := (int(weekday) - int(d.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return d.AddDate(0, 0, ahead)
}

// nextBusinessDay returns d plus one calendar day, advanced past any
// weekend. No holiday calendar is consulted.
func nextBusinessDay(d time.Time) time.Time {
	next := d.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// endOfMonth returns the last calendar day of d's month.
func endOfMonth(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}

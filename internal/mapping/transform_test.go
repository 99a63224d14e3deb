package mapping

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestApply_None_Identity(t *testing.T) {
	d := date(2024, time.March, 15)
	assert.Equal(t, d, Apply(TransformNone, d))
}

func TestApply_NextFriday(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"from a Monday", date(2024, time.January, 15), date(2024, time.January, 19)},
		{"from a Thursday", date(2024, time.January, 18), date(2024, time.January, 19)},
		{"from a Friday advances a full week", date(2024, time.January, 19), date(2024, time.January, 26)},
		{"from a Saturday", date(2024, time.January, 20), date(2024, time.January, 26)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Apply(TransformNextFriday, tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, time.Friday, got.Weekday())
			assert.True(t, got.After(tt.in), "result must be strictly after input")
		})
	}
}

func TestApply_NextMonday_NeverSameDay(t *testing.T) {
	monday := date(2024, time.January, 15)
	require.Equal(t, time.Monday, monday.Weekday())

	got := Apply(TransformNextMonday, monday)
	assert.Equal(t, monday.AddDate(0, 0, 7), got)
}

func TestApply_NextBusinessDay(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"midweek is plus one", date(2024, time.January, 16), date(2024, time.January, 17)},
		{"Friday jumps the weekend", date(2024, time.January, 19), date(2024, time.January, 22)},
		{"Saturday lands on Monday", date(2024, time.January, 20), date(2024, time.January, 22)},
		{"Sunday lands on Monday", date(2024, time.January, 21), date(2024, time.January, 22)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(TransformNextBusinessDay, tt.in))
		})
	}
}

func TestApply_EndOfMonth(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"leap February", date(2024, time.February, 10), date(2024, time.February, 29)},
		{"non-leap February", date(2023, time.February, 10), date(2023, time.February, 28)},
		{"century non-leap", date(1900, time.February, 1), date(1900, time.February, 28)},
		{"400-year leap", date(2000, time.February, 1), date(2000, time.February, 29)},
		{"December", date(2024, time.December, 5), date(2024, time.December, 31)},
		{"already last day", date(2024, time.April, 30), date(2024, time.April, 30)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Apply(TransformEndOfMonth, tt.in))
		})
	}
}

// Net terms must be indistinguishable from the generic add-days family.
func TestApply_NetTermsEquivalence(t *testing.T) {
	pairs := []struct {
		net, add DateTransform
	}{
		{TransformNet30, TransformAdd30Days},
		{TransformNet60, TransformAdd60Days},
	}

	// Sweep a full year of inputs including a leap day.
	start := date(2024, time.January, 1)
	for _, p := range pairs {
		for i := 0; i < 366; i++ {
			d := start.AddDate(0, 0, i)
			assert.Equal(t, Apply(p.add, d), Apply(p.net, d),
				"%s and %s must agree for %s", p.net, p.add, FormatDate(d))
		}
	}
}

func TestApply_AddDays(t *testing.T) {
	d := date(2024, time.January, 15)
	assert.Equal(t, date(2024, time.February, 14), Apply(TransformAdd30Days, d))
	assert.Equal(t, date(2024, time.March, 15), Apply(TransformAdd60Days, d))
	assert.Equal(t, date(2024, time.April, 14), Apply(TransformAdd90Days, d))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-15", date(2024, time.January, 15)},
		{"2024/01/15", date(2024, time.January, 15)},
		{"01/15/2024", date(2024, time.January, 15)},
		{"1/5/2024", date(2024, time.January, 5)},
		{"Jan 15, 2024", date(2024, time.January, 15)},
		{"15 Jan 2024", date(2024, time.January, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDate_Invalid(t *testing.T) {
	for _, in := range []string{"", "not a date", "2024-13-45", "soon"} {
		_, err := ParseDate(in)
		assert.Error(t, err, "input %q", in)
	}
}

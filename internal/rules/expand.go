package rules

import (
	"slices"
	"time"

	"parkpro-backend/internal/portal"
)

// DefaultHorizon is the number of days, today included, a rule looks ahead.
const DefaultHorizon = 15

// Expand returns the dates (YYYY-MM-DD) among the `horizon` days starting with
// the civil date of `today` whose weekday (0 = sunday) is in days and whose
// month (1 = january) is in months.
//
// Dates are derived with calendar arithmetic at noon UTC of the civil date, so
// the offset of today's location can never shift a date by one.
func Expand(today time.Time, horizon int, days, months []int) []string {
	year, month, day := today.Date()

	out := []string{}
	for i := 0; i < horizon; i++ {
		date := time.Date(year, month, day+i, 12, 0, 0, 0, time.UTC)
		if !slices.Contains(days, int(date.Weekday())) {
			continue
		}
		if !slices.Contains(months, int(date.Month())) {
			continue
		}
		out = append(out, date.Format(portal.DateLayout))
	}
	return out
}

// Covers reports whether a rule matches the weekday and month of date.
func Covers(rule Rule, date string) bool {
	parsed, err := time.Parse(portal.DateLayout, date)
	if err != nil {
		return false
	}
	return slices.Contains(rule.Days, int(parsed.Weekday())) &&
		slices.Contains(rule.Months, int(parsed.Month()))
}

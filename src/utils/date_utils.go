package utils

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// DefaultDateFormat is the calendar date layout used by the ledger and its store.
const DefaultDateFormat = "2006-01-02"

// ParseDate parses a calendar date in DefaultDateFormat and returns it at UTC midnight.
func ParseDate(dateStr string) (time.Time, error) {
	d, err := civil.ParseDate(strings.TrimSpace(dateStr))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date '%s' (expected YYYY-MM-DD): %w", dateStr, err)
	}
	return d.In(time.UTC), nil
}

// FormatDate renders t as a calendar date.
func FormatDate(t time.Time) string {
	return civil.DateOf(t).String()
}

// Date returns the calendar date of t at UTC midnight, with no time component.
func Date(t time.Time) time.Time {
	return civil.DateOf(t).In(time.UTC)
}

// AddDays moves t by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return civil.DateOf(t).AddDays(n).In(time.UTC)
}

// DaysBetween counts whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return civil.DateOf(b).DaysSince(civil.DateOf(a))
}

// YearBounds returns Jan 1 and Dec 31 of year.
func YearBounds(year int) (time.Time, time.Time) {
	return civil.Date{Year: year, Month: time.January, Day: 1}.In(time.UTC),
		civil.Date{Year: year, Month: time.December, Day: 31}.In(time.UTC)
}

// InYear reports whether t falls within [Jan 1, Dec 31] of year.
func InYear(t time.Time, year int) bool {
	return civil.DateOf(t).Year == year
}

// YearFraction is the elapsed share of t's calendar year, in [0, 1).
func YearFraction(t time.Time) float64 {
	start, end := YearBounds(t.Year())
	days := DaysBetween(start, end) + 1
	return float64(DaysBetween(start, t)) / float64(days)
}

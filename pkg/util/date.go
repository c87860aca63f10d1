package util

import (
	"time"
)

const dateLayout = "2006-01-02"

// DateOnly truncates t to UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date string as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// ParseDateDefault parses a date or returns default if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if s == "" {
		return def
	}
	t, err := ParseDate(s)
	if err != nil {
		return def
	}
	return t
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// AddDays shifts a date by n calendar days.
func AddDays(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole days from a to b. Negative
// when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)) / (24 * time.Hour))
}

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

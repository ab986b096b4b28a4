package types

import "time"

// Observation dates are day-granularity. All date values flowing through the
// engine are normalized to UTC midnight so map keys and SQL DATE comparisons
// behave consistently regardless of where the value originated.

// DateOnly truncates t to UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate reports whether a and b fall on the same UTC calendar day.
func SameDate(a, b time.Time) bool {
	return DateOnly(a).Equal(DateOnly(b))
}

// Package utils provides utility functions for the application.
package utils

import (
	"fmt"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCToday returns the current UTC calendar date at midnight
func UTCToday() time.Time {
	return DateOnly(UTCNow())
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC midnight time
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD in UTC
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

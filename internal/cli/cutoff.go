package cli

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted --date format
const DateLayout = "2006-01-02"

// DefaultCutoff returns midnight UTC on the first day of the month before now.
// Run on 2024-04-12 it returns 2024-03-01.
func DefaultCutoff(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, time.UTC)
}

// ParseCutoff parses a --date value. An empty value selects DefaultCutoff.
func ParseCutoff(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return DefaultCutoff(now), nil
	}
	cutoff, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("please ensure that the date is in the format YYYY-MM-DD. received: %s", value)
	}
	return cutoff, nil
}

package timeparser

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the Conso API for ranges and daily readings
const DateLayout = "2006-01-02"

// dateTimeLayouts are the ISO-8601 date-time shapes the API may send for load curve points
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05",                 // YYYY-MM-DDTHH:mm:ss
	"2006-01-02T15:04:05.999999999",       // with fractional seconds
	"2006-01-02T15:04:05Z07:00",           // with zone offset
	"2006-01-02T15:04:05.999999999Z07:00", // fractional seconds and zone offset
	"2006-01-02T15:04",                    // YYYY-MM-DDTHH:mm
	"2006-01-02T15",                       // YYYY-MM-DDTHH
}

// ParseCalendarDate parses a strict YYYY-MM-DD date as midnight UTC
func ParseCalendarDate(dateStr string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, dateStr, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date '%s': %w", dateStr, err)
	}
	return t, nil
}

// ParseReadingDate parses a reading date that is either a bare calendar date or a full date-time.
// A string containing a 'T' or a space is a date-time, the first space standing in for the 'T'.
// The returned bool reports whether a time component was present.
func ParseReadingDate(dateStr string) (time.Time, bool, error) {
	if !strings.ContainsAny(dateStr, "T ") {
		t, err := ParseCalendarDate(dateStr)
		return t, false, err
	}

	normalized := strings.Replace(dateStr, " ", "T", 1)

	var lastErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.ParseInLocation(layout, normalized, time.UTC)
		if err == nil {
			return t, true, nil
		}
		lastErr = err
	}

	return time.Time{}, true, fmt.Errorf("failed to parse timestamp '%s': %w", dateStr, lastErr)
}

// FormatDate renders t as a YYYY-MM-DD query parameter
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

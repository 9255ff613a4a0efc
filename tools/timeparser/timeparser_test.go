package timeparser

import (
	"testing"
	"time"
)

func TestParseCalendarDate(t *testing.T) {
	result, err := ParseCalendarDate("2024-01-15")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}

	expected := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseCalendarDate_RejectsTime(t *testing.T) {
	if _, err := ParseCalendarDate("2024-01-15T00:00:00"); err == nil {
		t.Error("Expected error for date with time component")
	}
}

func TestParseReadingDate_DateOnly(t *testing.T) {
	result, hasTime, err := ParseReadingDate("2024-01-15")
	if err != nil {
		t.Fatalf("Failed to parse date: %v", err)
	}
	if hasTime {
		t.Error("Expected date-only value")
	}

	expected := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingDate_TSeparator(t *testing.T) {
	result, hasTime, err := ParseReadingDate("2024-01-15T14:30:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if !hasTime {
		t.Error("Expected date-time value")
	}

	expected := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingDate_SpaceSeparator(t *testing.T) {
	result, hasTime, err := ParseReadingDate("2024-01-15 14:30:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if !hasTime {
		t.Error("Expected date-time value")
	}

	expected := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingDate_Offset(t *testing.T) {
	result, _, err := ParseReadingDate("2024-01-15T14:30:00+01:00")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
}

func TestParseReadingDate_Invalid(t *testing.T) {
	for _, s := range []string{"invalid-date-string", "2024-13-01", "2024-01-15Tnoon", ""} {
		if _, _, err := ParseReadingDate(s); err == nil {
			t.Errorf("Expected error for %q", s)
		}
	}
}

func TestFormatDate(t *testing.T) {
	got := FormatDate(time.Date(2024, 3, 7, 22, 10, 0, 0, time.UTC))
	if got != "2024-03-07" {
		t.Errorf("Expected 2024-03-07, got %s", got)
	}
}

package metering

import (
	"fmt"
	"time"

	"github.com/septivank/conso-metering/tools/timeparser"
)

// MeasurementKind is the physical quantity a reading batch measures
type MeasurementKind string

const (
	Energy MeasurementKind = "energy"
	Power  MeasurementKind = "power"
)

// ParseMeasurementKind maps a wire value onto the closed set of kinds
func ParseMeasurementKind(s string) (MeasurementKind, error) {
	switch MeasurementKind(s) {
	case Energy, Power:
		return MeasurementKind(s), nil
	default:
		return "", fmt.Errorf("%w: invalid measurement_kind %q", ErrMalformedResponse, s)
	}
}

// Aggregate is how readings within a measuring period were reduced
type Aggregate string

const (
	Sum     Aggregate = "sum"
	Average Aggregate = "average"
	Maximum Aggregate = "maximum"
)

// ParseAggregate maps a wire value onto the closed set of aggregates
func ParseAggregate(s string) (Aggregate, error) {
	switch Aggregate(s) {
	case Sum, Average, Maximum:
		return Aggregate(s), nil
	default:
		return "", fmt.Errorf("%w: invalid aggregate %q", ErrMalformedResponse, s)
	}
}

// ReadingType describes how to interpret a batch of readings
type ReadingType struct {
	Unit            string
	MeasurementKind MeasurementKind
	Aggregate       Aggregate
	// MeasuringPeriod is an ISO-8601 duration such as "P1D", nil when not sent
	MeasuringPeriod *string
}

// Timestamp is either a calendar date or a full date-time, as sent by the server.
// Daily endpoints send dates, load curves send date-times.
type Timestamp struct {
	t       time.Time
	hasTime bool
}

// DateOnly builds a date-only timestamp from the calendar date of t
func DateOnly(t time.Time) Timestamp {
	return Timestamp{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// DateTime builds a timestamp carrying a time component
func DateTime(t time.Time) Timestamp {
	return Timestamp{t: t, hasTime: true}
}

// IsDateOnly reports whether the source carried no time component
func (ts Timestamp) IsDateOnly() bool {
	return !ts.hasTime
}

// Time returns the instant; midnight UTC for date-only values
func (ts Timestamp) Time() time.Time {
	return ts.t
}

// Date returns the calendar date as midnight UTC
func (ts Timestamp) Date() time.Time {
	return time.Date(ts.t.Year(), ts.t.Month(), ts.t.Day(), 0, 0, 0, 0, time.UTC)
}

// Equal compares granularity and instant
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.hasTime == other.hasTime && ts.t.Equal(other.t)
}

func (ts Timestamp) String() string {
	if !ts.hasTime {
		return ts.t.Format(timeparser.DateLayout)
	}
	if ts.t.Location() == time.UTC {
		return ts.t.Format("2006-01-02T15:04:05")
	}
	return ts.t.Format(time.RFC3339)
}

// IntervalReading is one measurement in a record
type IntervalReading struct {
	Value int64
	Date  Timestamp
	// IntervalLength is an ISO-8601 duration such as "PT30M", nil when not sent
	IntervalLength *string
	// MeasureType is an opaque single-letter code, nil when not sent
	MeasureType *string
}

// MeteringData is the record returned by every metering endpoint.
// It is built once by the mapper and never mutated. ReadingType is exposed by
// value, so its MeasuringPeriod pointer is shared with the record.
type MeteringData struct {
	UsagePointID string
	Start        time.Time
	End          time.Time
	Quality      string
	ReadingType  ReadingType

	readings []IntervalReading
}

// NewMeteringData assembles a record, deep-copying readingType and readings
func NewMeteringData(usagePointID string, start, end time.Time, quality string, readingType ReadingType, readings []IntervalReading) *MeteringData {
	readingType.MeasuringPeriod = cloneString(readingType.MeasuringPeriod)
	return &MeteringData{
		UsagePointID: usagePointID,
		Start:        start,
		End:          end,
		Quality:      quality,
		ReadingType:  readingType,
		readings:     cloneReadings(readings),
	}
}

// Readings returns a deep copy of the readings in server order
func (m *MeteringData) Readings() []IntervalReading {
	return cloneReadings(m.readings)
}

// Len returns the number of readings
func (m *MeteringData) Len() int {
	return len(m.readings)
}

// Total is the sum of all reading values, 0 when there are none
func (m *MeteringData) Total() int64 {
	var total int64
	for _, r := range m.readings {
		total += r.Value
	}
	return total
}

// Average is Total divided by the reading count, 0.0 when there are none
func (m *MeteringData) Average() float64 {
	if len(m.readings) == 0 {
		return 0.0
	}
	return float64(m.Total()) / float64(len(m.readings))
}

func cloneReadings(readings []IntervalReading) []IntervalReading {
	if readings == nil {
		return nil
	}
	out := make([]IntervalReading, len(readings))
	for i, r := range readings {
		r.IntervalLength = cloneString(r.IntervalLength)
		r.MeasureType = cloneString(r.MeasureType)
		out[i] = r
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

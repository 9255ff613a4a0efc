package metering

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/septivank/conso-metering/tools/timeparser"
)

// ErrMalformedResponse is wrapped by every schema violation found while mapping a payload
var ErrMalformedResponse = errors.New("malformed response")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}

// Decode parses a JSON response body into a record
func Decode(body []byte) (*MeteringData, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, malformed("invalid JSON body: %v", err)
	}
	if raw == nil {
		return nil, malformed("body is not a JSON object")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, malformed("trailing data after JSON object")
	}
	return FromMap(raw)
}

// FromMap maps a decoded response payload onto a record.
// Any violation aborts the mapping; no partial record is returned.
func FromMap(raw map[string]any) (*MeteringData, error) {
	usagePointID, err := requiredString(raw, "usage_point_id")
	if err != nil {
		return nil, err
	}
	start, err := requiredDate(raw, "start")
	if err != nil {
		return nil, err
	}
	end, err := requiredDate(raw, "end")
	if err != nil {
		return nil, err
	}
	quality, err := requiredString(raw, "quality")
	if err != nil {
		return nil, err
	}

	rtRaw, ok := raw["reading_type"]
	if !ok {
		return nil, malformed("missing key %q", "reading_type")
	}
	rtMap, ok := rtRaw.(map[string]any)
	if !ok {
		return nil, malformed("%q is %T, not an object", "reading_type", rtRaw)
	}
	readingType, err := ParseReadingType(rtMap)
	if err != nil {
		return nil, err
	}

	var readings []IntervalReading
	if list, ok := raw["interval_reading"]; ok && list != nil {
		items, ok := list.([]any)
		if !ok {
			return nil, malformed("%q is %T, not a list", "interval_reading", list)
		}
		readings = make([]IntervalReading, 0, len(items))
		for i, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				return nil, malformed("interval_reading[%d] is %T, not an object", i, item)
			}
			reading, err := ParseIntervalReading(entry)
			if err != nil {
				return nil, fmt.Errorf("interval_reading[%d]: %w", i, err)
			}
			readings = append(readings, reading)
		}
	}

	return &MeteringData{
		UsagePointID: usagePointID,
		Start:        start,
		End:          end,
		Quality:      quality,
		ReadingType:  readingType,
		readings:     readings,
	}, nil
}

// ParseReadingType maps the reading_type sub-object
func ParseReadingType(raw map[string]any) (ReadingType, error) {
	unit, err := requiredString(raw, "unit")
	if err != nil {
		return ReadingType{}, err
	}
	kindStr, err := requiredString(raw, "measurement_kind")
	if err != nil {
		return ReadingType{}, err
	}
	kind, err := ParseMeasurementKind(kindStr)
	if err != nil {
		return ReadingType{}, err
	}
	aggStr, err := requiredString(raw, "aggregate")
	if err != nil {
		return ReadingType{}, err
	}
	agg, err := ParseAggregate(aggStr)
	if err != nil {
		return ReadingType{}, err
	}
	period, err := optionalString(raw, "measuring_period")
	if err != nil {
		return ReadingType{}, err
	}

	return ReadingType{
		Unit:            unit,
		MeasurementKind: kind,
		Aggregate:       agg,
		MeasuringPeriod: period,
	}, nil
}

// ParseIntervalReading maps one interval_reading entry.
// The date keeps whichever granularity the server sent.
func ParseIntervalReading(raw map[string]any) (IntervalReading, error) {
	rawValue, ok := raw["value"]
	if !ok {
		return IntervalReading{}, malformed("missing key %q", "value")
	}
	value, err := coerceInt(rawValue)
	if err != nil {
		return IntervalReading{}, err
	}

	dateStr, err := requiredString(raw, "date")
	if err != nil {
		return IntervalReading{}, err
	}
	t, hasTime, err := timeparser.ParseReadingDate(dateStr)
	if err != nil {
		return IntervalReading{}, malformed("%v", err)
	}
	date := DateOnly(t)
	if hasTime {
		date = DateTime(t)
	}

	intervalLength, err := optionalString(raw, "interval_length")
	if err != nil {
		return IntervalReading{}, err
	}
	measureType, err := optionalString(raw, "measure_type")
	if err != nil {
		return IntervalReading{}, err
	}

	return IntervalReading{
		Value:          value,
		Date:           date,
		IntervalLength: intervalLength,
		MeasureType:    measureType,
	}, nil
}

func requiredString(raw map[string]any, key string) (string, error) {
	v, ok := raw[key]
	if !ok {
		return "", malformed("missing key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed("%q is %T, not a string", key, v)
	}
	return s, nil
}

func optionalString(raw map[string]any, key string) (*string, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, malformed("%q is %T, not a string", key, v)
	}
	return &s, nil
}

func requiredDate(raw map[string]any, key string) (time.Time, error) {
	s, err := requiredString(raw, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := timeparser.ParseCalendarDate(s)
	if err != nil {
		return time.Time{}, malformed("%q: %v", key, err)
	}
	return t, nil
}

// coerceInt accepts numeric strings, as the API sends them, and integral JSON numbers
func coerceInt(v any) (int64, error) {
	switch n := v.(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, malformed("value %q is not an integer", n)
		}
		return i, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, malformed("value %s is not an integer", n)
		}
		return i, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, malformed("value %v is not an integer", n)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, malformed("value %v overflows int64", n)
		}
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, malformed("value is %T, not a number", v)
	}
}

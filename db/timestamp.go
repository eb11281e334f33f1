package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimestamp is returned when a stored value cannot be read as an instant
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// epoch values above this are treated as milliseconds (roughly year 2286 in seconds)
const epochMillisThreshold = 1e10

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ToInstant converts any timestamp shape found in issue documents into a UTC
// time.Time. Accepted shapes: time.Time, *time.Time, values with AsTime()
// (protobuf timestamps), ISO-8601 strings, epoch seconds or milliseconds as
// numbers or numeric strings, and {seconds, nanoseconds} maps as produced by
// serialized Firestore timestamps.
func ToInstant(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: missing value", ErrInvalidTimestamp)
	case time.Time:
		if t.IsZero() {
			return time.Time{}, fmt.Errorf("%w: zero time", ErrInvalidTimestamp)
		}
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, fmt.Errorf("%w: missing value", ErrInvalidTimestamp)
		}
		return ToInstant(*t)
	case interface{ AsTime() time.Time }:
		return ToInstant(t.AsTime())
	case string:
		return parseTimestampString(t)
	case json.Number:
		return parseTimestampString(t.String())
	case int:
		return fromEpoch(float64(t))
	case int32:
		return fromEpoch(float64(t))
	case int64:
		return fromEpoch(float64(t))
	case float64:
		return fromEpoch(t)
	case map[string]interface{}:
		return fromSecondsMap(t)
	}
	return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidTimestamp, v)
}

func parseTimestampString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidTimestamp)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized format %q", ErrInvalidTimestamp, s)
}

func fromEpoch(f float64) (time.Time, error) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%w: epoch %v", ErrInvalidTimestamp, f)
	}
	if f >= epochMillisThreshold {
		return time.UnixMilli(int64(f)).UTC(), nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func fromSecondsMap(m map[string]interface{}) (time.Time, error) {
	secRaw, ok := m["seconds"]
	if !ok {
		secRaw, ok = m["_seconds"]
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: map without seconds", ErrInvalidTimestamp)
	}
	sec, err := toInt64(secRaw)
	if err != nil {
		return time.Time{}, err
	}
	var nanos int64
	if n, ok := m["nanoseconds"]; ok {
		nanos, err = toInt64(n)
	} else if n, ok := m["_nanoseconds"]; ok {
		nanos, err = toInt64(n)
	}
	if err != nil {
		return time.Time{}, err
	}
	if sec <= 0 {
		return time.Time{}, fmt.Errorf("%w: seconds %d", ErrInvalidTimestamp, sec)
	}
	return time.Unix(sec, nanos).UTC(), nil
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("%w: %v is not a whole number", ErrInvalidTimestamp, n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("%w: unsupported number type %T", ErrInvalidTimestamp, v)
}

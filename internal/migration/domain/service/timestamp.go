package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "cosmo-migrator/internal/shared/errors"
)

const sourceTimestampLayout = "2006-01-02T15:04:05"

// ParseTimestampMillis converts the source's textual timestamp into epoch
// milliseconds. Fractional seconds beyond six digits are dropped, a missing
// UTC marker is treated as UTC, and the result is rounded to the nearest
// millisecond. A trailing "Z" or "±hh:mm" offset is applied.
func ParseTimestampMillis(value string) (int64, error) {
	s, offset, err := splitOffset(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}

	base, frac, hasFrac := strings.Cut(s, ".")
	t, err := time.ParseInLocation(sourceTimestampLayout, base, time.UTC)
	if err != nil {
		return 0, err
	}
	var micros int64
	if hasFrac {
		if micros, err = parseMicros(frac); err != nil {
			return 0, err
		}
	}
	return t.Add(-offset).UnixMilli() + (micros+500)/1000, nil
}

// splitOffset removes a trailing zone designator and returns it as a
// duration east of UTC.
func splitOffset(s string) (string, time.Duration, error) {
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		return s[:len(s)-1], 0, nil
	}
	n := len(s)
	if n < 6 || s[n-3] != ':' || (s[n-6] != '+' && s[n-6] != '-') {
		return s, 0, nil
	}
	zone, err := time.Parse("-07:00", s[n-6:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid offset %q: %w", s[n-6:], err)
	}
	_, secs := zone.Zone()
	return s[:n-6], time.Duration(secs) * time.Second, nil
}

// parseMicros reads up to six fractional digits as microseconds. Further
// digits are dropped; anything else is rejected.
func parseMicros(frac string) (int64, error) {
	if frac == "" {
		return 0, fmt.Errorf("empty fractional seconds")
	}
	for _, c := range frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid fractional seconds %q", frac)
		}
	}
	if len(frac) > 6 {
		frac = frac[:6]
	}
	var micros int64
	for _, c := range frac {
		micros = micros*10 + int64(c-'0')
	}
	for i := len(frac); i < 6; i++ {
		micros *= 10
	}
	return micros, nil
}

// ToEpochMillis normalizes one timestamp field value. Integers are already
// normalized and reported unchanged; strings and time values are converted.
func ToEpochMillis(field string, raw interface{}) (int64, bool, error) {
	switch v := raw.(type) {
	case nil:
		return 0, false, nil
	case int, int32, int64, float64, float32, uint, uint32, uint64, json.Number:
		return 0, false, nil
	case time.Time:
		return v.UnixMilli(), true, nil
	case string:
		millis, err := ParseTimestampMillis(v)
		if err != nil {
			return 0, false, apperrors.NewMalformedTimestamp(field, v, err)
		}
		return millis, true, nil
	}
	return 0, false, apperrors.NewMalformedTimestamp(field, fmt.Sprint(raw), fmt.Errorf("unsupported type %T", raw))
}

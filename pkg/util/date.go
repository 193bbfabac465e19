package util

import (
	"strconv"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight. RFC3339 and unix
// inputs are accepted too and truncated to their UTC day.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(DateLayout, s, time.UTC); err == nil {
		return t, true
	}
	if t, ok := ParseTime(s); ok {
		return StartOfDay(t), true
	}
	return time.Time{}, false
}

// ParseDateDefault parses a date or returns def if empty/invalid.
func ParseDateDefault(s string, def time.Time) time.Time {
	if t, ok := ParseDate(s); ok {
		return t
	}
	return def
}

// StartOfDay returns UTC midnight of t's UTC day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AlignDateRange orders from/to and snaps both to UTC midnight.
func AlignDateRange(from, to time.Time) (time.Time, time.Time) {
	from, to = StartOfDay(from), StartOfDay(to)
	if to.Before(from) {
		from, to = to, from
	}
	return from, to
}

// Package jpdate normalizes the date representations that have accumulated in
// the schedules collection over time (native timestamps, epoch numbers, ISO
// strings, loose "YYYY/M/D H:MM" strings) into instants and canonical
// YYYY-MM-DD day keys on the JST wall clock.
package jpdate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// JST is the fixed reference zone. No daylight saving.
var JST = time.FixedZone("JST", 9*60*60)

var (
	dayKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	loosePattern  = regexp.MustCompile(`^(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})(?:\s+(\d{1,2}):(\d{1,2}))?$`)
)

var weekdayKanji = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// ParseAny converts a value of unknown shape into an instant. It never panics;
// unparseable input yields ok=false.
func ParseAny(v any) (time.Time, bool) {
	switch value := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if value.IsZero() {
			return time.Time{}, false
		}
		return value, true
	case *time.Time:
		if value == nil || value.IsZero() {
			return time.Time{}, false
		}
		return *value, true
	case int:
		return fromEpoch(float64(value))
	case int64:
		return fromEpoch(float64(value))
	case float64:
		return fromEpoch(value)
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	case string:
		return parseString(value)
	case map[string]any:
		// Firestore-style {seconds, nanoseconds} maps survive in imported data.
		if secs, ok := numberField(value, "seconds"); ok {
			nanos, _ := numberField(value, "nanoseconds")
			return time.Unix(int64(secs), int64(nanos)), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// DayKey derives the canonical calendar-day string for a value. A string that
// is already exactly YYYY-MM-DD is returned verbatim, bypassing zone
// conversion, so stored day strings never shift by a day.
func DayKey(v any) (string, bool) {
	if s, ok := v.(string); ok && dayKeyPattern.MatchString(s) {
		return s, true
	}
	t, ok := ParseAny(v)
	if !ok {
		return "", false
	}
	return t.In(JST).Format("2006-01-02"), true
}

// DayRange returns the half-open interval [D 00:00 JST, D+1 00:00 JST) for a
// canonical day key.
func DayRange(dayKey string) (start, end time.Time, err error) {
	if !dayKeyPattern.MatchString(dayKey) {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid day key %q", dayKey)
	}
	start, err = time.ParseInLocation("2006-01-02", dayKey, JST)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse day key %q: %w", dayKey, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// InDay reports whether t falls inside the day key's half-open interval.
func InDay(t time.Time, dayKey string) bool {
	start, end, err := DayRange(dayKey)
	if err != nil {
		return false
	}
	return !t.Before(start) && t.Before(end)
}

// FormatLong renders an instant as the long JP date, e.g. 2025年9月9日（火）.
func FormatLong(t time.Time) string {
	j := t.In(JST)
	return fmt.Sprintf("%d年%d月%d日（%s）", j.Year(), int(j.Month()), j.Day(), weekdayKanji[j.Weekday()])
}

// FormatShort renders an instant as e.g. 9月9日(火).
func FormatShort(t time.Time) string {
	j := t.In(JST)
	return fmt.Sprintf("%d月%d日(%s)", int(j.Month()), j.Day(), weekdayKanji[j.Weekday()])
}

// FormatDateTime renders an instant as e.g. 2025/09/09 08:30 on the JST clock.
func FormatDateTime(t time.Time) string {
	return t.In(JST).Format("2006/01/02 15:04")
}

func fromEpoch(v float64) (time.Time, bool) {
	if v <= 0 {
		return time.Time{}, false
	}
	// Values above 1e12 are milliseconds, else seconds.
	if v > 1e12 {
		return time.UnixMilli(int64(v)), true
	}
	return time.Unix(int64(v), 0), true
}

func parseString(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if dayKeyPattern.MatchString(s) {
		// A bare day string has no zone of its own; anchor it to JST midnight.
		t, err := time.ParseInLocation("2006-01-02", s, JST)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, s, JST); err == nil {
			return t, true
		}
	}
	m := loosePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, minute := 0, 0
	if m[4] != "" {
		hour, _ = strconv.Atoi(m[4])
		minute, _ = strconv.Atoi(m[5])
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, JST), true
}

func numberField(m map[string]any, key string) (float64, bool) {
	switch n := m[key].(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

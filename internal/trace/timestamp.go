package trace

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// secondsCutoff separates epoch seconds from epoch milliseconds.
// 1e11 seconds is in the year 5138, 1e11 milliseconds is March 1973.
const secondsCutoff = 1e11

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp converts a backend timestamp into milliseconds since epoch.
// Numbers below 1e11 are epoch seconds, larger numbers are already milliseconds.
// Strings may be ISO-8601 (zone optional) or numeric. Zone-less strings are UTC.
func ParseTimestamp(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, fmt.Errorf("timestamp is null")
	case float64:
		return fromNumber(val)
	case float32:
		return fromNumber(float64(val))
	case int:
		return fromNumber(float64(val))
	case int64:
		return fromNumber(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid numeric timestamp %q: %w", val.String(), err)
		}
		return fromNumber(f)
	case time.Time:
		if val.IsZero() {
			return 0, fmt.Errorf("timestamp is zero")
		}
		return val.UnixMilli(), nil
	case string:
		return parseTimestampString(val)
	default:
		return 0, fmt.Errorf("unsupported timestamp type %T", v)
	}
}

func fromNumber(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("invalid numeric timestamp %v", f)
	}
	if f < secondsCutoff {
		return int64(math.Round(f * 1000)), nil
	}
	return int64(math.Round(f)), nil
}

func parseTimestampString(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("timestamp is empty")
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromNumber(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders a millisecond timestamp in local time
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05.000")
}

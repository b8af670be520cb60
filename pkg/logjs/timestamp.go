package logjs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var jsonTimeKeys = []string{"timestamp", "time", "ts", "@timestamp"}

// LineTime finds a timestamp at the start of a plain log line, or in the
// usual keys of a JSON line.
func LineTime(line string) (time.Time, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return time.Time{}, false
	}

	if line[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err == nil {
			for _, k := range jsonTimeKeys {
				switch v := obj[k].(type) {
				case string:
					if t, err := dateparse.ParseAny(v); err == nil {
						return t, true
					}
				case float64:
					return fromEpoch(int64(v)), true
				}
			}
			return time.Time{}, false
		}
	}

	fields := strings.Fields(line)
	for n := min(3, len(fields)); n >= 1; n-- {
		candidate := strings.Trim(strings.Join(fields[:n], " "), "[]")
		if t, err := dateparse.ParseAny(candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseSince reads a --since value: a duration back from now ("15m") or
// any timestamp dateparse understands.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return dateparse.ParseLocal(s)
}

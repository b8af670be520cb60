package logjs

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is one log line after the script's parse, filter and transform
// hooks have run.
type Event struct {
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields"`
	Service    string         `json:"service"`
	Stream     string         `json:"stream"`
	Raw        string         `json:"raw"`
	LineNumber int64          `json:"lineNumber"`
}

// String renders e as a single log line: timestamp, level, message, then
// fields sorted by key.
func (e *Event) String() string {
	var b strings.Builder
	if e.Timestamp != nil {
		b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
		b.WriteByte(' ')
	}
	if e.Level != "" {
		fmt.Fprintf(&b, "[%s] ", e.Level)
	}
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

type Stats struct {
	LinesProcessed int64
	EventsEmitted  int64
	LinesDropped   int64
	HookErrors     int64
	HookTimeouts   int64
}

type Options struct {
	// HookTimeout bounds each call into the script. Zero disables it.
	HookTimeout time.Duration
}

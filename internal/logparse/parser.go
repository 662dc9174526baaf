// Package logparse extracts timestamped payloads from session log lines.
//
// The parser is intentionally lossy: anything that does not match the
// expected shapes (bad timestamp, bad JSON, unrelated log noise) is
// skipped without error so a partial or mangled capture still analyzes.
package logparse

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

var (
	timestampRe = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2}\.\d{3})\]\s*(.*)$`)
	messageRe   = regexp.MustCompile(`(Caller|Agent)[^{]*message from \w+: ({.*})`)
)

// Line is one successfully parsed log line. Exactly one of Payload or
// Text is meaningful: Payload for the structured "message from <provider>"
// shape, Text for the secondary free-text shape.
type Line struct {
	Timestamp time.Time
	Channel   string // "Caller" or "Agent", empty for free-text lines
	Payload   map[string]any
	Text      string
}

// Parse extracts a timestamp and payload from one log line. The second
// return value is false when the line does not match either shape.
func Parse(raw string) (Line, bool) {
	m := timestampRe.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Line{}, false
	}

	ts, err := time.Parse("15:04:05.000", m[1])
	if err != nil {
		return Line{}, false
	}
	rest := m[2]

	if mm := messageRe.FindStringSubmatch(rest); mm != nil {
		var payload map[string]any
		if err := json.Unmarshal([]byte(mm[2]), &payload); err != nil {
			// Truncated or mangled JSON, drop the line.
			return Line{}, false
		}
		return Line{Timestamp: ts, Channel: mm[1], Payload: payload}, true
	}

	// Secondary free-text shape: auxiliary messages with no JSON body.
	// Classification by substring happens downstream.
	if rest == "" {
		return Line{}, false
	}
	return Line{Timestamp: ts, Text: rest}, true
}

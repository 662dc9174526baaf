package event

import (
	"strings"

	"github.com/tjfontaine/realtime-session-analyzer/internal/logparse"
)

// Classify maps a parsed log line to a typed Event. The second return
// value is false when the line carries no event the engine understands;
// classification never fails, it degrades to "no event produced".
func Classify(line logparse.Line) (Event, bool) {
	if line.Payload != nil {
		return classifyPayload(line)
	}
	return classifyText(line)
}

func classifyPayload(line logparse.Line) (Event, bool) {
	typ, _ := line.Payload["type"].(string)
	kind := Kind(typ)
	if !Known(kind) {
		return Event{}, false
	}

	side := SideAgent
	if line.Channel == "Caller" {
		side = SideCaller
	}

	return Event{
		Timestamp:  line.Timestamp,
		Side:       side,
		Kind:       kind,
		ResponseID: responseID(line.Payload),
		Fields:     line.Payload,
	}, true
}

// responseID pulls the correlation id from a payload. Most events carry a
// flat "response_id"; response.created nests it as response.id.
func responseID(payload map[string]any) string {
	if id, ok := payload["response_id"].(string); ok && id != "" {
		return id
	}
	if resp, ok := payload["response"].(map[string]any); ok {
		if id, ok := resp["id"].(string); ok {
			return id
		}
	}
	return ""
}

// classifyText handles the secondary free-text markers. These are lower
// fidelity than the JSON messages: no correlation id, side inferred from
// a case-insensitive substring.
func classifyText(line logparse.Line) (Event, bool) {
	text := line.Text
	lower := strings.ToLower(text)

	side := SideAgent
	if strings.Contains(lower, "caller") {
		side = SideCaller
	}

	switch {
	case strings.Contains(text, "Cleared") && strings.Contains(lower, "input audio buffer"):
		return Event{Timestamp: line.Timestamp, Side: side, Kind: KindBufferCleared}, true
	case strings.Contains(lower, "committed") && strings.Contains(lower, "input audio buffer"):
		return Event{Timestamp: line.Timestamp, Side: side, Kind: KindBufferCommitted}, true
	}
	return Event{}, false
}

// Package transcript measures conversation context growth. The realtime
// API slows down as the conversation it carries grows; this package
// turns the transcripts embedded in terminal response payloads into a
// cumulative token series the trend detector can classify.
package transcript

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/realtime-session-analyzer/internal/cycle"
)

// Counter tokenizes response transcripts.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter returns a counter backed by the o200k vocabulary, which the
// gpt-4o realtime models bill against.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.Get(tokenizer.O200kBase)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// CycleTokens counts the transcript tokens of one cycle's terminal
// response. Cycles without a response payload or without transcript
// content count as zero; extraction is best effort and never fails.
func (c *Counter) CycleTokens(cy *cycle.Cycle) int {
	text := Text(cy.Response)
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// CumulativeSeries returns, per cycle, the total transcript tokens
// accumulated up to and including that cycle. The series feeds the same
// trend classifier as the timing metrics.
func (c *Counter) CumulativeSeries(cycles []*cycle.Cycle) []float64 {
	out := make([]float64, len(cycles))
	total := 0
	for i, cy := range cycles {
		total += c.CycleTokens(cy)
		out[i] = float64(total)
	}
	return out
}

// Text pulls the transcript strings out of a response.done payload:
// response.output[].content[].transcript, joined with newlines.
func Text(payload map[string]any) string {
	resp, ok := payload["response"].(map[string]any)
	if !ok {
		return ""
	}
	output, ok := resp["output"].([]any)
	if !ok {
		return ""
	}

	var parts []string
	for _, item := range output {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		content, ok := m["content"].([]any)
		if !ok {
			continue
		}
		for _, entry := range content {
			em, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := em["transcript"].(string); ok && t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, "\n")
}

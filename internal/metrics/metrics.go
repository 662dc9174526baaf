// Package metrics derives inter-cycle gaps and intra-cycle durations from
// finalized cycles. Everything here is a pure function over the
// reconstructor's output.
package metrics

import (
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/cycle"
	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
)

// Gap is the idle interval between two adjacent cycles on one side.
type Gap struct {
	FromID   int
	ToID     int
	Duration time.Duration

	// Approximate is set when the earlier cycle has no terminal
	// milestone and the gap was computed from its latest available
	// milestone instead. Callers must treat these differently.
	Approximate bool

	// Negative flags out-of-order input; the gap is reported, not
	// silently accepted.
	Negative bool
}

// Gaps computes the gap between each adjacent pair of cycles, preserving
// order. Terminals gives the preference order for the effective-end
// milestone.
func Gaps(cycles []*cycle.Cycle, terminals []event.Kind) []Gap {
	if len(cycles) < 2 {
		return nil
	}
	gaps := make([]Gap, 0, len(cycles)-1)
	for i := 1; i < len(cycles); i++ {
		prev, curr := cycles[i-1], cycles[i]
		end, approx := effectiveEnd(prev, terminals)
		d := curr.Anchor.Sub(end)
		gaps = append(gaps, Gap{
			FromID:      prev.ID,
			ToID:        curr.ID,
			Duration:    d,
			Approximate: approx,
			Negative:    d < 0,
		})
	}
	return gaps
}

// effectiveEnd is the terminal milestone timestamp when present,
// otherwise the latest recorded milestone (approximate), otherwise the
// anchor itself.
func effectiveEnd(c *cycle.Cycle, terminals []event.Kind) (time.Time, bool) {
	for _, t := range terminals {
		if ts, ok := c.Milestone(t); ok {
			return ts, false
		}
	}
	latest := c.Anchor
	for _, ts := range c.Milestones {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, true
}

// Durations are the named intra-cycle offsets. Fields are nil when the
// corresponding milestone is absent; absence is never reported as zero.
type Durations struct {
	// Total is terminal minus anchor.
	Total *time.Duration
	// TimeToFirstOutput is response.output_item.added minus anchor.
	TimeToFirstOutput *time.Duration
	// TimeToFirstAudio is response.audio.delta minus anchor.
	TimeToFirstAudio *time.Duration
	// SpeechDuration is speech_stopped minus speech_started.
	SpeechDuration *time.Duration
	// SpeechToResponse is response.created minus speech_stopped.
	SpeechToResponse *time.Duration
	// Processing is the terminal minus response.created.
	Processing *time.Duration
}

// Compute derives the named durations for one cycle.
func Compute(c *cycle.Cycle, terminals []event.Kind) Durations {
	var d Durations

	var end time.Time
	var haveEnd bool
	for _, t := range terminals {
		if ts, ok := c.Milestone(t); ok {
			end, haveEnd = ts, true
			break
		}
	}

	if haveEnd {
		d.Total = since(c.Anchor, end)
	}
	if ts, ok := c.Milestone(event.KindOutputItemAdded); ok {
		d.TimeToFirstOutput = since(c.Anchor, ts)
	}
	if ts, ok := c.Milestone(event.KindAudioDelta); ok {
		d.TimeToFirstAudio = since(c.Anchor, ts)
	}

	started, okStart := c.Milestone(event.KindSpeechStarted)
	stopped, okStop := c.Milestone(event.KindSpeechStopped)
	if okStart && okStop {
		d.SpeechDuration = since(started, stopped)
	}
	created, okCreated := c.Milestone(event.KindResponseCreated)
	if okStop && okCreated {
		d.SpeechToResponse = since(stopped, created)
	}
	if okCreated && haveEnd {
		d.Processing = since(created, end)
	}
	return d
}

// Series collects one named duration across cycles as milliseconds,
// skipping cycles where it is absent. The pick function selects the
// field from each cycle's Durations.
func Series(cycles []*cycle.Cycle, terminals []event.Kind, pick func(Durations) *time.Duration) []float64 {
	var out []float64
	for _, c := range cycles {
		if v := pick(Compute(c, terminals)); v != nil {
			out = append(out, float64(v.Milliseconds()))
		}
	}
	return out
}

// GapSeries converts gaps to a millisecond series for trend analysis.
func GapSeries(gaps []Gap) []float64 {
	out := make([]float64, len(gaps))
	for i, g := range gaps {
		out[i] = float64(g.Duration.Milliseconds())
	}
	return out
}

func since(from, to time.Time) *time.Duration {
	d := to.Sub(from)
	return &d
}

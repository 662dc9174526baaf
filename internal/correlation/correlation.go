// Package correlation cross-references reconstructed cycles to quantify
// how overlapping speech (interruption) associates with cycles that never
// completed. Pure reporting over the reconstructor's output.
package correlation

import (
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/cycle"
)

// Interruption describes one anchor that arrived while a correlated
// response was still in flight on the same side.
type Interruption struct {
	// CycleID is the superseding cycle, InterruptedID the one cut short.
	CycleID       int
	InterruptedID int
	Side          string
	ResponseID    string
	// Running is how long the interrupted response had been in flight.
	Running time.Duration
}

// Degradation compares completion rates between the first and last half
// of the session. Present only when at least six cycles exist.
type Degradation struct {
	FirstHalfRate float64
	LastHalfRate  float64
	Degraded      bool
}

// Result is the full correlation summary.
type Result struct {
	TotalCycles      int
	CompleteCycles   int
	IncompleteCycles int
	// CompletionRate is a percentage; zero when no cycles exist (the
	// caller must treat TotalCycles == 0 as the no-data sentinel).
	CompletionRate float64

	Interruptions []Interruption

	// Set cardinalities over response ids.
	Interrupted              int
	InterruptedAndIncomplete int
	InterruptedButComplete   int
	IncompleteNotInterrupted int

	// CorrelationPct is the share of interrupted responses that are also
	// incomplete. Zero when nothing was interrupted.
	CorrelationPct float64

	Degradation *Degradation
}

// Analyze computes the correlation summary over cycles ordered by id.
func Analyze(cycles []*cycle.Cycle) Result {
	res := Result{TotalCycles: len(cycles)}
	if len(cycles) == 0 {
		return res
	}

	incomplete := make(map[string]bool)
	complete := make(map[string]bool)
	interrupted := make(map[string]bool)

	bySide := make(map[string][]*cycle.Cycle)
	for _, c := range cycles {
		bySide[string(c.Side)] = append(bySide[string(c.Side)], c)

		if c.IsComplete() {
			res.CompleteCycles++
			if c.ResponseID != "" {
				complete[c.ResponseID] = true
			}
		} else {
			res.IncompleteCycles++
			if c.ResponseID != "" {
				incomplete[c.ResponseID] = true
			}
		}
	}
	res.CompletionRate = float64(res.CompleteCycles) / float64(res.TotalCycles) * 100

	// A superseded cycle with a bound response id was interrupted: the
	// next anchor on its side arrived while its response was in flight.
	for side, sideCycles := range bySide {
		for i, c := range sideCycles {
			if c.Status != cycle.StatusSuperseded || c.ResponseID == "" {
				continue
			}
			interrupted[c.ResponseID] = true
			if i+1 < len(sideCycles) {
				next := sideCycles[i+1]
				res.Interruptions = append(res.Interruptions, Interruption{
					CycleID:       next.ID,
					InterruptedID: c.ID,
					Side:          side,
					ResponseID:    c.ResponseID,
					Running:       next.Anchor.Sub(c.Anchor),
				})
			}
		}
	}

	res.Interrupted = len(interrupted)
	for id := range interrupted {
		if incomplete[id] {
			res.InterruptedAndIncomplete++
		}
		if complete[id] {
			res.InterruptedButComplete++
		}
	}
	for id := range incomplete {
		if !interrupted[id] {
			res.IncompleteNotInterrupted++
		}
	}
	if res.Interrupted > 0 {
		res.CorrelationPct = float64(res.InterruptedAndIncomplete) / float64(res.Interrupted) * 100
	}

	res.Degradation = degradation(cycles)
	return res
}

func degradation(cycles []*cycle.Cycle) *Degradation {
	if len(cycles) < 6 {
		return nil
	}
	half := len(cycles) / 2
	first := completionRate(cycles[:half])
	last := completionRate(cycles[half:])
	return &Degradation{
		FirstHalfRate: first,
		LastHalfRate:  last,
		Degraded:      last < first-10,
	}
}

func completionRate(cycles []*cycle.Cycle) float64 {
	if len(cycles) == 0 {
		return 0
	}
	n := 0
	for _, c := range cycles {
		if c.IsComplete() {
			n++
		}
	}
	return float64(n) / float64(len(cycles)) * 100
}

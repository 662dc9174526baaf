// Package report renders an analysis result as human-readable text, in
// the layout the command-line workflow expects: summary, cycle table,
// gap analysis, trend verdicts, correlation findings, diagnostics.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
	"github.com/tjfontaine/realtime-session-analyzer/internal/metrics"
	"github.com/tjfontaine/realtime-session-analyzer/internal/runtime"
	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

// Render writes the full text report for one analysis result.
func Render(w io.Writer, res *runtime.Result) error {
	p := &printer{w: w}

	p.headline("Session Analysis: %s", res.Profile)
	p.line("Source: %s", res.Source)
	p.line("Lines processed: %d, events: %d", res.Lines, res.Events)
	p.line("Cycles reconstructed: %d (conversation items: %d)", len(res.Cycles), res.ConversationItems)
	p.blank()

	renderCycles(p, res)
	renderGaps(p, res)
	renderTrends(p, res)
	renderCorrelation(p, res)
	renderDiagnostics(p, res)

	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) blank() { p.line("") }

func (p *printer) headline(format string, args ...any) {
	p.line(format, args...)
	p.line(strings.Repeat("=", 60))
}

func (p *printer) section(title string) {
	p.line("%s", title)
	p.line(strings.Repeat("-", 60))
}

func renderCycles(p *printer, res *runtime.Result) {
	if len(res.Cycles) == 0 {
		p.line("No cycles found.")
		p.blank()
		return
	}

	p.section("Cycle Summary")
	p.line("%-4s %-7s %-13s %-11s %-10s %-10s %s",
		"#", "Side", "Start", "Status", "Duration", "To Audio", "Missing")
	for _, c := range res.Cycles {
		d := metrics.Compute(c, res.Terminals)
		p.line("%-4d %-7s %-13s %-11s %-10s %-10s %s",
			c.ID, c.Side, c.Anchor.Format("15:04:05.000"), c.Status,
			formatDur(d.Total), formatDur(d.TimeToFirstAudio), formatMissing(c.Missing))
	}
	p.blank()
}

func renderGaps(p *printer, res *runtime.Result) {
	for _, side := range event.Sides {
		gaps := res.Gaps[side]
		if len(gaps) == 0 {
			continue
		}
		p.section(fmt.Sprintf("Inter-Cycle Gaps (%s)", side))
		p.line("%-10s %-10s %-12s %s", "From", "To", "Gap", "Note")
		for _, g := range gaps {
			note := ""
			if g.Approximate {
				note = "approximate"
			}
			if g.Negative {
				note = strings.TrimSpace(note + " out-of-order")
			}
			p.line("%-10d %-10d %-12s %s", g.FromID, g.ToID, formatMS(g.Duration), note)
		}
		p.blank()
	}
}

func renderTrends(p *printer, res *runtime.Result) {
	if len(res.Trends) == 0 {
		return
	}
	p.section("Trend Analysis")
	for _, metric := range orderedMetrics(res) {
		r := res.Trends[metric]
		if r.Pattern == trend.PatternInsufficientData {
			p.line("%-22s insufficient data (%d samples)", metric+":", r.Samples)
			continue
		}
		p.line("%-22s %s", metric+":", r.Pattern)
		if r.IncreasingRatio > 0 {
			p.line("%-22s increasing ratio %.2f", "", r.IncreasingRatio)
		} else {
			p.line("%-22s first %.0fms -> last %.0fms (%+.1f%%)", "", r.MeanFirst, r.MeanLast, r.PercentChange)
		}
		p.line("%-22s range %.0fms - %.0fms", "", r.Min, r.Max)
	}
	p.blank()
}

func renderCorrelation(p *printer, res *runtime.Result) {
	c := res.Correlation
	p.section("Completion and Interruption")
	if c.TotalCycles == 0 {
		p.line("No cycles to correlate.")
		p.blank()
		return
	}
	p.line("Complete: %d / %d (%.1f%%)", c.CompleteCycles, c.TotalCycles, c.CompletionRate)
	if c.Degradation != nil {
		p.line("Completion rate first half %.1f%%, last half %.1f%%", c.Degradation.FirstHalfRate, c.Degradation.LastHalfRate)
		if c.Degradation.Degraded {
			p.line("WARNING: completion rate is degrading over the session")
		}
	}
	p.line("Interrupted responses: %d", c.Interrupted)
	if c.Interrupted > 0 {
		p.line("Interrupted and incomplete: %d (%.1f%%)", c.InterruptedAndIncomplete, c.CorrelationPct)
		p.line("Interrupted but completed: %d", c.InterruptedButComplete)
	}
	p.line("Incomplete without interruption: %d", c.IncompleteNotInterrupted)
	for _, in := range c.Interruptions {
		p.line("  cycle %d (%s) interrupted response %s after %s",
			in.CycleID, in.Side, shortID(in.ResponseID), formatMS(in.Running))
	}
	p.blank()
}

func renderDiagnostics(p *printer, res *runtime.Result) {
	if len(res.Diagnostics) == 0 {
		return
	}
	p.section("Diagnostics")
	for _, d := range res.Diagnostics {
		p.line("[%s] %s %s: %s", d.Time.Format("15:04:05.000"), d.Side, d.Code, d.Detail)
	}
	p.blank()
}

func orderedMetrics(res *runtime.Result) []string {
	order := []string{
		runtime.MetricDuration,
		runtime.MetricTimeToOutput,
		runtime.MetricTimeToAudio,
		runtime.MetricContextTokens,
		runtime.MetricGapsCallerSide,
		runtime.MetricGapsAgentSide,
	}
	var out []string
	for _, m := range order {
		if _, ok := res.Trends[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

func formatDur(d *time.Duration) string {
	if d == nil {
		return "n/a"
	}
	return formatMS(*d)
}

func formatMS(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func formatMissing(missing []event.Kind) string {
	if len(missing) == 0 {
		return ""
	}
	parts := make([]string, len(missing))
	for i, k := range missing {
		parts[i] = string(k)
	}
	return "missing " + strings.Join(parts, ", ")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

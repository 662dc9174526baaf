package report

import (
	"io"
	"strings"

	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
)

// RenderRun writes the text report for an archived run. Archived runs
// carry verdicts rather than raw series, so the trend section prints
// the stored classification stats.
func RenderRun(w io.Writer, run *storage.Run) error {
	p := &printer{w: w}

	p.headline("Session Analysis: %s", run.Profile)
	p.line("Run: %s", run.ID)
	p.line("Source: %s", run.Source)
	p.line("Lines processed: %d, events: %d", run.Lines, run.Events)
	p.line("Cycles reconstructed: %d", len(run.Cycles))
	p.blank()

	if len(run.Cycles) > 0 {
		p.section("Cycle Summary")
		p.line("%-4s %-7s %-13s %-11s %s", "#", "Side", "Start", "Status", "Missing")
		for _, c := range run.Cycles {
			missing := ""
			if len(c.Missing) > 0 {
				missing = "missing " + strings.Join(c.Missing, ", ")
			}
			p.line("%-4d %-7s %-13s %-11s %s",
				c.Seq, c.Side, c.Anchor.Format("15:04:05.000"), c.Status, missing)
		}
		p.blank()
	}

	if len(run.Verdicts) > 0 {
		p.section("Trend Verdicts")
		for _, v := range run.Verdicts {
			r := v.Result
			p.line("%-22s %s", v.Metric+":", r.Pattern)
			if r.Samples > 0 {
				p.line("%-22s %d samples, first %.0fms -> last %.0fms (%+.1f%%)",
					"", r.Samples, r.MeanFirst, r.MeanLast, r.PercentChange)
			}
		}
		p.blank()
	}

	if len(run.Diagnostics) > 0 {
		p.section("Diagnostics")
		for _, d := range run.Diagnostics {
			p.line("[%s] %s %s: %s", d.Time.Format("15:04:05.000"), d.Side, d.Code, d.Detail)
		}
		p.blank()
	}

	return p.err
}

// Package runtime wires the analysis pass together: parse, classify,
// reconstruct, derive metrics, classify trends, correlate. One Analyzer
// performs one pass over one completed session log.
package runtime

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/realtime-session-analyzer/internal/correlation"
	"github.com/tjfontaine/realtime-session-analyzer/internal/cycle"
	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
	"github.com/tjfontaine/realtime-session-analyzer/internal/logparse"
	"github.com/tjfontaine/realtime-session-analyzer/internal/metrics"
	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
	"github.com/tjfontaine/realtime-session-analyzer/internal/transcript"
	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

// maxLineSize accommodates audio delta payloads, which routinely exceed
// bufio.Scanner's default token limit.
const maxLineSize = 4 * 1024 * 1024

// Metric names used as trend keys and verdict identifiers.
const (
	MetricDuration       = "total_response_time"
	MetricTimeToOutput   = "time_to_first_output"
	MetricTimeToAudio    = "time_to_first_audio"
	MetricContextTokens  = "context_tokens"
	MetricGapsCallerSide = "gaps_caller"
	MetricGapsAgentSide  = "gaps_agent"
)

// Analyzer runs one analysis profile over session logs.
type Analyzer struct {
	profile cycle.Profile
	split   trend.Split
	logger  *slog.Logger
	counter *transcript.Counter
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTokenCounter enables context-growth analysis using the given
// transcript counter.
func WithTokenCounter(c *transcript.Counter) Option {
	return func(a *Analyzer) { a.counter = c }
}

// New creates an analyzer for one profile. The logger must not be nil.
func New(profile cycle.Profile, split trend.Split, logger *slog.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{profile: profile, split: split, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Result is the full output of one analysis pass.
type Result struct {
	RunID   string
	Profile string
	Source  string

	// Terminals carries the profile's terminal kinds so downstream
	// consumers can recompute per-cycle durations.
	Terminals []event.Kind

	Lines  int
	Events int

	// Cycles in session id order; BySide preserves per-side order.
	Cycles []*cycle.Cycle
	BySide map[event.Side][]*cycle.Cycle

	Gaps map[event.Side][]metrics.Gap

	// Trends is keyed by metric name.
	Trends map[string]trend.Result

	Correlation       correlation.Result
	Diagnostics       []cycle.Diagnostic
	ConversationItems int
	CreatedAt         time.Time
}

// Analyze consumes the whole log from r before computing anything; the
// engine is strictly batch. Only the read itself can fail.
func (a *Analyzer) Analyze(ctx context.Context, r io.Reader, source string) (*Result, error) {
	tracer := otel.Tracer("analyzer")
	ctx, span := tracer.Start(ctx, "analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("profile", a.profile.Name),
		attribute.String("source", source),
	)

	res := &Result{
		RunID:     uuid.New().String(),
		Profile:   a.profile.Name,
		Source:    source,
		Terminals: a.profile.Terminals,
		BySide:    make(map[event.Side][]*cycle.Cycle),
		Gaps:      make(map[event.Side][]metrics.Gap),
		Trends:    make(map[string]trend.Result),
		CreatedAt: time.Now(),
	}

	rec := cycle.New(a.profile)

	_, ingestSpan := tracer.Start(ctx, "ingest")
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		res.Lines++
		line, ok := logparse.Parse(scanner.Text())
		if !ok {
			continue
		}
		ev, ok := event.Classify(line)
		if !ok {
			continue
		}
		res.Events++
		rec.Ingest(ev)
	}
	ingestSpan.End()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}
	rec.Flush()

	_, deriveSpan := tracer.Start(ctx, "derive")
	defer deriveSpan.End()

	res.Cycles = rec.AllCycles()
	res.Diagnostics = rec.Diagnostics()
	res.ConversationItems = rec.ConversationItems()
	for _, side := range event.Sides {
		res.BySide[side] = rec.Cycles(side)
		res.Gaps[side] = metrics.Gaps(rec.Cycles(side), a.profile.Terminals)
	}

	a.classifyTrends(res)
	res.Correlation = correlation.Analyze(res.Cycles)

	a.logger.Info("analysis complete",
		slog.String("run_id", res.RunID),
		slog.String("profile", res.Profile),
		slog.Int("lines", res.Lines),
		slog.Int("events", res.Events),
		slog.Int("cycles", len(res.Cycles)),
		slog.Int("diagnostics", len(res.Diagnostics)),
	)
	return res, nil
}

func (a *Analyzer) classifyTrends(res *Result) {
	terminals := a.profile.Terminals

	res.Trends[MetricDuration] = trend.Classify(
		metrics.Series(res.Cycles, terminals, func(d metrics.Durations) *time.Duration { return d.Total }), a.split)
	res.Trends[MetricTimeToOutput] = trend.Classify(
		metrics.Series(res.Cycles, terminals, func(d metrics.Durations) *time.Duration { return d.TimeToFirstOutput }), a.split)
	res.Trends[MetricTimeToAudio] = trend.Classify(
		metrics.Series(res.Cycles, terminals, func(d metrics.Durations) *time.Duration { return d.TimeToFirstAudio }), a.split)

	res.Trends[MetricGapsCallerSide] = trend.ClassifyAccumulation(metrics.GapSeries(res.Gaps[event.SideCaller]))
	res.Trends[MetricGapsAgentSide] = trend.ClassifyAccumulation(metrics.GapSeries(res.Gaps[event.SideAgent]))

	if a.counter != nil {
		res.Trends[MetricContextTokens] = trend.Classify(a.counter.CumulativeSeries(res.Cycles), a.split)
	}
}

// StorageRun converts the result to its archive form.
func (res *Result) StorageRun() *storage.Run {
	run := &storage.Run{
		ID:        res.RunID,
		Profile:   res.Profile,
		Source:    res.Source,
		Lines:     res.Lines,
		Events:    res.Events,
		CreatedAt: res.CreatedAt,
	}
	for _, c := range res.Cycles {
		sc := storage.Cycle{
			Seq:               c.ID,
			Side:              string(c.Side),
			Status:            string(c.Status),
			ResponseID:        c.ResponseID,
			Anchor:            c.Anchor,
			ConversationItems: c.ConversationItems,
		}
		if len(c.Milestones) > 0 {
			sc.Milestones = make(map[string]time.Time, len(c.Milestones))
			for k, ts := range c.Milestones {
				sc.Milestones[string(k)] = ts
			}
		}
		for _, k := range c.Missing {
			sc.Missing = append(sc.Missing, string(k))
		}
		run.Cycles = append(run.Cycles, sc)
	}
	for metric, result := range res.Trends {
		run.Verdicts = append(run.Verdicts, storage.Verdict{Metric: metric, Result: result})
	}
	sort.Slice(run.Verdicts, func(i, j int) bool { return run.Verdicts[i].Metric < run.Verdicts[j].Metric })
	for _, d := range res.Diagnostics {
		run.Diagnostics = append(run.Diagnostics, storage.Diagnostic{
			Time:   d.Time,
			Side:   string(d.Side),
			Code:   d.Code,
			Detail: d.Detail,
		})
	}
	return run
}

package cycle

import (
	"fmt"
	"sort"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
)

// Diagnostic records a structural anomaly observed during reconstruction.
// Anomalies never abort processing; they are surfaced for reporting.
type Diagnostic struct {
	Time   time.Time
	Side   event.Side
	Code   string
	Detail string
}

// Diagnostic codes.
const (
	DiagCorrelationReuse    = "correlation_id_reuse"
	DiagTerminalWithoutOpen = "terminal_without_open_cycle"
)

// Reconstructor is the per-session state machine that turns events into
// finalized cycles. One instance per log; instances are not reusable
// across sessions.
type Reconstructor struct {
	profile Profile

	open      map[event.Side]*Cycle
	finalized map[event.Side][]*Cycle
	byID      []*Cycle // finalization order across sides

	nextID    int
	convItems int

	// bound maps response ids to the finalized cycle that owns them,
	// for correlation-reuse detection.
	bound map[string]int

	diags   []Diagnostic
	flushed bool
}

// New creates a reconstructor for one session using the given profile.
func New(profile Profile) *Reconstructor {
	return &Reconstructor{
		profile:   profile,
		open:      make(map[event.Side]*Cycle),
		finalized: make(map[event.Side][]*Cycle),
		bound:     make(map[string]int),
		nextID:    1,
	}
}

// Ingest advances the state machine by exactly one event. It may
// finalize at most one prior cycle (the superseding case) and update the
// open cycle's milestones. Ingest never fails.
func (r *Reconstructor) Ingest(ev event.Event) {
	// Session-global kinds are consumed before side dispatch.
	switch ev.Kind {
	case event.KindConversationItemCreated:
		r.convItems++
		return
	case event.KindRateLimitsUpdated:
		if c := r.open[ev.Side]; c != nil {
			c.RateLimits = ev.Fields
		}
		return
	}

	if ev.Kind == r.profile.Anchor {
		if prev := r.open[ev.Side]; prev != nil {
			r.finalize(prev, StatusSuperseded)
		}
		c := &Cycle{
			ID:                r.nextID,
			Side:              ev.Side,
			Anchor:            ev.Timestamp,
			Milestones:        map[event.Kind]time.Time{ev.Kind: ev.Timestamp},
			Status:            StatusOpen,
			ConversationItems: r.convItems,
		}
		r.nextID++
		r.bind(c, ev.ResponseID)
		r.open[ev.Side] = c
		return
	}

	c := r.open[ev.Side]
	if c == nil {
		// No open cycle to attach to. Expected for most kinds; a
		// terminal with nothing open indicates the log lost the
		// response's beginning.
		if r.profile.IsTerminal(ev.Kind) {
			r.diag(ev, DiagTerminalWithoutOpen,
				fmt.Sprintf("%s for response %q with no open cycle", ev.Kind, ev.ResponseID))
		}
		return
	}

	if r.profile.MatchByID && c.ResponseID != "" && ev.ResponseID != "" && ev.ResponseID != c.ResponseID {
		// Belongs to a different, already superseded response.
		return
	}

	r.bind(c, ev.ResponseID)

	if _, seen := c.Milestones[ev.Kind]; !seen {
		c.Milestones[ev.Kind] = ev.Timestamp
	}
	if ev.Kind == event.KindResponseDone && c.Response == nil {
		c.Response = ev.Fields
	}

	if r.profile.IsTerminal(ev.Kind) {
		r.finalize(c, StatusComplete)
	}
}

// Flush finalizes any still-open cycles at end of input. It must be
// called exactly once after the last Ingest; further calls are no-ops.
func (r *Reconstructor) Flush() {
	if r.flushed {
		return
	}
	r.flushed = true
	for _, side := range event.Sides {
		if c := r.open[side]; c != nil {
			r.finalize(c, StatusComplete)
		}
	}
}

// Cycles returns the finalized cycles for one side in start-time order.
func (r *Reconstructor) Cycles(side event.Side) []*Cycle {
	return r.finalized[side]
}

// AllCycles returns every finalized cycle ordered by id.
func (r *Reconstructor) AllCycles() []*Cycle {
	out := make([]*Cycle, len(r.byID))
	copy(out, r.byID)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Diagnostics returns the anomalies recorded so far.
func (r *Reconstructor) Diagnostics() []Diagnostic {
	return r.diags
}

// ConversationItems returns the running conversation item count.
func (r *Reconstructor) ConversationItems() int {
	return r.convItems
}

// bind attaches a correlation id to c the first time one is seen,
// recording a diagnostic if the id already belongs to a finalized cycle.
func (r *Reconstructor) bind(c *Cycle, id string) {
	if id == "" || c.ResponseID != "" {
		return
	}
	if prev, ok := r.bound[id]; ok {
		r.diag(event.Event{Timestamp: c.Anchor, Side: c.Side}, DiagCorrelationReuse,
			fmt.Sprintf("response %q already bound to cycle %d", id, prev))
	}
	c.ResponseID = id
}

// finalize classifies c against the required checklist, stamps its
// status, and moves it to the history. Status is downgraded from
// complete to incomplete when required milestones are missing; a
// superseded cycle keeps StatusSuperseded but still gets its Missing
// list.
func (r *Reconstructor) finalize(c *Cycle, status Status) {
	c.Missing = c.Missing[:0]
	for _, k := range r.profile.Required {
		if _, ok := c.Milestones[k]; !ok {
			c.Missing = append(c.Missing, k)
		}
	}

	if status == StatusComplete && len(c.Missing) > 0 {
		status = StatusIncomplete
	}
	c.Status = status

	if c.ResponseID != "" {
		if _, ok := r.bound[c.ResponseID]; !ok {
			r.bound[c.ResponseID] = c.ID
		}
	}

	r.finalized[c.Side] = append(r.finalized[c.Side], c)
	r.byID = append(r.byID, c)
	delete(r.open, c.Side)
}

func (r *Reconstructor) diag(ev event.Event, code, detail string) {
	r.diags = append(r.diags, Diagnostic{
		Time:   ev.Timestamp,
		Side:   ev.Side,
		Code:   code,
		Detail: detail,
	})
}

package cycle

import (
	"testing"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/event"
)

var testProfile = Profile{
	Name:   "test",
	Anchor: event.KindSpeechStarted,
	Terminals: []event.Kind{
		event.KindResponseDone,
	},
	Required: []event.Kind{
		event.KindSpeechStarted,
		event.KindSpeechStopped,
		event.KindResponseCreated,
		event.KindResponseDone,
	},
}

func at(t *testing.T, clock string) time.Time {
	t.Helper()
	ts, err := time.Parse("15:04:05.000", clock)
	if err != nil {
		t.Fatalf("bad clock %q: %v", clock, err)
	}
	return ts
}

func ev(t *testing.T, kind event.Kind, side event.Side, clock, id string) event.Event {
	t.Helper()
	return event.Event{Timestamp: at(t, clock), Side: side, Kind: kind, ResponseID: id}
}

func TestCompleteCycle(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindSpeechStopped, event.SideCaller, "10:00:01.500", ""))
	r.Ingest(ev(t, event.KindResponseCreated, event.SideCaller, "10:00:01.600", "resp_1"))
	r.Ingest(ev(t, event.KindAudioDelta, event.SideCaller, "10:00:02.000", "resp_1"))
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:03.000", "resp_1"))
	r.Flush()

	cycles := r.Cycles(event.SideCaller)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	c := cycles[0]
	if c.Status != StatusComplete {
		t.Errorf("status = %s, want complete", c.Status)
	}
	if !c.IsComplete() {
		t.Error("IsComplete() = false, want true")
	}
	if c.ResponseID != "resp_1" {
		t.Errorf("response id = %q, want resp_1", c.ResponseID)
	}
	if len(c.Missing) != 0 {
		t.Errorf("missing = %v, want none", c.Missing)
	}
	if ts, ok := c.Milestone(event.KindAudioDelta); !ok || !ts.Equal(at(t, "10:00:02.000")) {
		t.Errorf("audio delta milestone = %v %v", ts, ok)
	}
	if len(r.Diagnostics()) != 0 {
		t.Errorf("diagnostics = %v, want none", r.Diagnostics())
	}
}

func TestAnchorSupersedesOpenCycle(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindResponseCreated, event.SideCaller, "10:00:00.500", "resp_1"))
	// New speech before resp_1 finishes.
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:02.000", ""))
	r.Ingest(ev(t, event.KindSpeechStopped, event.SideCaller, "10:00:03.000", ""))
	r.Ingest(ev(t, event.KindResponseCreated, event.SideCaller, "10:00:03.100", "resp_2"))
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:04.000", "resp_2"))
	r.Flush()

	cycles := r.Cycles(event.SideCaller)
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(cycles))
	}
	first, second := cycles[0], cycles[1]
	if first.Status != StatusSuperseded {
		t.Errorf("first status = %s, want superseded", first.Status)
	}
	if first.IsComplete() {
		t.Error("superseded cycle with missing milestones reported complete")
	}
	// Missing keeps the profile's declaration order.
	wantMissing := []event.Kind{event.KindSpeechStopped, event.KindResponseDone}
	if len(first.Missing) != len(wantMissing) {
		t.Fatalf("missing = %v, want %v", first.Missing, wantMissing)
	}
	for i, k := range wantMissing {
		if first.Missing[i] != k {
			t.Errorf("missing[%d] = %s, want %s", i, first.Missing[i], k)
		}
	}
	if second.Status != StatusComplete {
		t.Errorf("second status = %s, want complete", second.Status)
	}
}

func TestFlushFinalizesOpenCycles(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideAgent, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindSpeechStopped, event.SideAgent, "10:00:01.000", ""))
	r.Flush()
	r.Flush() // second call must be a no-op

	cycles := r.Cycles(event.SideAgent)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	c := cycles[0]
	if c.Status != StatusIncomplete {
		t.Errorf("status = %s, want incomplete", c.Status)
	}
	if len(c.Missing) != 2 {
		t.Errorf("missing = %v, want response.created and response.done", c.Missing)
	}
}

func TestTerminalWithoutOpenCycle(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:00.000", "resp_9"))
	r.Flush()

	if got := len(r.Cycles(event.SideCaller)); got != 0 {
		t.Fatalf("got %d cycles, want 0", got)
	}
	diags := r.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != DiagTerminalWithoutOpen {
		t.Errorf("code = %s, want %s", diags[0].Code, DiagTerminalWithoutOpen)
	}
}

func TestOrphanMilestoneSilentlyDropped(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindAudioDelta, event.SideCaller, "10:00:00.000", "resp_1"))
	r.Flush()

	if got := len(r.Diagnostics()); got != 0 {
		t.Errorf("got %d diagnostics, want 0 for non-terminal orphans", got)
	}
}

func TestMatchByIDIgnoresStaleEvents(t *testing.T) {
	p := testProfile
	p.MatchByID = true
	r := New(p)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindResponseCreated, event.SideCaller, "10:00:00.500", "resp_1"))
	// Straggler from an earlier response must not finalize this cycle.
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:00.600", "resp_0"))
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:01.000", "resp_1"))
	r.Flush()

	cycles := r.Cycles(event.SideCaller)
	if len(cycles) != 1 {
		t.Fatalf("got %d cycles, want 1", len(cycles))
	}
	c := cycles[0]
	if c.Status != StatusComplete {
		t.Errorf("status = %s, want complete", c.Status)
	}
	if ts, _ := c.Milestone(event.KindResponseDone); !ts.Equal(at(t, "10:00:01.000")) {
		t.Errorf("response.done milestone = %v, want the matching event's timestamp", ts)
	}
}

func TestMilestonesAreFirstWins(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindAudioDelta, event.SideCaller, "10:00:01.000", ""))
	r.Ingest(ev(t, event.KindAudioDelta, event.SideCaller, "10:00:02.000", ""))
	r.Flush()

	c := r.Cycles(event.SideCaller)[0]
	if ts, _ := c.Milestone(event.KindAudioDelta); !ts.Equal(at(t, "10:00:01.000")) {
		t.Errorf("audio delta milestone = %v, want first occurrence", ts)
	}
}

func TestCorrelationReuseDiagnostic(t *testing.T) {
	p := testProfile
	p.Anchor = event.KindResponseCreated
	p.Required = []event.Kind{event.KindResponseDone}
	r := New(p)
	r.Ingest(ev(t, event.KindResponseCreated, event.SideAgent, "10:00:00.000", "resp_1"))
	r.Ingest(ev(t, event.KindResponseDone, event.SideAgent, "10:00:01.000", "resp_1"))
	// Same id opens a second cycle.
	r.Ingest(ev(t, event.KindResponseCreated, event.SideAgent, "10:00:02.000", "resp_1"))
	r.Flush()

	diags := r.Diagnostics()
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Code != DiagCorrelationReuse {
		t.Errorf("code = %s, want %s", diags[0].Code, DiagCorrelationReuse)
	}
}

func TestSessionGlobalEvents(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindConversationItemCreated, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindConversationItemCreated, event.SideAgent, "10:00:00.100", ""))
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:01.000", ""))

	limits := event.Event{
		Timestamp: at(t, "10:00:01.500"),
		Side:      event.SideCaller,
		Kind:      event.KindRateLimitsUpdated,
		Fields:    map[string]any{"rate_limits": []any{}},
	}
	r.Ingest(limits)
	r.Flush()

	if got := r.ConversationItems(); got != 2 {
		t.Errorf("conversation items = %d, want 2", got)
	}
	c := r.Cycles(event.SideCaller)[0]
	if c.ConversationItems != 2 {
		t.Errorf("cycle snapshot = %d, want 2", c.ConversationItems)
	}
	if c.RateLimits == nil {
		t.Error("rate limits payload not attached to open cycle")
	}
}

func TestAllCyclesOrderedAcrossSides(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideAgent, "10:00:00.500", ""))
	r.Ingest(ev(t, event.KindResponseDone, event.SideCaller, "10:00:01.000", ""))
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:02.000", ""))
	r.Flush()

	all := r.AllCycles()
	if len(all) != 3 {
		t.Fatalf("got %d cycles, want 3", len(all))
	}
	for i, c := range all {
		if c.ID != i+1 {
			t.Errorf("all[%d].ID = %d, want %d", i, c.ID, i+1)
		}
	}
	if all[0].Side != event.SideCaller || all[1].Side != event.SideAgent {
		t.Error("ids must follow anchor arrival order across sides")
	}
}

func TestCycleCountMatchesAnchorCount(t *testing.T) {
	// Every anchor opens exactly one cycle, whatever else the stream does.
	r := New(testProfile)
	anchors := 0
	events := []event.Event{
		ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""),
		ev(t, event.KindResponseCreated, event.SideCaller, "10:00:00.500", "resp_1"),
		ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:01.000", ""),
		ev(t, event.KindSpeechStarted, event.SideAgent, "10:00:01.500", ""),
		ev(t, event.KindResponseDone, event.SideAgent, "10:00:02.000", ""),
		ev(t, event.KindResponseDone, event.SideCaller, "10:00:02.500", "resp_2"),
		ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:03.000", ""),
		ev(t, event.KindAudioDelta, event.SideAgent, "10:00:03.500", ""),
	}
	for _, e := range events {
		if e.Kind == testProfile.Anchor {
			anchors++
		}
		r.Ingest(e)
	}
	r.Flush()
	if got := len(r.AllCycles()); got != anchors {
		t.Errorf("cycles = %d, anchors = %d, want equal", got, anchors)
	}
}

func TestResponsePayloadCaptured(t *testing.T) {
	r := New(testProfile)
	r.Ingest(ev(t, event.KindSpeechStarted, event.SideCaller, "10:00:00.000", ""))
	done := ev(t, event.KindResponseDone, event.SideCaller, "10:00:01.000", "resp_1")
	done.Fields = map[string]any{"type": "response.done", "response": map[string]any{"id": "resp_1"}}
	r.Ingest(done)
	r.Flush()

	c := r.Cycles(event.SideCaller)[0]
	if c.Response == nil {
		t.Fatal("terminal payload not captured")
	}
}

package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func mustClock(t *testing.T, clock string) time.Time {
	t.Helper()
	ts, err := time.Parse("15:04:05.000", clock)
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func sampleRun(t *testing.T, id string) *storage.Run {
	t.Helper()
	return &storage.Run{
		ID:      id,
		Profile: "incomplete-translations",
		Source:  "session.log",
		Lines:   120,
		Events:  48,
		Cycles: []storage.Cycle{
			{
				Seq:        1,
				Side:       "caller",
				Status:     "complete",
				ResponseID: "resp_1",
				Anchor:     mustClock(t, "10:00:00.000"),
				Milestones: map[string]time.Time{
					"input_audio_buffer.speech_started": mustClock(t, "10:00:00.000"),
					"response.done":                     mustClock(t, "10:00:02.500"),
				},
				ConversationItems: 2,
			},
			{
				Seq:     2,
				Side:    "agent",
				Status:  "incomplete",
				Anchor:  mustClock(t, "10:00:05.000"),
				Missing: []string{"response.done"},
			},
		},
		Verdicts: []storage.Verdict{
			{
				Metric: "total_response_time",
				Result: trend.Result{
					Pattern:       trend.PatternDegrading,
					Samples:       8,
					MeanFirst:     1000,
					MeanLast:      2600,
					PercentChange: 160,
					Min:           900,
					Max:           2800,
					Range:         1900,
				},
			},
		},
		Diagnostics: []storage.Diagnostic{
			{
				Time:   mustClock(t, "10:00:07.000"),
				Side:   "caller",
				Code:   "terminal_without_open_cycle",
				Detail: "response.done for response \"resp_9\" with no open cycle",
			},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := sampleRun(t, "run-1")
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Profile != run.Profile || got.Source != run.Source || got.Lines != run.Lines || got.Events != run.Events {
		t.Errorf("run header mismatch: %+v", got)
	}

	if len(got.Cycles) != 2 {
		t.Fatalf("got %d cycles, want 2", len(got.Cycles))
	}
	c := got.Cycles[0]
	if c.ResponseID != "resp_1" || c.Status != "complete" || c.ConversationItems != 2 {
		t.Errorf("cycle 1 mismatch: %+v", c)
	}
	if !c.Anchor.Equal(mustClock(t, "10:00:00.000")) {
		t.Errorf("anchor = %v", c.Anchor)
	}
	if ts := c.Milestones["response.done"]; !ts.Equal(mustClock(t, "10:00:02.500")) {
		t.Errorf("milestone = %v", ts)
	}
	if got.Cycles[1].Missing[0] != "response.done" {
		t.Errorf("missing = %v", got.Cycles[1].Missing)
	}

	if len(got.Verdicts) != 1 {
		t.Fatalf("got %d verdicts, want 1", len(got.Verdicts))
	}
	v := got.Verdicts[0]
	if v.Metric != "total_response_time" || v.Result.Pattern != trend.PatternDegrading {
		t.Errorf("verdict mismatch: %+v", v)
	}
	if v.Result.PercentChange != 160 {
		t.Errorf("percent change = %v, want 160", v.Result.PercentChange)
	}

	if len(got.Diagnostics) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(got.Diagnostics))
	}
	if got.Diagnostics[0].Code != "terminal_without_open_cycle" {
		t.Errorf("diagnostic code = %q", got.Diagnostics[0].Code)
	}
}

func TestGetRunNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetRun(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := sampleRun(t, "run-old")
	older.CreatedAt = time.Now().Add(-time.Hour)
	newer := sampleRun(t, "run-new")
	newer.CreatedAt = time.Now()

	if err := store.SaveRun(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(ctx, newer); err != nil {
		t.Fatal(err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-old" {
		t.Errorf("order = %s, %s, want newest first", runs[0].ID, runs[1].ID)
	}
	if runs[0].Cycles != 2 {
		t.Errorf("cycle count = %d, want 2", runs[0].Cycles)
	}
}

func TestSaveRunDuplicateID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.SaveRun(ctx, sampleRun(t, "run-1")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(ctx, sampleRun(t, "run-1")); err == nil {
		t.Error("duplicate run id accepted")
	}
}

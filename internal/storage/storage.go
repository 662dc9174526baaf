// Package storage defines the session archive: persisted analysis runs
// with their reconstructed cycles, trend verdicts, and diagnostics.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

// ErrNotFound is returned when a run id does not exist in the archive.
var ErrNotFound = errors.New("run not found")

// Run is one completed analysis pass over one session log.
type Run struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile"`
	Source    string    `json:"source"`
	Lines     int       `json:"lines"`
	Events    int       `json:"events"`
	CreatedAt time.Time `json:"created_at"`

	Cycles      []Cycle      `json:"cycles,omitempty"`
	Verdicts    []Verdict    `json:"verdicts,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Cycle is the archived form of a reconstructed cycle. Timestamps keep
// only time of day, which is all the session logs carry.
type Cycle struct {
	Seq               int                  `json:"seq"`
	Side              string               `json:"side"`
	Status            string               `json:"status"`
	ResponseID        string               `json:"response_id,omitempty"`
	Anchor            time.Time            `json:"anchor"`
	Milestones        map[string]time.Time `json:"milestones,omitempty"`
	Missing           []string             `json:"missing,omitempty"`
	ConversationItems int                  `json:"conversation_items"`
}

// Verdict is one trend classification produced by a run.
type Verdict struct {
	Metric string       `json:"metric"`
	Result trend.Result `json:"result"`
}

// Diagnostic is an archived structural anomaly.
type Diagnostic struct {
	Time   time.Time `json:"time"`
	Side   string    `json:"side"`
	Code   string    `json:"code"`
	Detail string    `json:"detail"`
}

// RunSummary is the listing form of a run, without its children.
type RunSummary struct {
	ID        string    `json:"id"`
	Profile   string    `json:"profile"`
	Source    string    `json:"source"`
	Cycles    int       `json:"cycles"`
	CreatedAt time.Time `json:"created_at"`
}

// RunStore persists and retrieves analysis runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context) ([]RunSummary, error)
	Close() error
}

// Package sqlite is the SQLite-backed session archive.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
	"github.com/tjfontaine/realtime-session-analyzer/internal/trend"
)

// timeLayout stores the time-of-day timestamps the logs carry.
const timeLayout = "15:04:05.000"

// Store is a SQLite implementation of RunStore.
type Store struct {
	db *sqlx.DB
}

var _ storage.RunStore = (*Store)(nil)

// New opens (creating if needed) the archive database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			profile TEXT NOT NULL,
			source TEXT NOT NULL,
			lines INTEGER NOT NULL,
			events INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS cycles (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			side TEXT NOT NULL,
			status TEXT NOT NULL,
			response_id TEXT,
			anchor TEXT NOT NULL,
			milestones TEXT,
			missing TEXT,
			conversation_items INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (run_id, seq),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS verdicts (
			run_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			pattern TEXT NOT NULL,
			stats TEXT NOT NULL,
			PRIMARY KEY (run_id, metric),
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS diagnostics (
			run_id TEXT NOT NULL,
			at TEXT NOT NULL,
			side TEXT NOT NULL,
			code TEXT NOT NULL,
			detail TEXT,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_run ON cycles(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_verdicts_run ON verdicts(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun writes the run and all its children in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *storage.Run) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, profile, source, lines, events, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Profile, run.Source, run.Lines, run.Events, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, c := range run.Cycles {
		milestones, err := marshalMilestones(c.Milestones)
		if err != nil {
			return err
		}
		missing, err := json.Marshal(c.Missing)
		if err != nil {
			return fmt.Errorf("marshal missing: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO cycles (run_id, seq, side, status, response_id, anchor, milestones, missing, conversation_items)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, c.Seq, c.Side, c.Status, c.ResponseID,
			c.Anchor.Format(timeLayout), milestones, string(missing), c.ConversationItems)
		if err != nil {
			return fmt.Errorf("insert cycle %d: %w", c.Seq, err)
		}
	}

	for _, v := range run.Verdicts {
		stats, err := json.Marshal(v.Result)
		if err != nil {
			return fmt.Errorf("marshal verdict stats: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO verdicts (run_id, metric, pattern, stats) VALUES (?, ?, ?, ?)`,
			run.ID, v.Metric, string(v.Result.Pattern), string(stats))
		if err != nil {
			return fmt.Errorf("insert verdict %s: %w", v.Metric, err)
		}
	}

	for _, d := range run.Diagnostics {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO diagnostics (run_id, at, side, code, detail) VALUES (?, ?, ?, ?, ?)`,
			run.ID, d.Time.Format(timeLayout), d.Side, d.Code, d.Detail)
		if err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// GetRun loads one run with all its children.
func (s *Store) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	run := &storage.Run{}
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, profile, source, lines, events, created_at FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Profile, &run.Source, &run.Lines, &run.Events, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT seq, side, status, response_id, anchor, milestones, missing, conversation_items
		 FROM cycles WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c          storage.Cycle
			responseID sql.NullString
			anchor     string
			milestones sql.NullString
			missing    sql.NullString
		)
		if err := rows.Scan(&c.Seq, &c.Side, &c.Status, &responseID, &anchor,
			&milestones, &missing, &c.ConversationItems); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.ResponseID = responseID.String
		if c.Anchor, err = time.Parse(timeLayout, anchor); err != nil {
			return nil, fmt.Errorf("parse anchor: %w", err)
		}
		if milestones.Valid && milestones.String != "" {
			if c.Milestones, err = unmarshalMilestones(milestones.String); err != nil {
				return nil, err
			}
		}
		if missing.Valid && missing.String != "" {
			if err := json.Unmarshal([]byte(missing.String), &c.Missing); err != nil {
				return nil, fmt.Errorf("unmarshal missing: %w", err)
			}
		}
		run.Cycles = append(run.Cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}

	vrows, err := s.db.QueryxContext(ctx,
		`SELECT metric, stats FROM verdicts WHERE run_id = ? ORDER BY metric`, id)
	if err != nil {
		return nil, fmt.Errorf("query verdicts: %w", err)
	}
	defer vrows.Close()
	for vrows.Next() {
		var v storage.Verdict
		var stats string
		if err := vrows.Scan(&v.Metric, &stats); err != nil {
			return nil, fmt.Errorf("scan verdict: %w", err)
		}
		var result trend.Result
		if err := json.Unmarshal([]byte(stats), &result); err != nil {
			return nil, fmt.Errorf("unmarshal verdict stats: %w", err)
		}
		v.Result = result
		run.Verdicts = append(run.Verdicts, v)
	}
	if err := vrows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verdicts: %w", err)
	}

	drows, err := s.db.QueryxContext(ctx,
		`SELECT at, side, code, detail FROM diagnostics WHERE run_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query diagnostics: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var d storage.Diagnostic
		var at string
		var detail sql.NullString
		if err := drows.Scan(&at, &d.Side, &d.Code, &detail); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		if d.Time, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse diagnostic time: %w", err)
		}
		d.Detail = detail.String
		run.Diagnostics = append(run.Diagnostics, d)
	}
	if err := drows.Err(); err != nil {
		return nil, fmt.Errorf("iterate diagnostics: %w", err)
	}

	return run, nil
}

// ListRuns returns run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]storage.RunSummary, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT r.id, r.profile, r.source, r.created_at,
		        (SELECT COUNT(*) FROM cycles c WHERE c.run_id = r.id) AS cycles
		 FROM runs r ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []storage.RunSummary
	for rows.Next() {
		var rs storage.RunSummary
		if err := rows.Scan(&rs.ID, &rs.Profile, &rs.Source, &rs.CreatedAt, &rs.Cycles); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func marshalMilestones(m map[string]time.Time) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	flat := make(map[string]string, len(m))
	for k, ts := range m {
		flat[k] = ts.Format(timeLayout)
	}
	b, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("marshal milestones: %w", err)
	}
	return string(b), nil
}

func unmarshalMilestones(raw string) (map[string]time.Time, error) {
	var flat map[string]string
	if err := json.Unmarshal([]byte(raw), &flat); err != nil {
		return nil, fmt.Errorf("unmarshal milestones: %w", err)
	}
	out := make(map[string]time.Time, len(flat))
	for k, v := range flat {
		ts, err := time.Parse(timeLayout, v)
		if err != nil {
			return nil, fmt.Errorf("parse milestone %s: %w", k, err)
		}
		out[k] = ts
	}
	return out, nil
}

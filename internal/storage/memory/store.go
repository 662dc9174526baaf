// Package memory is an in-memory RunStore, used in tests and when no
// database is configured but the report server still needs a source.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/realtime-session-analyzer/internal/storage"
)

// Store keeps runs in a map guarded by a mutex.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*storage.Run
}

var _ storage.RunStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{runs: make(map[string]*storage.Run)}
}

func (s *Store) SaveRun(_ context.Context, run *storage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *Store) GetRun(_ context.Context, id string) (*storage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *Store) ListRuns(_ context.Context) ([]storage.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.RunSummary, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, storage.RunSummary{
			ID:        run.ID,
			Profile:   run.Profile,
			Source:    run.Source,
			Cycles:    len(run.Cycles),
			CreatedAt: run.CreatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) Close() error {
	return nil
}

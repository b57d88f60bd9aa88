package runs

import (
	"context"
	"sort"
	"strings"
	"sync"

	v1 "github.com/compeek/compeek/pkg/api/v1"
)

type memoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*v1.Run
	events map[string][]*v1.Event
}

var _ Store = (*memoryStore)(nil)

// NewMemoryStore returns a Store that keeps everything in process memory.
func NewMemoryStore() Store {
	return &memoryStore{
		runs:   make(map[string]*v1.Run),
		events: make(map[string][]*v1.Event),
	}
}

func (s *memoryStore) CreateRun(_ context.Context, run *v1.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memoryStore) UpdateRun(_ context.Context, run *v1.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrRunNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memoryStore) GetRun(_ context.Context, id string) (*v1.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *memoryStore) ListRuns(_ context.Context, filter ListFilter) ([]*v1.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query := strings.ToLower(filter.Query)
	out := make([]*v1.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(run.Goal), query) {
			continue
		}
		cp := *run
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := filter.limit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) AppendEvent(_ context.Context, ev *v1.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[ev.RunID]; !ok {
		return ErrRunNotFound
	}
	s.events[ev.RunID] = append(s.events[ev.RunID], ev)
	return nil
}

func (s *memoryStore) ListEvents(_ context.Context, runID string, afterSeq int) ([]*v1.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, ErrRunNotFound
	}
	var out []*v1.Event
	for _, ev := range s.events[runID] {
		if ev.Seq > afterSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memoryStore) Close() error { return nil }

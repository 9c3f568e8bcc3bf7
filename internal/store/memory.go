package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/halcyor/gantry/internal/expressions"
	"github.com/halcyor/gantry/pkg/schema"
)

// MemoryStore is an in-memory Store implementation.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	runs      map[string]*Run
	graphs    map[string]*Graph
	schedules map[string]*Schedule
}

// NewMemoryStore creates a new in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[string]*Run),
		graphs:    make(map[string]*Graph),
		schedules: make(map[string]*Schedule),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                      { return nil }

// --- Runs ---

func (s *MemoryStore) CreateRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	cp := copyRun(run)
	if cp.Status == "" {
		cp.Status = schema.RunStatusPending
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	s.runs[run.ID] = cp
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return storeNotFound("run", id)
	}
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.CurrentNode != nil {
		run.CurrentNode = *update.CurrentNode
	}
	if update.State != nil {
		run.State = expressions.DeepCopyMap(update.State)
	}
	if update.Logs != nil {
		run.Logs = append([]schema.LogEntry(nil), update.Logs...)
	}
	if update.Error != nil {
		run.Error = *update.Error
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		run.CompletedAt = &t
	}
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if filter.GraphID != "" && run.GraphID != filter.GraphID {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && run.StartedAt.Before(*filter.Since) {
			continue
		}
		runs = append(runs, copyRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	runs = applyWindow(runs, filter.Offset, filter.Limit)
	return runs, nil
}

// --- Graphs ---

func (s *MemoryStore) CreateGraph(ctx context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.graphs[g.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "graph %q already exists", g.ID)
	}
	cp := *g
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = cp.CreatedAt
	}
	s.graphs[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.graphs[id]
	if !ok {
		return nil, storeNotFound("graph", id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) ListGraphs(ctx context.Context, filter GraphFilter) ([]*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var graphs []*Graph
	for _, g := range s.graphs {
		if filter.Name != "" && g.Name != filter.Name {
			continue
		}
		cp := *g
		graphs = append(graphs, &cp)
	}
	sort.Slice(graphs, func(i, j int) bool {
		return graphs[i].CreatedAt.After(graphs[j].CreatedAt)
	})
	graphs = applyWindow(graphs, filter.Offset, filter.Limit)
	return graphs, nil
}

func (s *MemoryStore) DeleteGraph(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.graphs[id]; !ok {
		return storeNotFound("graph", id)
	}
	delete(s.graphs, id)
	return nil
}

// --- Schedules ---

func (s *MemoryStore) CreateSchedule(ctx context.Context, sched *Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[sched.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q already exists", sched.ID)
	}
	cp := *sched
	cp.InitialState = expressions.DeepCopyMap(sched.InitialState)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.schedules[sched.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[id]
	if !ok {
		return nil, storeNotFound("schedule", id)
	}
	cp := *sched
	return &cp, nil
}

func (s *MemoryStore) UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sched, ok := s.schedules[id]
	if !ok {
		return storeNotFound("schedule", id)
	}
	if update.Enabled != nil {
		sched.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		sched.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		sched.NextRunAt = &t
	}
	if update.LastRunStatus != "" {
		sched.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var schedules []*Schedule
	for _, sched := range s.schedules {
		if filter.GraphID != "" && sched.GraphID != filter.GraphID {
			continue
		}
		if filter.Enabled != nil && sched.Enabled != *filter.Enabled {
			continue
		}
		cp := *sched
		schedules = append(schedules, &cp)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].CreatedAt.Before(schedules[j].CreatedAt)
	})
	if filter.Limit > 0 && len(schedules) > filter.Limit {
		schedules = schedules[:filter.Limit]
	}
	return schedules, nil
}

func (s *MemoryStore) DeleteSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schedules[id]; !ok {
		return storeNotFound("schedule", id)
	}
	delete(s.schedules, id)
	return nil
}

// --- Helpers ---

func copyRun(run *Run) *Run {
	cp := *run
	cp.State = expressions.DeepCopyMap(run.State)
	cp.Logs = append([]schema.LogEntry(nil), run.Logs...)
	if run.CompletedAt != nil {
		t := *run.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func applyWindow[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var _ Store = (*MemoryStore)(nil)

package postgres

import (
	"context"
	"sort"
	"sync"

	"github.com/Sarmad-dev/pivot-pus-sub000/internal/domain"
	"github.com/Sarmad-dev/pivot-pus-sub000/internal/ports"
)

// NewMemoryRepositories returns map-backed stores for tests and
// dependency-free local runs.
func NewMemoryRepositories() Repositories {
	return Repositories{
		Results:  &memoryResultStore{results: map[string]domain.SimulationResult{}},
		Queue:    &memoryQueueStore{entries: map[string]domain.SimulationQueueEntry{}},
		Feedback: &memoryFeedbackStore{},
	}
}

type memoryResultStore struct {
	mu      sync.Mutex
	results map[string]domain.SimulationResult
}

func (s *memoryResultStore) Save(_ context.Context, result domain.SimulationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SimulationID] = result
	return nil
}

func (s *memoryResultStore) Get(_ context.Context, simulationID string) (domain.SimulationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[simulationID]
	if !ok {
		return domain.SimulationResult{}, domain.ErrNotFound
	}
	return result, nil
}

type memoryQueueStore struct {
	mu      sync.Mutex
	entries map[string]domain.SimulationQueueEntry
}

func (s *memoryQueueStore) Upsert(_ context.Context, entry domain.SimulationQueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SimulationID] = entry
	return nil
}

func (s *memoryQueueStore) Delete(_ context.Context, simulationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, simulationID)
	return nil
}

func (s *memoryQueueStore) ListPending(_ context.Context) ([]domain.SimulationQueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SimulationQueueEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.Status == domain.StatusQueued {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

type memoryFeedbackStore struct {
	mu      sync.Mutex
	records []ports.FeedbackRecord
}

func (s *memoryFeedbackStore) Record(_ context.Context, rec ports.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryFeedbackStore) ListByModel(_ context.Context, model string, limit int) ([]ports.FeedbackRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 10
	}
	out := make([]ports.FeedbackRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		if s.records[i].Model == model {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

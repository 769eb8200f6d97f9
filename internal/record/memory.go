package record

import (
	"context"
	"sync"

	"github.com/worqly/orchestrator/internal/engine"
)

// MemoryStore keeps run history in process memory. Used when no database
// is configured and as the store of record in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string]*engine.RunResult
	records map[string][]engine.ExecutionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:    make(map[string]*engine.RunResult),
		records: make(map[string][]engine.ExecutionRecord),
	}
}

func (s *MemoryStore) AppendExecutionRecord(_ context.Context, record *engine.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = append(s.records[record.RunID], *record)
	return nil
}

func (s *MemoryStore) FinalizeRun(_ context.Context, result *engine.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := *result
	s.runs[result.RunID] = &run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (*engine.RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, nil
	}
	out := *run
	return &out, nil
}

func (s *MemoryStore) GetRunRecords(_ context.Context, runID string) ([]engine.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.records[runID]
	out := make([]engine.ExecutionRecord, len(records))
	copy(out, records)
	return out, nil
}

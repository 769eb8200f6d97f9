package queue

import (
	"sync"
	"time"

	"github.com/worqly/orchestrator/internal/engine"
)

// DefaultResultTTL is how long a task result stays retrievable after the
// task finishes.
const DefaultResultTTL = time.Hour

// TaskResult is the outcome of one processed task. Chain and parallel
// tasks carry one run result per workflow, partial on failure.
type TaskResult struct {
	TaskID      string              `json:"task_id"`
	Kind        Kind                `json:"kind"`
	Success     bool                `json:"success"`
	Error       string              `json:"error,omitempty"`
	Runs        []*engine.RunResult `json:"runs"`
	CompletedAt time.Time           `json:"completed_at"`

	// Err carries the task-level failure for errors.Is checks, ErrTimeout
	// in particular. Process-local, never serialized.
	Err error `json:"-"`
}

// ResultStore holds task results for later retrieval, expiring them after
// a TTL so abandoned results do not accumulate.
type ResultStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]resultEntry
}

type resultEntry struct {
	result    *TaskResult
	expiresAt time.Time
}

func NewResultStore(ttl time.Duration) *ResultStore {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultStore{ttl: ttl, m: make(map[string]resultEntry)}
}

func (s *ResultStore) Set(result *TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(time.Now())
	s.m[result.TaskID] = resultEntry{result: result, expiresAt: time.Now().Add(s.ttl)}
}

// Get returns the result for a task ID, or nil when unknown or expired.
func (s *ResultStore) Get(taskID string) *TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.m[taskID]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.m, taskID)
		return nil
	}
	return entry.result
}

func (s *ResultStore) purgeLocked(now time.Time) {
	for id, entry := range s.m {
		if now.After(entry.expiresAt) {
			delete(s.m, id)
		}
	}
}

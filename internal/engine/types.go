package engine

import (
	"context"
	"time"

	"github.com/worqly/orchestrator/internal/graph"
)

// Status is a node execution state within one run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// RunStatus is the run-level state machine: Pending → Running →
// Completed | Failed.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ExecutionRecord captures one node's outcome within one run. Created when
// the node begins, finalized when it ends; append-only.
type ExecutionRecord struct {
	RunID       string         `json:"run_id"`
	NodeID      string         `json:"node_id"`
	NodeType    graph.NodeType `json:"node_type"`
	NodeName    string         `json:"node_name"`
	Status      Status         `json:"status"`
	Input       any            `json:"input,omitempty"`
	Output      any            `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
}

// RunResult is the aggregate outcome of a run. Immutable once produced.
// A failed run still carries whatever partial outputs and records were
// produced before the failure.
type RunResult struct {
	RunID   string            `json:"run_id"`
	Status  RunStatus         `json:"status"`
	Success bool              `json:"success"`
	Error   string            `json:"error,omitempty"`
	Outputs map[string]any    `json:"outputs"`
	Records []ExecutionRecord `json:"records"`
}

// RunContext is the mutable state scoped to one execution. It is owned
// exclusively by one coordinator instance and never shared across runs.
type RunContext struct {
	RunID    string
	Trigger  map[string]any
	Outputs  map[string]any // node id → produced output
	Shared   map[string]any // mutated by context patches
	Executed map[string]struct{}
	Failed   map[string]struct{}
	Skipped  map[string]struct{}

	records []ExecutionRecord
}

func newRunContext(runID string, trigger map[string]any) *RunContext {
	return &RunContext{
		RunID:    runID,
		Trigger:  trigger,
		Outputs:  make(map[string]any),
		Shared:   make(map[string]any),
		Executed: make(map[string]struct{}),
		Failed:   make(map[string]struct{}),
		Skipped:  make(map[string]struct{}),
	}
}

// resolved reports whether a node has reached a terminal state in this run.
func (rc *RunContext) resolved(nodeID string) bool {
	if _, ok := rc.Executed[nodeID]; ok {
		return true
	}
	if _, ok := rc.Failed[nodeID]; ok {
		return true
	}
	_, ok := rc.Skipped[nodeID]
	return ok
}

// RecordStore is the persistence contract for execution history. The
// engine only appends; it never queries its own history back during a run.
type RecordStore interface {
	AppendExecutionRecord(ctx context.Context, record *ExecutionRecord) error
	FinalizeRun(ctx context.Context, result *RunResult) error
}

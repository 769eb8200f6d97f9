package queue

import (
	"context"
	"time"

	"github.com/worqly/orchestrator/internal/graph"
)

// Kind identifies what the worker should do with a task.
type Kind string

const (
	// KindRun executes a single workflow.
	KindRun Kind = "execute-run"
	// KindNode executes bare nodes outside a workflow, each node's output
	// becoming the next node's input. Used for fine-grained retry of a
	// single node and for node-level chains.
	KindNode Kind = "execute-node"
	// KindChain executes workflows sequentially, feeding each run's
	// outputs into the next run's trigger. A failed link aborts the rest.
	KindChain Kind = "execute-chain"
	// KindParallel executes workflows concurrently and joins on all of
	// them. The task succeeds only when every run does.
	KindParallel Kind = "execute-parallel"
)

// RunRequest is one workflow execution within a task.
type RunRequest struct {
	Graph   *graph.Graph   `json:"graph"`
	Trigger map[string]any `json:"trigger,omitempty"`
}

// NodeRequest is one bare node execution within a node task. Input seeds
// the first node of a node chain; downstream nodes receive the previous
// node's output instead.
type NodeRequest struct {
	Node  graph.Node `json:"node"`
	Input any        `json:"input,omitempty"`
}

// Task is a unit of work for a worker. Tasks cross process boundaries on
// the NATS queue, so everything on them is JSON-serializable.
type Task struct {
	ID         string        `json:"id"`
	Kind       Kind          `json:"kind"`
	Runs       []RunRequest  `json:"runs,omitempty"`
	Nodes      []NodeRequest `json:"nodes,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`

	// NotBefore is the earliest time this task is eligible for
	// processing. Zero value means immediately.
	NotBefore time.Time `json:"not_before,omitempty"`
}

// eligibleAt returns when the task may be handed to a worker.
func (t *Task) eligibleAt() time.Time {
	if t.NotBefore.IsZero() {
		return t.EnqueuedAt
	}
	return t.NotBefore
}

// Queue is the broker contract. Implementations must be safe for
// concurrent use.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until
	// one is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued.
	Len() int
}
